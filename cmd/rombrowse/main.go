package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/config"
	"github.com/JohnDeved/rombrowse/internal/dispatch"
	"github.com/JohnDeved/rombrowse/internal/downloader"
	"github.com/JohnDeved/rombrowse/internal/filter"
	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/navigator"
	"github.com/JohnDeved/rombrowse/internal/queue"
	"github.com/JohnDeved/rombrowse/internal/tui"
	"github.com/JohnDeved/rombrowse/internal/util"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rombrowse",
		Short: "Browse and download from remote ROM directory indexes",
		Long: `rombrowse - Browse the Redump and No-Intro directory indexes on Myrient,
filter and select entries by number, and queue or download them from your terminal.`,
		RunE:         runBrowse,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Write debug lines to the session log")
	rootCmd.PersistentFlags().String("dataset", "", "Dataset to use (default from config)")

	browseCmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "Launch the TUI, optionally at a path inside the dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBrowse,
	}
	browseCmd.Flags().Bool("json", false, "List entries as JSON instead of launching the TUI")
	browseCmd.Flags().Bool("name-only", false, "Only print names in non-TUI output")
	browseCmd.Flags().Int("limit", 0, "Limit number of entries in non-TUI output (0 = unlimited)")
	browseCmd.Flags().Bool("all", false, "Do not apply filter rules or default category filters in non-TUI output")

	listCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory in plain text with the numbers the TUI would show",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}
	listCmd.Flags().Bool("json", false, "Output JSON")
	listCmd.Flags().Bool("name-only", false, "Only print names")
	listCmd.Flags().Int("limit", 0, "Limit number of entries (0 = unlimited)")
	listCmd.Flags().Bool("all", false, "Do not apply filter rules or default category filters")

	downloadCmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Download files by URL, one at a time",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDownload,
	}
	downloadCmd.Flags().StringP("output", "o", "", "Output directory for this download")
	downloadCmd.Flags().Bool("resume", false, "Continue into existing destination files")

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the persisted download queue",
	}
	queueListCmd := &cobra.Command{
		Use:   "list",
		Short: "Show queued entries in order",
		Args:  cobra.NoArgs,
		RunE:  runQueueList,
	}
	queueListCmd.Flags().Bool("json", false, "Output JSON")
	queueAddCmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Queue files by URL",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQueueAdd,
	}
	queueAddCmd.Flags().Bool("head", false, "Insert at the head of the queue")
	queueRemoveCmd := &cobra.Command{
		Use:   "remove <url|path|title>",
		Short: "Remove one queued entry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQueueRemove,
	}
	queueRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Download every queued entry in order",
		Args:  cobra.NoArgs,
		RunE:  runQueueRun,
	}
	queueRunCmd.Flags().Bool("dry-run", false, "Print what would be downloaded")
	queueRunCmd.Flags().String("schedule", "", `Process the queue on a cron schedule (e.g. "0 3 * * *") until interrupted`)
	queueRunCmd.Flags().StringP("output", "o", "", "Output directory for this run")
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRemoveCmd, queueRunCmd)

	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage persisted exclusion rules",
	}
	filterListCmd := &cobra.Command{
		Use:   "list",
		Short: "Show exclusion rules and the category filters",
		Args:  cobra.NoArgs,
		RunE:  runFilterList,
	}
	filterAddCmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Hide entries whose name contains text",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFilterAdd,
	}
	filterRemoveCmd := &cobra.Command{
		Use:   "remove <text>",
		Short: "Delete an exclusion rule",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFilterRemove,
	}
	filterCmd.AddCommand(filterListCmd, filterAddCmd, filterRemoveCmd)

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent directories or the download log",
		Args:  cobra.NoArgs,
		RunE:  runRecent,
	}
	recentCmd.Flags().Bool("downloads", false, "Show the download log instead")
	recentCmd.Flags().Int("limit", 20, "Maximum rows in the download log")
	recentCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(browseCmd, listCmd, downloadCmd, queueCmd, filterCmd, recentCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openApp(cmd *cobra.Command, logToStderr bool) (*app, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	if logToStderr {
		return newApp(debug, os.Stderr)
	}
	return newApp(debug, nil)
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func runBrowse(cmd *cobra.Command, args []string) error {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode || !isInteractiveTerminal() {
		return runList(cmd, args)
	}

	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ensureDownloadDir(a.cfg.DownloadPath()); err != nil {
		return err
	}
	nav, err := a.navigator()
	if err != nil {
		return err
	}
	dsName, _ := cmd.Flags().GetString("dataset")
	startPath := ""
	if len(args) > 0 {
		startPath = args[0]
	}

	return tui.Run(tui.Options{
		Navigator:  nav,
		Queue:      a.queue,
		Rules:      a.rules,
		Downloader: a.dl,
		Dispatch:   a.dispatchOptions(a.cfg.DownloadPath()),
		Dataset:    dsName,
		Path:       startPath,
	})
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	dsName, _ := cmd.Flags().GetString("dataset")
	ds, err := a.dataset(dsName)
	if err != nil {
		return err
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	stack := navigator.ParsePath(path)
	var dirPath, platform string
	for _, seg := range stack {
		dirPath += seg.Href
	}
	if len(stack) > 0 {
		platform = stack[0].Name
	}

	ctx, cancel := interruptContext()
	defer cancel()
	l, err := a.client.ListDirectory(ctx, ds.Root, dirPath, len(stack) <= 1)
	if err != nil {
		return err
	}

	entries := l.Entries
	all, _ := cmd.Flags().GetBool("all")
	if !all {
		filters := append(a.rules.Filters(), filter.DefaultToggles(ds.Name, platform).Filters()...)
		entries = filter.Apply(entries, filters)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	nameOnly, _ := cmd.Flags().GetBool("name-only")
	if jsonMode {
		type entryOut struct {
			Number int    `json:"number"`
			Name   string `json:"name"`
			URL    string `json:"url"`
			IsDir  bool   `json:"is_dir"`
		}
		out := struct {
			Dataset string     `json:"dataset"`
			Path    string     `json:"path"`
			URL     string     `json:"url"`
			Entries []entryOut `json:"entries"`
		}{
			Dataset: ds.Name,
			Path:    dirPath,
			URL:     l.URL(),
		}
		out.Entries = make([]entryOut, 0, len(entries))
		for i, e := range entries {
			out.Entries = append(out.Entries, entryOut{
				Number: i + 1,
				Name:   e.Name,
				URL:    l.URL() + e.Href,
				IsDir:  e.IsDir(),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("%s /%s\n", ds.Name, listing.Decode(dirPath))
	for i, e := range entries {
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		if nameOnly {
			fmt.Println(name)
			continue
		}
		fmt.Printf("%5d. %s\n", i+1, name)
	}
	return nil
}

// targetsFromURLs resolves absolute file URLs against the catalog.
func targetsFromURLs(cat *catalog.Catalog, urls []string) ([]dispatch.Item, error) {
	items := make([]dispatch.Item, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("invalid URL: %q", u)
		}
		if strings.HasSuffix(u, "/") {
			return nil, fmt.Errorf("refusing to download directory URL: %s (provide a file URL)", u)
		}
		t, ok := cat.Split(u)
		if !ok {
			t = catalog.Target{Title: listing.Decode(u[strings.LastIndex(u, "/")+1:])}
		}
		items = append(items, dispatch.Item{Target: t, URL: u})
	}
	return items, nil
}

// progressPrinter renders transfer progress on stderr.
func progressPrinter(p downloader.Progress) {
	if frac := p.Fraction(); frac >= 0 {
		fmt.Fprintf(os.Stderr, "\r  %5.1f%%  %s    ", frac*100, util.FormatProgress(p.Done, p.Total))
		return
	}
	fmt.Fprintf(os.Stderr, "\r  %s    ", util.FormatBytes(p.Done))
}

func printResult(r dispatch.ItemResult, t dispatch.Tally) {
	title := r.Item.Target.Title
	switch {
	case r.Skipped && r.Err != nil:
		fmt.Fprintf(os.Stderr, "\rSkipped: %s (%v)\n", title, r.Err)
	case r.Err != nil:
		fmt.Fprintf(os.Stderr, "\rFailed: %s: %v\n", title, r.Err)
	case r.Download != nil && r.Download.Outcome == downloader.AlreadyExists:
		fmt.Fprintf(os.Stderr, "\rAlready present: %s\n", r.Dest)
	case r.Download != nil:
		fmt.Fprintf(os.Stderr, "\rDownloaded: %s (%s)\n", r.Dest, util.FormatBytes(r.Download.Record.Bytes))
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		outDir = a.cfg.DownloadPath()
	}
	if err := a.ensureDownloadDir(outDir); err != nil {
		return err
	}
	items, err := targetsFromURLs(a.catalog, args)
	if err != nil {
		return err
	}

	resume, _ := cmd.Flags().GetBool("resume")
	opts := a.dispatchOptions(outDir)
	opts.Resume = resume
	opts.OnResult = printResult
	a.dl.SetOnProgress(progressPrinter)
	d := dispatch.New(opts)

	ctx, cancel := interruptContext()
	defer cancel()
	fmt.Fprintf(os.Stderr, "To: %s\n", outDir)
	o := d.Dispatch(ctx, dispatch.DownloadNow, items)
	fmt.Fprintf(os.Stderr, "%s\n", o.Tally)
	if o.Tally.Failed > 0 {
		return fmt.Errorf("%d download(s) failed", o.Tally.Failed)
	}
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	for _, w := range a.queue.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
	}
	entries := a.queue.List()

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		type entryOut struct {
			Dataset  string `json:"dataset"`
			Platform string `json:"platform"`
			Path     string `json:"path"`
			Title    string `json:"title"`
			URL      string `json:"url"`
		}
		out := make([]entryOut, 0, len(entries))
		for _, e := range entries {
			u, _ := a.queue.URL(e)
			out = append(out, entryOut{Dataset: e.Dataset, Platform: e.Platform, Path: e.Path, Title: e.Title, URL: u})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(entries) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}
	for i, e := range entries {
		fmt.Printf("%3d. %-60s  %s / %s\n", i+1, e.Title, e.Dataset, e.Platform)
	}
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	items, err := targetsFromURLs(a.catalog, args)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Target.Dataset == "" {
			return fmt.Errorf("%s is not below a configured dataset root", it.URL)
		}
	}

	action := dispatch.EnqueueTail
	if head, _ := cmd.Flags().GetBool("head"); head {
		action = dispatch.EnqueueHead
	}
	o := dispatch.New(a.dispatchOptions(a.cfg.DownloadPath())).Dispatch(cmd.Context(), action, items)
	for _, w := range o.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	fmt.Printf("Queued %d (%d in queue)\n", o.Tally.Succeeded, a.queue.Len())
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	e, err := a.queue.DequeueMatching(strings.Join(args, " "))
	if errors.Is(err, queue.ErrAmbiguous) {
		return fmt.Errorf("%w: be more specific or pass the full URL", err)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Removed: %s\n", e.Title)
	return nil
}

func runQueueRun(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		outDir = a.cfg.DownloadPath()
	}
	if err := a.ensureDownloadDir(outDir); err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	schedule, _ := cmd.Flags().GetString("schedule")

	opts := a.dispatchOptions(outDir)
	if !dryRun {
		opts.OnResult = printResult
		a.dl.SetOnProgress(progressPrinter)
	}
	d := dispatch.New(opts)

	ctx, cancel := interruptContext()
	defer cancel()

	runOnce := func() dispatch.Outcome {
		if err := a.queue.Load(); err != nil {
			log.Printf("ERROR: reloading queue: %v", err)
		}
		o := d.ProcessQueue(ctx, dispatch.RunOptions{DryRun: dryRun})
		if dryRun {
			for _, u := range o.URLs {
				fmt.Println(u)
			}
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", o.Tally)
		}
		return o
	}

	if schedule == "" {
		o := runOnce()
		if o.Tally.Failed > 0 {
			return fmt.Errorf("%d download(s) failed and stay queued", o.Tally.Failed)
		}
		return nil
	}

	// Runs share one dispatcher, so a run still in progress skips the next tick.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { runOnce() }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	log.Printf("INFO: processing the queue on schedule %q", schedule)
	fmt.Fprintf(os.Stderr, "Waiting for schedule %q, press Ctrl+C to stop\n", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func runFilterList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("Rules (%s):\n", a.rules.Path())
	patterns := a.rules.Patterns()
	if len(patterns) == 0 {
		fmt.Println("  (none)")
	}
	for _, p := range patterns {
		fmt.Printf("  %s\n", p)
	}

	fmt.Println("\nCategories (toggle in the TUI with \"toggle <name>\"):")
	for _, c := range filter.Categories {
		fmt.Printf("  %-8s %s\n", c.Name, c.Tag)
	}
	fmt.Println("\nHidden by default:")
	for _, r := range filter.DefaultRules {
		scope := r.Dataset
		if scope == "" {
			scope = "all datasets"
		}
		if r.Platform != "" {
			scope += " / " + r.Platform
		}
		fmt.Printf("  %-50s %s\n", scope, strings.Join(r.Hidden, ", "))
	}
	return nil
}

func runFilterAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	text := strings.Join(args, " ")
	added, err := a.rules.Add(text)
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("Already excluded: %s\n", text)
		return nil
	}
	fmt.Printf("Excluding: %s\n", text)
	return nil
}

func runFilterRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	text := strings.Join(args, " ")
	removed, err := a.rules.Remove(text)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no exclusion rule %q", text)
	}
	fmt.Printf("Removed rule: %s\n", text)
	return nil
}

func runRecent(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	if a.db == nil {
		return fmt.Errorf("state database unavailable (see %s)", config.LogPath())
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if downloads, _ := cmd.Flags().GetBool("downloads"); downloads {
		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := a.db.Downloads(limit)
		if err != nil {
			return err
		}
		if jsonMode {
			return enc.Encode(rows)
		}
		stats, err := a.db.GetStats()
		if err != nil {
			return err
		}
		for _, r := range rows {
			line := fmt.Sprintf("%-14s %-10s %s", util.FormatAgo(r.FinishedAt), r.Status, r.Dest)
			if r.Error != "" {
				line += "  (" + r.Error + ")"
			}
			fmt.Println(line)
		}
		fmt.Printf("\n%d logged downloads, %d failed\n", stats.Downloads, stats.Failed)
		return nil
	}

	dirs, err := a.db.RecentDirs(a.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if jsonMode {
		return enc.Encode(dirs)
	}
	if len(dirs) == 0 {
		fmt.Println("No recent directories yet.")
		return nil
	}
	for i, d := range dirs {
		fmt.Printf("%d. %-10s %-60s %s\n", i+1, d.Dataset, d.Display, util.FormatAgo(d.VisitedAt))
	}
	return nil
}
