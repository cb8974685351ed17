// Package dispatch applies one action uniformly to a set of selected
// entries and runs the persisted queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/downloader"
	"github.com/JohnDeved/rombrowse/internal/logging"
	"github.com/JohnDeved/rombrowse/internal/navigator"
	"github.com/JohnDeved/rombrowse/internal/queue"
	"github.com/JohnDeved/rombrowse/internal/store"
)

// Action is what to do with the selected entries.
type Action int

const (
	PrintURL Action = iota
	CopyURL
	EnqueueHead
	EnqueueTail
	DownloadNow
)

func (a Action) String() string {
	switch a {
	case PrintURL:
		return "print"
	case CopyURL:
		return "copy"
	case EnqueueHead:
		return "enqueue-head"
	case EnqueueTail:
		return "enqueue"
	case DownloadNow:
		return "download"
	default:
		return "unknown"
	}
}

// ParseAction accepts the long names and the one-letter shortcuts used at
// the prompt: p, c, h (queue at head), q (queue at tail), d.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "print", "url":
		return PrintURL, nil
	case "c", "copy":
		return CopyURL, nil
	case "h", "qh", "head", "enqueue-head":
		return EnqueueHead, nil
	case "q", "queue", "enqueue", "tail":
		return EnqueueTail, nil
	case "d", "dl", "download":
		return DownloadNow, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Item is one resolved entry.
type Item struct {
	Target catalog.Target
	URL    string
}

// Queue is the subset of *queue.Queue the dispatcher needs.
type Queue interface {
	Enqueue(e queue.Entry, pos queue.Position) error
	Remove(e queue.Entry) error
	List() []queue.Entry
	URL(e queue.Entry) (string, error)
	Warnings() []*queue.LineError
}

// Downloader performs one transfer. *downloader.Downloader satisfies it.
type Downloader interface {
	Download(ctx context.Context, req downloader.Request) downloader.Result
}

// Logger records download outcomes. *store.DB satisfies it.
type Logger interface {
	LogDownload(r store.DownloadRow) error
}

// Options configures a Dispatcher.
type Options struct {
	Catalog     *catalog.Catalog
	Queue       Queue
	Downloader  Downloader
	Clipboard   Clipboard // defaults to the system clipboard
	Logger      Logger    // optional
	DownloadDir string
	Pacing      time.Duration // pause between the end of one transfer and the next
	Resume      bool          // continue into existing destination files
	Out         io.Writer     // PrintURL target; optional
	OnResult    func(ItemResult, Tally)
}

// Dispatcher runs actions strictly one entry at a time.
type Dispatcher struct {
	cat      *catalog.Catalog
	queue    Queue
	dl       Downloader
	clip     Clipboard
	logger   Logger
	dir      string
	resume   bool
	out      io.Writer
	pacing   time.Duration
	lastEnd  time.Time // end of the last network transfer
	onResult func(ItemResult, Tally)
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	clip := opts.Clipboard
	if clip == nil {
		clip = SystemClipboard{}
	}
	return &Dispatcher{
		cat:      opts.Catalog,
		queue:    opts.Queue,
		dl:       opts.Downloader,
		clip:     clip,
		logger:   opts.Logger,
		dir:      opts.DownloadDir,
		resume:   opts.Resume,
		out:      opts.Out,
		pacing:   opts.Pacing,
		onResult: opts.OnResult,
	}
}

// ItemResult is the outcome for one entry.
type ItemResult struct {
	Item     Item
	Dest     string
	Download *downloader.Result // set for transfers
	Skipped  bool
	Err      error
}

// Tally is the running count of a batch.
type Tally struct {
	Succeeded int
	Existing  int // AlreadyExists, counted apart from Succeeded
	Failed    int
	Skipped   int
}

func (t Tally) String() string {
	return fmt.Sprintf("%d ok, %d already present, %d failed, %d skipped", t.Succeeded, t.Existing, t.Failed, t.Skipped)
}

// Outcome is the structured result of Dispatch or ProcessQueue.
type Outcome struct {
	Action   Action
	Tally    Tally
	Results  []ItemResult
	URLs     []string
	Warnings []string
}

func (o *Outcome) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.Warnings = append(o.Warnings, msg)
	log.Printf("WARN: %s", msg)
}

func (d *Dispatcher) record(o *Outcome, r ItemResult) {
	switch {
	case r.Skipped:
		o.Tally.Skipped++
	case r.Err != nil:
		o.Tally.Failed++
	case r.Download != nil && r.Download.Outcome == downloader.AlreadyExists:
		o.Tally.Existing++
	default:
		o.Tally.Succeeded++
	}
	o.Results = append(o.Results, r)
	if d.onResult != nil {
		d.onResult(r, o.Tally)
	}
}

// FromSelection converts resolved navigator entries.
func FromSelection(sel navigator.Selection) []Item {
	items := make([]Item, len(sel.Files))
	for i, f := range sel.Files {
		items[i] = Item{Target: f.Target, URL: f.URL}
	}
	return items
}

// DispatchSelection applies action to the files of sel and reports every
// skipped directory as a warning.
func (d *Dispatcher) DispatchSelection(ctx context.Context, action Action, sel navigator.Selection) Outcome {
	var pre Outcome
	for _, s := range sel.Skipped {
		pre.warn("skipped directory %d (%s): directories must be opened one at a time", s.Number, s.Entry.Name)
	}
	o := d.Dispatch(ctx, action, FromSelection(sel))
	o.Warnings = append(pre.Warnings, o.Warnings...)
	o.Tally.Skipped += len(sel.Skipped)
	return o
}

// Dispatch applies action to every item in order. One failure never stops
// the remaining items.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, items []Item) Outcome {
	o := Outcome{Action: action}
	if len(items) == 0 {
		o.warn("nothing selected")
		return o
	}
	for i := range items {
		if items[i].URL == "" && d.cat != nil {
			if u, err := d.cat.URL(items[i].Target); err == nil {
				items[i].URL = u
			}
		}
	}

	switch action {
	case PrintURL:
		for _, it := range items {
			o.URLs = append(o.URLs, it.URL)
			if d.out != nil {
				fmt.Fprintln(d.out, it.URL)
			}
			d.record(&o, ItemResult{Item: it})
		}
	case CopyURL:
		d.copyURLs(&o, items)
	case EnqueueHead, EnqueueTail:
		d.enqueue(&o, action, items)
	case DownloadNow:
		for _, it := range items {
			if ctx.Err() != nil {
				d.record(&o, ItemResult{Item: it, Skipped: true, Err: ctx.Err()})
				continue
			}
			d.record(&o, d.download(ctx, it))
		}
		log.Printf("INFO: batch download finished: %s", o.Tally)
	default:
		o.warn("unknown action %d", action)
	}
	return o
}

func (d *Dispatcher) copyURLs(o *Outcome, items []Item) {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	o.URLs = urls
	err := d.clip.WriteAll(strings.Join(urls, "\n"))
	for _, it := range items {
		if err != nil {
			// Best effort: the URLs are still returned for display.
			d.record(o, ItemResult{Item: it, Skipped: true, Err: err})
			continue
		}
		d.record(o, ItemResult{Item: it})
	}
	if err != nil {
		o.warn("%v", err)
	}
}

func (d *Dispatcher) enqueue(o *Outcome, action Action, items []Item) {
	if d.queue == nil {
		o.warn("no queue configured")
		return
	}
	pos := queue.Tail
	order := items
	if action == EnqueueHead {
		// Inserting in reverse keeps the selection order at the head.
		pos = queue.Head
		order = make([]Item, len(items))
		for i, it := range items {
			order[len(items)-1-i] = it
		}
	}
	results := make([]ItemResult, len(order))
	for i, it := range order {
		err := d.queue.Enqueue(queue.Entry{Target: it.Target}, pos)
		switch {
		case errors.Is(err, queue.ErrAlreadyQueued):
			results[i] = ItemResult{Item: it, Skipped: true, Err: err}
		default:
			results[i] = ItemResult{Item: it, Err: err}
		}
	}
	if action == EnqueueHead {
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
	}
	for _, r := range results {
		if r.Skipped {
			o.warn("%s is already queued", r.Item.Target.Title)
		} else if r.Err != nil {
			o.warn("queueing %s: %v", r.Item.Target.Title, r.Err)
		}
		d.record(o, r)
	}
}

// download transfers one item, pacing network transfers.
func (d *Dispatcher) download(ctx context.Context, it Item) ItemResult {
	dest := downloader.DestPath(d.dir, it.URL)
	r := ItemResult{Item: it, Dest: dest}
	if d.dl == nil {
		r.Err = fmt.Errorf("no downloader configured")
		return r
	}
	network := d.resume || !downloader.Exists(dest)
	if network {
		if err := d.pace(ctx); err != nil {
			r.Err = err
			return r
		}
	}

	log.Printf("INFO: downloading %s -> %s", it.URL, dest)
	res := d.dl.Download(ctx, downloader.Request{URL: it.URL, Dest: dest, Resume: d.resume})
	if network {
		d.lastEnd = time.Now()
	}
	r.Download = &res
	if res.Outcome == downloader.Failed {
		r.Err = res.Err
		if r.Err == nil {
			r.Err = fmt.Errorf("download failed")
		}
	}
	d.logDownload(res)
	return r
}

// pace waits until the pacing delay has passed since the previous
// network transfer ended.
func (d *Dispatcher) pace(ctx context.Context) error {
	if d.pacing <= 0 || d.lastEnd.IsZero() {
		return ctx.Err()
	}
	wait := d.pacing - time.Since(d.lastEnd)
	if wait <= 0 {
		return ctx.Err()
	}
	logging.Debug("pausing %s before the next download", wait.Round(time.Millisecond))
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) logDownload(res downloader.Result) {
	if d.logger == nil {
		return
	}
	row := store.DownloadRow{
		URL:        res.Record.URL,
		Dest:       res.Record.Dest,
		Attempts:   res.Record.Attempts,
		Bytes:      res.Record.Bytes,
		Status:     res.Record.Status.String(),
		StartedAt:  res.Record.StartedAt,
		FinishedAt: res.Record.FinishedAt,
	}
	if res.Outcome == downloader.AlreadyExists {
		row.Status = "already exists"
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if err := d.logger.LogDownload(row); err != nil {
		log.Printf("WARN: %v", err)
	}
}

// RunOptions controls ProcessQueue.
type RunOptions struct {
	DryRun bool // resolve and report URLs without downloading
}

// ProcessQueue attempts every queued entry in file order. Entries that
// succeed or already exist locally are removed; failures stay queued.
func (d *Dispatcher) ProcessQueue(ctx context.Context, opts RunOptions) Outcome {
	o := Outcome{Action: DownloadNow}
	if d.queue == nil {
		o.warn("no queue configured")
		return o
	}
	entries := d.queue.List()
	for _, w := range d.queue.Warnings() {
		o.warn("%v (line kept, not processed)", w)
	}
	if len(entries) == 0 {
		return o
	}
	log.Printf("INFO: processing %d queued download(s)", len(entries))

	for _, e := range entries {
		u, err := d.queue.URL(e)
		it := Item{Target: e.Target, URL: u}
		if err != nil {
			d.record(&o, ItemResult{Item: it, Err: err})
			o.warn("queued %s: %v", e.Title, err)
			continue
		}
		if opts.DryRun {
			o.URLs = append(o.URLs, u)
			d.record(&o, ItemResult{Item: it, Dest: downloader.DestPath(d.dir, u), Skipped: true})
			continue
		}
		if ctx.Err() != nil {
			d.record(&o, ItemResult{Item: it, Skipped: true, Err: ctx.Err()})
			continue
		}

		r := d.download(ctx, it)
		if r.Err == nil {
			if err := d.queue.Remove(e); err != nil && !errors.Is(err, queue.ErrNotFound) {
				o.warn("removing %s from queue: %v", e.Title, err)
			}
		}
		d.record(&o, r)
	}
	log.Printf("INFO: queue run finished: %s", o.Tally)
	return o
}
