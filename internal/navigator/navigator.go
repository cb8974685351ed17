// Package navigator is the browsing state machine: it tracks the active
// dataset, breadcrumb stack, pagination, search and category toggles, and
// turns user actions into fetches and re-filtered views.
package navigator

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/filter"
	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/store"
)

// DefaultPageSize is the number of entries per page.
const DefaultPageSize = 50

// Fetcher retrieves raw listing documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RuleSet is the persisted exclusion rule source.
type RuleSet interface {
	Filters() []filter.Filter
	Add(text string) (bool, error)
	Remove(text string) (bool, error)
}

// History records visited directories.
type History interface {
	AddRecent(dataset, path, display string) error
	RecentDirs(limit int) ([]store.RecentDir, error)
}

// State is the navigator's current mode.
type State int

const (
	StateListing State = iota
	StateSearching
	StateError
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateError:
		return "error"
	default:
		return "listing"
	}
}

// Segment is one breadcrumb.
type Segment struct {
	Name string // decoded
	Href string // percent-encoded, ends in "/"
}

// decoded returns the directory name as published in the href, which can
// differ from a title-derived Name.
func (s Segment) decoded() string {
	return listing.Decode(strings.TrimSuffix(s.Href, "/"))
}

// Item is an entry as displayed, with its stable number.
type Item struct {
	Number int
	Entry  listing.Entry
}

// Options configures a Navigator.
type Options struct {
	Catalog      *catalog.Catalog
	Fetcher      Fetcher
	Rules        RuleSet // optional
	History      History // optional
	PageSize     int
	HistoryLimit int
}

// Navigator holds one browsing session. It is not safe for concurrent use.
type Navigator struct {
	catalog      *catalog.Catalog
	fetcher      Fetcher
	rules        RuleSet
	history      History
	historyLimit int

	dataset catalog.Dataset
	stack   []Segment
	listing listing.Listing
	view    []listing.Entry
	toggles filter.Toggles

	state   State
	err     error
	query   string
	matches []int // positions in view while searching

	page     int
	pageSize int
}

// New creates a navigator positioned at the first dataset's root. Call
// Start to fetch the initial listing.
func New(opts Options) (*Navigator, error) {
	if opts.Catalog == nil || len(opts.Catalog.Datasets()) == 0 {
		return nil, fmt.Errorf("no datasets configured")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.HistoryLimit < 1 {
		opts.HistoryLimit = 5
	}
	ds := opts.Catalog.Datasets()[0]
	return &Navigator{
		catalog:      opts.Catalog,
		fetcher:      opts.Fetcher,
		rules:        opts.Rules,
		history:      opts.History,
		historyLimit: opts.HistoryLimit,
		dataset:      ds,
		listing:      listing.Listing{Root: ds.Root},
		toggles:      filter.DefaultToggles(ds.Name, ""),
		page:         1,
		pageSize:     opts.PageSize,
	}, nil
}

// Start fetches the root of the named dataset (or the current one when
// name is empty). On failure the navigator enters the error state.
func (n *Navigator) Start(ctx context.Context, name string) error {
	if name != "" {
		ds, ok := n.catalog.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown dataset %q", name)
		}
		n.dataset = ds
	}
	n.stack = nil
	n.listing = listing.Listing{Root: n.dataset.Root}
	n.view = nil
	n.toggles = filter.DefaultToggles(n.dataset.Name, "")
	n.page = 1
	return n.reload(ctx)
}

// State returns the current mode.
func (n *Navigator) State() State { return n.state }

// Err returns the cause of the error state.
func (n *Navigator) Err() error { return n.err }

// Dataset returns the active dataset.
func (n *Navigator) Dataset() catalog.Dataset { return n.dataset }

// Stack returns a copy of the breadcrumb stack.
func (n *Navigator) Stack() []Segment {
	out := make([]Segment, len(n.stack))
	copy(out, n.stack)
	return out
}

// Path returns the percent-encoded path below the dataset root.
func (n *Navigator) Path() string { return stackPath(n.stack) }

// Breadcrumb renders "Dataset / Platform / Sub".
func (n *Navigator) Breadcrumb() string {
	parts := []string{n.dataset.Name}
	for _, s := range n.stack {
		parts = append(parts, s.Name)
	}
	return strings.Join(parts, " / ")
}

// Listing returns the unfiltered listing of the current directory.
func (n *Navigator) Listing() listing.Listing { return n.listing }

// View returns the filtered view. Numbers are positions in this slice, plus one.
func (n *Navigator) View() []listing.Entry { return n.view }

// Toggles returns a copy of the session category toggles.
func (n *Navigator) Toggles() filter.Toggles { return n.toggles.Clone() }

// Query returns the active search text.
func (n *Navigator) Query() string { return n.query }

// PageNumber returns the current 1-based page.
func (n *Navigator) PageNumber() int { return n.page }

// PageSize returns the number of items per page.
func (n *Navigator) PageSize() int { return n.pageSize }

// Platform returns the decoded platform directory, or "" at the dataset root.
func (n *Navigator) Platform() string {
	if len(n.stack) == 0 {
		return ""
	}
	return n.stack[0].decoded()
}

// visible returns the view positions that are currently shown, before paging.
func (n *Navigator) visible() []int {
	if n.state == StateSearching {
		return n.matches
	}
	out := make([]int, len(n.view))
	for i := range out {
		out[i] = i
	}
	return out
}

// Total returns the number of entries shown across all pages.
func (n *Navigator) Total() int {
	if n.state == StateSearching {
		return len(n.matches)
	}
	return len(n.view)
}

// TotalPages is never less than one.
func (n *Navigator) TotalPages() int {
	total := n.Total()
	if total == 0 {
		return 1
	}
	return (total + n.pageSize - 1) / n.pageSize
}

// Page returns the items on the current page.
func (n *Navigator) Page() []Item {
	vis := n.visible()
	start := (n.page - 1) * n.pageSize
	if start >= len(vis) {
		return nil
	}
	end := start + n.pageSize
	if end > len(vis) {
		end = len(vis)
	}
	items := make([]Item, 0, end-start)
	for _, pos := range vis[start:end] {
		items = append(items, Item{Number: pos + 1, Entry: n.view[pos]})
	}
	return items
}

// Open acts on one displayed number. A directory is entered and nil is
// returned; a file is returned for hand-off to the dispatcher.
func (n *Navigator) Open(ctx context.Context, number int) (*Selected, error) {
	if err := n.checkVisible(number); err != nil {
		return nil, err
	}
	e := n.view[number-1]
	if !e.IsDir() {
		sel := n.resolve(number)
		return &sel, nil
	}
	next := append(n.Stack(), Segment{Name: e.Name, Href: ensureSlash(listing.CanonicalPath(e.Href))})
	return nil, n.navigate(ctx, n.dataset, next)
}

// Up leaves the current directory. At the dataset root it does nothing.
func (n *Navigator) Up(ctx context.Context) error {
	if len(n.stack) == 0 {
		return nil
	}
	return n.navigate(ctx, n.dataset, n.Stack()[:len(n.stack)-1])
}

// SelectDataset switches to another dataset's root.
func (n *Navigator) SelectDataset(ctx context.Context, name string) error {
	ds, ok := n.catalog.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: unknown dataset %q", ErrInvalidSelection, name)
	}
	return n.navigate(ctx, ds, nil)
}

// GoTo opens an arbitrary path below a dataset root. Segments may be given
// decoded or percent-encoded. An empty dataset keeps the current one.
func (n *Navigator) GoTo(ctx context.Context, dataset, path string) error {
	ds := n.dataset
	if dataset != "" {
		var ok bool
		if ds, ok = n.catalog.Lookup(dataset); !ok {
			return fmt.Errorf("%w: unknown dataset %q", ErrInvalidSelection, dataset)
		}
	}
	return n.navigate(ctx, ds, ParsePath(path))
}

// Refresh re-fetches the current directory, keeping toggles. A failure
// moves the navigator into the error state at the current path.
func (n *Navigator) Refresh(ctx context.Context) error {
	return n.reload(ctx)
}

// ParsePath splits a relative path into breadcrumbs.
func ParsePath(path string) []Segment {
	var stack []Segment
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || seg == "." {
			continue
		}
		if seg == ".." {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		name := listing.Decode(seg)
		stack = append(stack, Segment{Name: name, Href: listing.EncodeSegment(name) + "/"})
	}
	return stack
}

// navigate fetches a new location and commits it only on success.
func (n *Navigator) navigate(ctx context.Context, ds catalog.Dataset, stack []Segment) error {
	l, err := n.fetch(ctx, ds, stack)
	if err != nil {
		log.Printf("WARN: navigation to %s failed: %v", ds.DirURL(stackPath(stack)), err)
		if n.state == StateError {
			n.err = err
		}
		return err
	}

	n.dataset = ds
	n.stack = stack
	n.listing = l
	platform := ""
	if len(stack) > 0 {
		platform = stack[0].decoded()
	}
	n.toggles = filter.DefaultToggles(ds.Name, platform)
	n.state = StateListing
	n.err = nil
	n.query = ""
	n.matches = nil
	n.page = 1
	n.recompute()
	n.recordVisit()
	return nil
}

func (n *Navigator) reload(ctx context.Context) error {
	l, err := n.fetch(ctx, n.dataset, n.stack)
	if err != nil {
		log.Printf("WARN: loading %s failed: %v", n.dataset.DirURL(n.Path()), err)
		n.state = StateError
		n.err = err
		return err
	}
	n.listing = l
	n.state = StateListing
	n.err = nil
	n.query = ""
	n.matches = nil
	n.recompute()
	n.clampPage()
	n.recordVisit()
	return nil
}

func (n *Navigator) fetch(ctx context.Context, ds catalog.Dataset, stack []Segment) (listing.Listing, error) {
	path := stackPath(stack)
	doc, err := n.fetcher.Fetch(ctx, ds.DirURL(path))
	if err != nil {
		return listing.Listing{}, err
	}
	// Dataset and platform roots are sorted so numbering stays stable.
	return listing.Parse(bytes.NewReader(doc), listing.Options{
		Root:            ds.Root,
		Path:            path,
		SortDirectories: len(stack) <= 1,
	}), nil
}

func (n *Navigator) recordVisit() {
	if n.history == nil {
		return
	}
	if err := n.history.AddRecent(n.dataset.Name, n.Path(), n.Breadcrumb()); err != nil {
		log.Printf("WARN: recording recent directory: %v", err)
	}
}

// Recent returns the recent directory history, most recent first.
func (n *Navigator) Recent() ([]store.RecentDir, error) {
	if n.history == nil {
		return nil, nil
	}
	return n.history.RecentDirs(n.historyLimit)
}

// recompute rebuilds the filtered view from the listing and active filters.
func (n *Navigator) recompute() {
	n.view = filter.Apply(n.listing.Entries, n.filters())
}

func (n *Navigator) filters() []filter.Filter {
	var fs []filter.Filter
	if n.rules != nil {
		fs = append(fs, n.rules.Filters()...)
	}
	return append(fs, n.toggles.Filters()...)
}

// Reapply recomputes the view after the rule set changed outside the
// navigator, e.g. from a file watcher. A search that no longer matches is
// dropped.
func (n *Navigator) Reapply() {
	n.recompute()
	n.rematch()
	n.clampPage()
}

func (n *Navigator) rematch() {
	if n.state != StateSearching {
		return
	}
	n.matches = filter.Match(n.view, n.query)
	if len(n.matches) == 0 {
		n.state = StateListing
		n.query = ""
		n.matches = nil
	}
}

func (n *Navigator) clampPage() {
	if tp := n.TotalPages(); n.page > tp {
		n.page = tp
	}
	if n.page < 1 {
		n.page = 1
	}
}

func (n *Navigator) checkVisible(number int) error {
	if number < 1 || number > len(n.view) {
		return fmt.Errorf("%w: %d is out of range 1-%d", ErrInvalidSelection, number, len(n.view))
	}
	if n.state == StateSearching {
		for _, m := range n.matches {
			if m == number-1 {
				return nil
			}
		}
		return fmt.Errorf("%w: %d is not among the search results", ErrInvalidSelection, number)
	}
	return nil
}

// Select resolves displayed numbers into files. Directories are reported
// in Skipped, never silently dropped; a selection without any file is
// invalid.
func (n *Navigator) Select(numbers []int) (Selection, error) {
	if len(numbers) == 0 {
		return Selection{}, fmt.Errorf("%w: empty selection", ErrInvalidSelection)
	}
	for _, num := range numbers {
		if err := n.checkVisible(num); err != nil {
			return Selection{}, err
		}
	}
	var sel Selection
	for _, num := range numbers {
		s := n.resolve(num)
		if s.Entry.IsDir() {
			sel.Skipped = append(sel.Skipped, s)
			continue
		}
		sel.Files = append(sel.Files, s)
	}
	if len(sel.Files) == 0 {
		return sel, fmt.Errorf("%w: directories must be opened one at a time", ErrInvalidSelection)
	}
	return sel, nil
}

// SelectExpr parses and resolves a selection expression like "2:5".
func (n *Navigator) SelectExpr(expr string) (Selection, error) {
	numbers, err := ParseIndices(expr)
	if err != nil {
		return Selection{}, err
	}
	return n.Select(numbers)
}

func (n *Navigator) resolve(number int) Selected {
	e := n.view[number-1]
	href := listing.CanonicalPath(e.Href)
	t := catalog.Target{Dataset: n.dataset.Name, Title: e.Name}
	if len(n.stack) == 0 {
		t.Path = href
	} else {
		t.Platform = n.stack[0].decoded()
		t.Path = stackPath(n.stack[1:]) + href
	}
	return Selected{
		Number: number,
		Entry:  e,
		Target: t,
		URL:    n.dataset.DirURL(n.Path()) + href,
	}
}

// GotoPage moves to page p. Pages outside 1..TotalPages are rejected.
func (n *Navigator) GotoPage(p int) error {
	if tp := n.TotalPages(); p < 1 || p > tp {
		return fmt.Errorf("%w: page %d is out of range 1-%d", ErrInvalidSelection, p, tp)
	}
	n.page = p
	return nil
}

// NextPage advances one page.
func (n *Navigator) NextPage() error { return n.GotoPage(n.page + 1) }

// PrevPage goes back one page.
func (n *Navigator) PrevPage() error { return n.GotoPage(n.page - 1) }

// SetPageSize changes the page size and returns to the first page.
func (n *Navigator) SetPageSize(size int) error {
	if size < 1 {
		return fmt.Errorf("%w: page size must be positive", ErrInvalidSelection)
	}
	n.pageSize = size
	n.page = 1
	return nil
}

// Search narrows the view to entries containing query. Numbers keep
// referring to positions in the full filtered view. When nothing matches
// the previous view is kept and ErrNoMatches is returned.
func (n *Navigator) Search(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		n.ClearSearch()
		return nil
	}
	matches := filter.Match(n.view, query)
	if len(matches) == 0 {
		return fmt.Errorf("%w for %q", ErrNoMatches, query)
	}
	n.state = StateSearching
	n.query = query
	n.matches = matches
	n.page = 1
	return nil
}

// ClearSearch returns to the full view.
func (n *Navigator) ClearSearch() {
	if n.state == StateSearching {
		n.state = StateListing
	}
	n.query = ""
	n.matches = nil
	n.page = 1
}

// ToggleCategory flips one session category and returns to page 1.
func (n *Navigator) ToggleCategory(key string) (bool, error) {
	hidden, err := n.toggles.Toggle(key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	n.recompute()
	n.rematch()
	n.page = 1
	return hidden, nil
}

// AddExclusion persists a new exclusion rule and re-applies filters.
func (n *Navigator) AddExclusion(text string) (bool, error) {
	if n.rules == nil {
		return false, fmt.Errorf("no rule file configured")
	}
	added, err := n.rules.Add(text)
	if err != nil {
		return false, err
	}
	n.Reapply()
	return added, nil
}

// RemoveExclusion deletes a persisted rule and re-applies filters.
func (n *Navigator) RemoveExclusion(text string) (bool, error) {
	if n.rules == nil {
		return false, fmt.Errorf("no rule file configured")
	}
	removed, err := n.rules.Remove(text)
	if err != nil {
		return false, err
	}
	n.Reapply()
	return removed, nil
}

func stackPath(stack []Segment) string {
	var b strings.Builder
	for _, s := range stack {
		b.WriteString(ensureSlash(s.Href))
	}
	return b.String()
}

func ensureSlash(href string) string {
	if strings.HasSuffix(href, "/") {
		return href
	}
	return href + "/"
}
