// Package queue persists pending downloads in a line-oriented text file
// that stays safe to edit by hand between runs.
//
// Each line holds tab-separated key=value tokens:
//
//	dataset=Redump	platform=Sony - PlayStation	path=Game%20(USA).zip	title=Game (USA).zip
//
// platform and title are stored decoded, path stays percent-encoded. Blank
// lines and lines starting with "#" are kept verbatim.
package queue

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/util"
)

var (
	ErrAlreadyQueued = errors.New("already queued")
	ErrNotFound      = errors.New("no queued entry matches")
	ErrAmbiguous     = errors.New("more than one queued entry matches")
)

// Position selects where Enqueue inserts.
type Position int

const (
	Tail Position = iota
	Head
)

// Entry is one pending download.
type Entry struct {
	catalog.Target
}

// LineError describes a queue line that could not be parsed. Such lines are
// skipped for processing but preserved on save.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("queue line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// line is one physical line of the file.
type line struct {
	raw   string
	entry *Entry // nil for comments, blanks and corrupt lines
}

// Queue is the on-disk queue. All mutations reload the file, apply the
// change and rewrite the whole file atomically under a lock.
type Queue struct {
	mu      sync.Mutex
	path    string
	catalog *catalog.Catalog
	lines   []line
	errs    []*LineError
}

// Open loads the queue at path. A missing file is an empty queue.
func Open(path string, cat *catalog.Catalog) (*Queue, error) {
	q := &Queue{path: path, catalog: cat}
	if err := q.Load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Path returns the queue file location.
func (q *Queue) Path() string { return q.path }

// Load re-reads the file.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked()
}

func (q *Queue) loadLocked() error {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			q.lines, q.errs = nil, nil
			return nil
		}
		return fmt.Errorf("reading queue %s: %w", q.path, err)
	}
	lines, errs := parse(data)
	for _, e := range errs {
		log.Printf("WARN: %s: %v, line skipped", q.path, e)
	}
	q.lines, q.errs = lines, errs
	return nil
}

// Save writes the in-memory queue back to disk.
func (q *Queue) Save() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.saveLocked()
}

func (q *Queue) saveLocked() error {
	return util.WriteFileAtomic(q.path, format(q.lines), 0o644)
}

// Warnings returns the lines skipped by the last load.
func (q *Queue) Warnings() []*LineError {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*LineError, len(q.errs))
	copy(out, q.errs)
	return out
}

// List returns the pending entries in file order.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entriesLocked()
}

func (q *Queue) entriesLocked() []Entry {
	var out []Entry
	for _, l := range q.lines {
		if l.entry != nil {
			out = append(out, *l.entry)
		}
	}
	return out
}

// Len returns the number of pending entries.
func (q *Queue) Len() int { return len(q.List()) }

// URL resolves an entry to its absolute URL.
func (q *Queue) URL(e Entry) (string, error) {
	return q.catalog.URL(e.Target)
}

func (q *Queue) key(e Entry) string {
	if u, err := q.catalog.URL(e.Target); err == nil {
		return u
	}
	return e.Dataset + "\x00" + e.Platform + "\x00" + e.Path
}

// Enqueue inserts an entry at the head or tail. An entry whose URL is
// already queued is rejected with ErrAlreadyQueued.
func (q *Queue) Enqueue(e Entry, pos Position) error {
	if err := validate(e); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(); err != nil {
		return err
	}
	k := q.key(e)
	for _, l := range q.lines {
		if l.entry != nil && q.key(*l.entry) == k {
			return fmt.Errorf("%w: %s", ErrAlreadyQueued, e.Title)
		}
	}

	nl := line{raw: formatEntry(e), entry: &e}
	if pos == Head {
		q.lines = append([]line{nl}, q.lines...)
	} else {
		q.lines = append(q.lines, nl)
	}
	return q.saveLocked()
}

// Remove deletes the entry with the same URL as e. It returns ErrNotFound
// when nothing matched.
func (q *Queue) Remove(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(); err != nil {
		return err
	}
	k := q.key(e)
	for i, l := range q.lines {
		if l.entry != nil && q.key(*l.entry) == k {
			q.lines = append(q.lines[:i], q.lines[i+1:]...)
			return q.saveLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, e.Title)
}

// DequeueMatching removes the entry identified by s: an exact absolute URL,
// relative path or title (ignoring case) first, then a title substring. A
// substring that matches several entries removes nothing and returns
// ErrAmbiguous.
func (q *Queue) DequeueMatching(s string) (Entry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Entry{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.loadLocked(); err != nil {
		return Entry{}, err
	}

	idx := q.findLocked(s)
	switch len(idx) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, s)
	case 1:
	default:
		return Entry{}, fmt.Errorf("%w: %q matches %d entries", ErrAmbiguous, s, len(idx))
	}

	removed := *q.lines[idx[0]].entry
	q.lines = append(q.lines[:idx[0]], q.lines[idx[0]+1:]...)
	return removed, q.saveLocked()
}

func (q *Queue) findLocked(s string) []int {
	fold := listing.FoldKey(s)
	canon := listing.CanonicalPath(s)
	if t, ok := q.catalog.Split(s); ok {
		if u, err := q.catalog.URL(t); err == nil {
			canon = u
		}
	}
	var exact []int
	for i, l := range q.lines {
		if l.entry == nil {
			continue
		}
		e := *l.entry
		path := listing.CanonicalPath(e.Path)
		full := path
		if e.Platform != "" {
			full = catalog.PlatformFragment(e.Platform) + path
		}
		if q.key(e) == canon || path == canon || full == canon ||
			listing.Decode(e.Path) == s || listing.FoldKey(e.Title) == fold {
			exact = append(exact, i)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	var partial []int
	for i, l := range q.lines {
		if l.entry != nil && strings.Contains(listing.FoldKey(l.entry.Title), fold) {
			partial = append(partial, i)
		}
	}
	return partial
}

func validate(e Entry) error {
	if e.Dataset == "" || e.Path == "" {
		return fmt.Errorf("queue entry needs a dataset and a path")
	}
	for _, s := range []string{e.Dataset, e.Platform, e.Path, e.Title} {
		if strings.ContainsAny(s, "\t\r\n") {
			return fmt.Errorf("queue entry fields cannot contain tabs or newlines")
		}
	}
	return nil
}

func formatEntry(e Entry) string {
	title := e.Title
	if title == "" {
		title = listing.Decode(lastSegment(e.Path))
	}
	return strings.Join([]string{
		"dataset=" + e.Dataset,
		"platform=" + e.Platform,
		"path=" + e.Path,
		"title=" + title,
	}, "\t")
}

func lastSegment(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// ParseLine decodes one queue line.
func ParseLine(s string) (Entry, error) {
	var e Entry
	seen := make(map[string]bool)
	for _, tok := range strings.Split(s, "\t") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			return Entry{}, fmt.Errorf("token %q is not key=value", tok)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if seen[k] {
			return Entry{}, fmt.Errorf("duplicate key %q", k)
		}
		seen[k] = true
		switch k {
		case "dataset":
			e.Dataset = v
		case "platform":
			e.Platform = v
		case "path":
			e.Path = strings.TrimPrefix(v, "/")
		case "title":
			e.Title = v
		default:
			return Entry{}, fmt.Errorf("unknown key %q", k)
		}
	}
	if e.Dataset == "" {
		return Entry{}, fmt.Errorf("missing dataset")
	}
	if e.Path == "" {
		return Entry{}, fmt.Errorf("missing path")
	}
	if e.Title == "" {
		e.Title = listing.Decode(lastSegment(e.Path))
	}
	return e, nil
}

func parse(data []byte) ([]line, []*LineError) {
	var lines []line
	var errs []*LineError
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		raw := strings.TrimRight(sc.Text(), "\r")
		t := strings.TrimSpace(raw)
		if t == "" || strings.HasPrefix(t, "#") {
			lines = append(lines, line{raw: raw})
			continue
		}
		e, err := ParseLine(raw)
		if err != nil {
			errs = append(errs, &LineError{Line: n, Text: raw, Err: err})
			lines = append(lines, line{raw: raw})
			continue
		}
		lines = append(lines, line{raw: raw, entry: &e})
	}
	return lines, errs
}

func format(lines []line) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
