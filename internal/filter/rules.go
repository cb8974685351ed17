package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/util"
)

// Rules is the persisted exclusion rule set: one substring per line,
// blank lines and lines starting with "#" ignored. Every mutation re-reads
// the file and rewrites it whole, keeping comments in place.
type Rules struct {
	mu    sync.Mutex
	path  string
	lines []string
}

// LoadRules reads the rule file at path. A missing file is an empty set.
func LoadRules(path string) (*Rules, error) {
	r := &Rules{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the rule file location.
func (r *Rules) Path() string { return r.path }

// Reload re-reads the rule file from disk.
func (r *Rules) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

func (r *Rules) readLocked() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.lines = nil
			return nil
		}
		return fmt.Errorf("reading filter rules %s: %w", r.path, err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), " \t\r"))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading filter rules %s: %w", r.path, err)
	}
	r.lines = lines
	return nil
}

func (r *Rules) writeLocked() error {
	if r.path == "" {
		return nil
	}
	var buf bytes.Buffer
	for _, l := range r.lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return util.WriteFileAtomic(r.path, buf.Bytes(), 0o644)
}

func isRuleLine(l string) bool {
	t := strings.TrimSpace(l)
	return t != "" && !strings.HasPrefix(t, "#")
}

// Patterns returns the active exclusion substrings in file order.
func (r *Rules) Patterns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if isRuleLine(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

// Filters converts the rules into exclusion filters.
func (r *Rules) Filters() []Filter {
	patterns := r.Patterns()
	out := make([]Filter, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, Filter{Text: p, Source: SourceRule})
	}
	return out
}

// Add appends an exclusion. It returns false when an equal rule (ignoring
// case) already exists.
func (r *Rules) Add(text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("filter text cannot be empty")
	}
	if strings.HasPrefix(text, "#") {
		return false, fmt.Errorf("filter text cannot start with '#'")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readLocked(); err != nil {
		return false, err
	}
	key := listing.FoldKey(text)
	for _, l := range r.lines {
		if isRuleLine(l) && listing.FoldKey(strings.TrimSpace(l)) == key {
			return false, nil
		}
	}
	r.lines = append(r.lines, text)
	return true, r.writeLocked()
}

// Remove deletes every rule equal to text (ignoring case). It returns
// false when nothing matched.
func (r *Rules) Remove(text string) (bool, error) {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.readLocked(); err != nil {
		return false, err
	}
	key := listing.FoldKey(text)
	kept := r.lines[:0:0]
	removed := false
	for _, l := range r.lines {
		if isRuleLine(l) && listing.FoldKey(strings.TrimSpace(l)) == key {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	if !removed {
		return false, nil
	}
	r.lines = kept
	return true, r.writeLocked()
}
