// Package filter narrows listings with subtractive, case-insensitive
// substring predicates.
package filter

import (
	"strings"

	"github.com/JohnDeved/rombrowse/internal/listing"
)

// Source records where a filter came from.
type Source int

const (
	SourceRule     Source = iota // persisted exclusion rule
	SourceCategory               // session category toggle
)

// Filter excludes every entry whose display name contains Text,
// ignoring case.
type Filter struct {
	Text   string
	Source Source
}

// Matches reports whether the filter excludes name.
func (f Filter) Matches(name string) bool {
	if f.Text == "" {
		return false
	}
	return strings.Contains(listing.FoldKey(name), listing.FoldKey(f.Text))
}

// Apply returns the entries not excluded by any filter. The input slice
// is never modified.
func Apply(entries []listing.Entry, filters []Filter) []listing.Entry {
	idx := Indices(entries, filters)
	out := make([]listing.Entry, len(idx))
	for i, j := range idx {
		out[i] = entries[j]
	}
	return out
}

// Indices returns the positions in entries that survive all filters.
func Indices(entries []listing.Entry, filters []Filter) []int {
	needles := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.Text != "" {
			needles = append(needles, listing.FoldKey(f.Text))
		}
	}

	out := make([]int, 0, len(entries))
outer:
	for i, e := range entries {
		if len(needles) > 0 {
			name := listing.FoldKey(e.Name)
			for _, n := range needles {
				if strings.Contains(name, n) {
					continue outer
				}
			}
		}
		out = append(out, i)
	}
	return out
}

// Match returns the positions in entries whose name contains query,
// ignoring case. It is the inclusive counterpart used by search.
func Match(entries []listing.Entry, query string) []int {
	q := listing.FoldKey(strings.TrimSpace(query))
	out := make([]int, 0, len(entries))
	for i, e := range entries {
		if q == "" || strings.Contains(listing.FoldKey(e.Name), q) {
			out = append(out, i)
		}
	}
	return out
}
