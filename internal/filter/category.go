package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Category is a named session toggle keyed by a parenthetical tag.
type Category struct {
	Name string
	Tag  string // e.g. "(DLC"
}

// Categories lists the toggles offered in every directory.
var Categories = []Category{
	{Name: "Addon", Tag: "(Addon"},
	{Name: "DLC", Tag: "(DLC"},
	{Name: "Update", Tag: "(Update"},
	{Name: "Patch", Tag: "(Patch"},
	{Name: "Extra", Tag: "(Extra"},
	{Name: "Mac", Tag: "(Mac"},
	{Name: "Linux", Tag: "(Linux"},
	{Name: "XBLIG", Tag: "(XBLIG"},
	{Name: "Demo", Tag: "(Demo"},
	{Name: "Beta", Tag: "(Beta"},
	{Name: "Proto", Tag: "(Proto"},
	{Name: "Japan", Tag: "(Japan"},
	{Name: "Korea", Tag: "(Korea"},
	{Name: "China", Tag: "(China"},
}

// LookupCategory accepts either the name ("DLC") or the tag ("(DLC").
func LookupCategory(key string) (Category, bool) {
	key = strings.TrimSpace(key)
	key = strings.TrimSuffix(strings.TrimPrefix(key, "("), ")")
	for _, c := range Categories {
		if strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return Category{}, false
}

// DefaultRule hides categories by default for matching locations.
// Empty Dataset or Platform match anything; Platform is a prefix match on
// the decoded platform directory name.
type DefaultRule struct {
	Dataset  string
	Platform string
	Hidden   []string
}

// DefaultRules is the declarative per-dataset default table. Later rules
// add to earlier ones.
var DefaultRules = []DefaultRule{
	{Hidden: []string{"Extra", "Mac", "Linux", "Patch"}},
	{Dataset: "No-Intro", Platform: "Microsoft - Xbox 360 (Digital)", Hidden: []string{"XBLIG"}},
	{Dataset: "No-Intro", Platform: "Microsoft - Xbox 360", Hidden: []string{"XBLIG"}},
}

func (r DefaultRule) applies(dataset, platform string) bool {
	if r.Dataset != "" && !strings.EqualFold(r.Dataset, dataset) {
		return false
	}
	if r.Platform != "" && !strings.HasPrefix(strings.ToLower(platform), strings.ToLower(r.Platform)) {
		return false
	}
	return true
}

// Toggles holds the hidden state of each category for one directory.
type Toggles map[string]bool

// DefaultToggles builds the toggle set for a location from DefaultRules.
func DefaultToggles(dataset, platform string) Toggles {
	t := make(Toggles, len(Categories))
	for _, c := range Categories {
		t[c.Name] = false
	}
	for _, r := range DefaultRules {
		if !r.applies(dataset, platform) {
			continue
		}
		for _, name := range r.Hidden {
			t[name] = true
		}
	}
	return t
}

// Toggle flips one category and returns its new hidden state.
func (t Toggles) Toggle(key string) (bool, error) {
	c, ok := LookupCategory(key)
	if !ok {
		return false, fmt.Errorf("unknown category %q", key)
	}
	t[c.Name] = !t[c.Name]
	return t[c.Name], nil
}

// Hidden reports whether a category is currently hidden.
func (t Toggles) Hidden(name string) bool {
	c, ok := LookupCategory(name)
	return ok && t[c.Name]
}

// HiddenNames returns the hidden category names in table order.
func (t Toggles) HiddenNames() []string {
	var names []string
	for _, c := range Categories {
		if t[c.Name] {
			names = append(names, c.Name)
		}
	}
	return names
}

// Filters converts hidden categories into exclusion filters.
func (t Toggles) Filters() []Filter {
	var out []Filter
	for _, c := range Categories {
		if t[c.Name] {
			out = append(out, Filter{Text: c.Tag, Source: SourceCategory})
		}
	}
	return out
}

// Clone returns an independent copy.
func (t Toggles) Clone() Toggles {
	out := make(Toggles, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// String renders "DLC:on Mac:off ..." for display, sorted by name.
func (t Toggles) String() string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		state := "shown"
		if t[n] {
			state = "hidden"
		}
		parts = append(parts, n+":"+state)
	}
	return strings.Join(parts, " ")
}
