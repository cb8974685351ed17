package listing

import (
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
)

// Kind tells directories and files apart.
type Kind int

const (
	Directory Kind = iota
	File
)

func (k Kind) String() string {
	if k == Directory {
		return "dir"
	}
	return "file"
}

// Entry is one directory or file reference in a listing.
type Entry struct {
	Kind Kind
	Name string // decoded, human-readable
	Href string // as published, percent-encoded; ends in "/" iff Directory
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == Directory }

// Segment returns the href without its trailing slash.
func (e Entry) Segment() string { return strings.TrimSuffix(e.Href, "/") }

// Listing is the parsed content of one remote directory, in server order
// unless Options.SortDirectories was set.
type Listing struct {
	Root    string // dataset root URL
	Path    string // percent-encoded path below Root, "" or ending in "/"
	Entries []Entry
}

// URL returns the absolute URL the listing was fetched from.
func (l Listing) URL() string { return l.Root + l.Path }

// Dirs returns the number of directory entries.
func (l Listing) Dirs() int {
	n := 0
	for _, e := range l.Entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

// Options controls parsing.
type Options struct {
	Root string
	Path string
	// SortDirectories orders directory entries case-insensitively by name
	// ahead of files. Files always keep server order.
	SortDirectories bool
}

// navigationLinks are site links that share the listing page on some mirrors.
var navigationLinks = map[string]bool{
	"contact":  true,
	"donate":   true,
	"faq":      true,
	"upload":   true,
	"discord":  true,
	"telegram": true,
	"hshop":    true,
	"home":     true,
}

// Parse extracts entries from a directory index document. Anything that
// cannot be parsed yields an empty listing rather than an error, so callers
// can tell "no entries" apart from a failed fetch.
func Parse(r io.Reader, opts Options) Listing {
	l := Listing{Root: opts.Root, Path: opts.Path}

	doc, err := html.Parse(r)
	if err != nil {
		return l
	}

	seen := map[string]struct{}{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if entry, ok := parseAnchor(n); ok {
				if _, dup := seen[entry.Href]; !dup {
					seen[entry.Href] = struct{}{}
					l.Entries = append(l.Entries, entry)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if opts.SortDirectories {
		SortDirectories(l.Entries)
	}
	return l
}

// SortDirectories moves directories ahead of files and orders them by
// case-folded name. Files keep their relative order.
func SortDirectories(entries []Entry) {
	caser := cases.Fold()
	keys := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			keys[e.Href] = caser.String(e.Name)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		if !a.IsDir() {
			return false
		}
		return keys[a.Href] < keys[b.Href]
	})
}

// FoldKey returns the case-folded form of s used for case-insensitive
// comparisons.
func FoldKey(s string) string {
	return cases.Fold().String(s)
}

func parseAnchor(a *html.Node) (Entry, bool) {
	var href, title string
	for _, attr := range a.Attr {
		switch attr.Key {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "title":
			title = strings.TrimSpace(attr.Val)
		}
	}
	if !isContentLink(href) {
		return Entry{}, false
	}

	seg := strings.TrimSuffix(href, "/")
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if seg == "" || seg == "." || seg == ".." {
		return Entry{}, false
	}

	// Titles are already human-readable; only the href is escaped.
	name := title
	if name == "" {
		name = Decode(seg)
	}
	name = strings.TrimSuffix(name, "/")
	if strings.EqualFold(name, "Parent Directory") || strings.EqualFold(name, "Parent directory") {
		return Entry{}, false
	}

	kind := File
	if strings.HasSuffix(href, "/") {
		kind = Directory
	}
	return Entry{Kind: kind, Name: name, Href: href}, true
}

// isContentLink accepts same-origin relative links that point below the
// current directory.
func isContentLink(href string) bool {
	if href == "" {
		return false
	}
	switch href[0] {
	case '#', '?', '/':
		return false
	}
	if strings.ContainsAny(href, "?#") {
		return false
	}
	lower := strings.ToLower(href)
	if strings.Contains(lower, "://") || strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "data:") {
		return false
	}
	if href == "../" || href == ".." || href == "./" || strings.HasPrefix(href, "../") {
		return false
	}

	base := strings.TrimSuffix(lower, "/")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		if navigationLinks[base[:dot]] {
			return false
		}
	}
	return !navigationLinks[base]
}
