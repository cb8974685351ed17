package catalog

import (
	"fmt"
	"strings"

	"github.com/JohnDeved/rombrowse/internal/listing"
)

// Dataset is one of the alternate root catalogs exposed by the origin.
type Dataset struct {
	Name string
	Root string // absolute URL, always ends in "/"
}

// Target identifies a remote entry independently of any parsed listing.
// Path is relative to the platform directory and stays percent-encoded.
type Target struct {
	Dataset  string
	Platform string // decoded platform directory name, empty at the dataset root
	Path     string
	Title    string
}

// Catalog resolves dataset names to their root URLs.
type Catalog struct {
	datasets []Dataset
}

// New builds a catalog. Roots are normalized to end in "/".
func New(datasets []Dataset) *Catalog {
	c := &Catalog{datasets: make([]Dataset, 0, len(datasets))}
	for _, ds := range datasets {
		root := strings.TrimSpace(ds.Root)
		if !strings.HasSuffix(root, "/") {
			root += "/"
		}
		c.datasets = append(c.datasets, Dataset{Name: ds.Name, Root: root})
	}
	return c
}

// Datasets returns the configured datasets in order.
func (c *Catalog) Datasets() []Dataset {
	out := make([]Dataset, len(c.datasets))
	copy(out, c.datasets)
	return out
}

// Lookup finds a dataset by case-insensitive name.
func (c *Catalog) Lookup(name string) (Dataset, bool) {
	for _, ds := range c.datasets {
		if strings.EqualFold(ds.Name, strings.TrimSpace(name)) {
			return ds, true
		}
	}
	return Dataset{}, false
}

// URL reconstructs the absolute URL of a target:
// dataset root + encoded platform segment + canonical relative path.
func (c *Catalog) URL(t Target) (string, error) {
	ds, ok := c.Lookup(t.Dataset)
	if !ok {
		return "", fmt.Errorf("unknown dataset %q", t.Dataset)
	}
	return ds.Root + PlatformFragment(t.Platform) + listing.CanonicalPath(strings.TrimPrefix(t.Path, "/")), nil
}

// DirURL returns the absolute URL of a directory below a dataset root.
// relPath is percent-encoded and may be empty.
func (d Dataset) DirURL(relPath string) string {
	relPath = strings.TrimPrefix(relPath, "/")
	if relPath != "" && !strings.HasSuffix(relPath, "/") {
		relPath += "/"
	}
	return d.Root + relPath
}

// PlatformFragment encodes a decoded platform name as a directory segment.
func PlatformFragment(platform string) string {
	if platform == "" {
		return ""
	}
	return listing.EncodeSegment(platform) + "/"
}

// Split turns an absolute URL back into a target, using the longest
// matching dataset root. The first path segment below the root is the platform.
func (c *Catalog) Split(rawURL string) (Target, bool) {
	var best Dataset
	for _, ds := range c.datasets {
		if strings.HasPrefix(rawURL, ds.Root) && len(ds.Root) > len(best.Root) {
			best = ds
		}
	}
	if best.Root == "" {
		return Target{}, false
	}
	rest := strings.TrimPrefix(rawURL, best.Root)
	t := Target{Dataset: best.Name}
	if i := strings.Index(rest, "/"); i >= 0 {
		t.Platform = listing.Decode(rest[:i])
		t.Path = listing.CanonicalPath(rest[i+1:])
	} else {
		t.Path = listing.CanonicalPath(rest)
	}
	t.Title = listing.Decode(lastSegment(t.Path))
	return t, true
}

func lastSegment(p string) string {
	p = strings.TrimSuffix(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
