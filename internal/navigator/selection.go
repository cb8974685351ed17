package navigator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/listing"
)

var (
	// ErrInvalidSelection covers out-of-range numbers, empty selections and
	// directories where only files are allowed. State is left unchanged.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrNoMatches is returned when a search would empty the view.
	ErrNoMatches = errors.New("no matches")
)

// maxRange bounds a single "a:b" token.
const maxRange = 10000

// Selected is one resolved entry ready for hand-off.
type Selected struct {
	Number int
	Entry  listing.Entry
	Target catalog.Target
	URL    string
}

// Selection is the result of resolving displayed numbers.
type Selection struct {
	Files   []Selected
	Skipped []Selected // directories, which must be opened one at a time
}

// Targets returns the catalog targets of the selected files.
func (s Selection) Targets() []catalog.Target {
	out := make([]catalog.Target, len(s.Files))
	for i, f := range s.Files {
		out[i] = f.Target
	}
	return out
}

// ParseIndices reads a selection expression such as "4", "2:5", "2-5" or
// "1,3,7:9". Numbers are 1-based; duplicates are dropped, first occurrence
// wins.
func ParseIndices(expr string) ([]int, error) {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty selection", ErrInvalidSelection)
	}

	seen := make(map[int]bool)
	var out []int
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}

	for _, f := range fields {
		sep := strings.IndexAny(f, ":-")
		if sep < 0 {
			n, err := parseNumber(f)
			if err != nil {
				return nil, err
			}
			add(n)
			continue
		}
		lo, err := parseNumber(f[:sep])
		if err != nil {
			return nil, err
		}
		hi, err := parseNumber(f[sep+1:])
		if err != nil {
			return nil, err
		}
		if hi < lo {
			return nil, fmt.Errorf("%w: range %q is reversed", ErrInvalidSelection, f)
		}
		if hi-lo >= maxRange {
			return nil, fmt.Errorf("%w: range %q is too large", ErrInvalidSelection, f)
		}
		for n := lo; n <= hi; n++ {
			add(n)
		}
	}
	return out, nil
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q is not a positive number", ErrInvalidSelection, s)
	}
	return n, nil
}

// LooksLikeSelection reports whether expr only contains selection syntax.
func LooksLikeSelection(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	for _, r := range expr {
		if (r < '0' || r > '9') && !strings.ContainsRune(":-, ", r) {
			return false
		}
	}
	return true
}
