package filter

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/JohnDeved/rombrowse/internal/listing"
)

func entries(names ...string) []listing.Entry {
	out := make([]listing.Entry, len(names))
	for i, n := range names {
		kind := listing.File
		if strings.HasSuffix(n, "/") {
			kind = listing.Directory
			n = strings.TrimSuffix(n, "/")
		}
		out[i] = listing.Entry{Kind: kind, Name: n, Href: listing.EncodeSegment(n)}
	}
	return out
}

func names(es []listing.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Name
	}
	return out
}

func TestApply_CaseInsensitiveSubtractive(t *testing.T) {
	in := entries("Game (USA).zip", "Game (Japan).zip", "Game (USA) (DLC).zip", "Other (europe).zip")
	got := names(Apply(in, []Filter{{Text: "japan"}, {Text: "(dlc"}}))
	want := []string{"Game (USA).zip", "Other (europe).zip"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Apply = %v, want %v", got, want)
	}
}

func TestApply_ComposesAndIsIdempotent(t *testing.T) {
	in := entries("A (Beta).zip", "B (Demo).zip", "C (Beta) (Demo).zip", "D.zip", "E (Proto).zip")
	f1 := []Filter{{Text: "beta"}}
	f2 := []Filter{{Text: "DEMO"}, {Text: "proto"}}

	chained := Apply(Apply(in, f1), f2)
	union := Apply(in, append(append([]Filter{}, f1...), f2...))
	if !reflect.DeepEqual(names(chained), names(union)) {
		t.Fatalf("chained %v != union %v", names(chained), names(union))
	}

	once := Apply(in, f1)
	twice := Apply(once, f1)
	if !reflect.DeepEqual(names(once), names(twice)) {
		t.Fatalf("Apply is not idempotent: %v vs %v", names(once), names(twice))
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := entries("Keep.zip", "Drop (Beta).zip", "Also Keep.zip")
	before := names(in)
	out := Apply(in, []Filter{{Text: "beta"}})
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	out[0].Name = "changed"
	if !reflect.DeepEqual(names(in), before) {
		t.Fatalf("input changed: %v", names(in))
	}
}

func TestApply_EmptyFilterIgnored(t *testing.T) {
	in := entries("a.zip", "b.zip")
	if got := Apply(in, []Filter{{Text: ""}}); len(got) != 2 {
		t.Fatalf("empty filter should exclude nothing, got %v", names(got))
	}
}

func TestMatch(t *testing.T) {
	in := entries("Sonic (USA).zip", "Tails (USA).zip", "sonic 2 (Japan).zip")
	if got := Match(in, "SONIC"); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("Match = %v", got)
	}
	if got := Match(in, "zelda"); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestDefaultToggles(t *testing.T) {
	tg := DefaultToggles("Redump", "Sony - PlayStation")
	for _, name := range []string{"Extra", "Mac", "Linux", "Patch"} {
		if !tg.Hidden(name) {
			t.Errorf("%s should be hidden by default", name)
		}
	}
	if tg.Hidden("XBLIG") || tg.Hidden("DLC") {
		t.Fatalf("unexpected hidden toggles: %v", tg.HiddenNames())
	}

	xbox := DefaultToggles("No-Intro", "Microsoft - Xbox 360 (Digital)")
	if !xbox.Hidden("XBLIG") {
		t.Fatal("XBLIG should be hidden for Xbox 360 digital")
	}
	if DefaultToggles("Redump", "Microsoft - Xbox 360").Hidden("XBLIG") {
		t.Fatal("XBLIG default is scoped to No-Intro")
	}
}

func TestToggles_ToggleAndFilters(t *testing.T) {
	tg := DefaultToggles("", "")
	hidden, err := tg.Toggle("(dlc)")
	if err != nil || !hidden {
		t.Fatalf("Toggle(dlc) = %v, %v", hidden, err)
	}
	if _, err := tg.Toggle("nonsense"); err == nil {
		t.Fatal("expected error for unknown category")
	}

	in := entries("Game.zip", "Game (DLC).zip", "Game (Extra).zip")
	got := names(Apply(in, tg.Filters()))
	if !reflect.DeepEqual(got, []string{"Game.zip"}) {
		t.Fatalf("Apply with toggles = %v", got)
	}

	c := tg.Clone()
	c.Toggle("DLC")
	if !tg.Hidden("DLC") {
		t.Fatal("Clone shares state with original")
	}
}

func TestRules_AddRemovePreservesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.txt")
	if err := os.WriteFile(path, []byte("# my filters\n(Beta\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got := r.Patterns(); !reflect.DeepEqual(got, []string{"(Beta"}) {
		t.Fatalf("Patterns = %v", got)
	}

	added, err := r.Add("Japan")
	if err != nil || !added {
		t.Fatalf("Add = %v, %v", added, err)
	}
	if added, _ := r.Add("japan"); added {
		t.Fatal("duplicate rule (ignoring case) should not be added")
	}
	removed, err := r.Remove("(beta")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if removed, _ := r.Remove("missing"); removed {
		t.Fatal("Remove of unknown rule reported success")
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# my filters\n") || !strings.Contains(string(data), "Japan\n") {
		t.Fatalf("unexpected file contents %q", data)
	}
	if _, err := r.Add("#comment"); err == nil {
		t.Fatal("expected error for comment-like rule")
	}
}

func TestRules_MissingFileIsEmpty(t *testing.T) {
	r, err := LoadRules(filepath.Join(t.TempDir(), "none.txt"))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(r.Filters()) != 0 {
		t.Fatalf("expected no filters, got %v", r.Filters())
	}
}

func TestWatchRules_ReloadsOnWrite(t *testing.T) {
	old := DebounceDuration
	DebounceDuration = 20 * time.Millisecond
	defer func() { DebounceDuration = old }()

	path := filepath.Join(t.TempDir(), "filters.txt")
	r, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan []string, 4)
	w, err := WatchRules(r, func(p []string) { got <- p })
	if err != nil {
		t.Fatalf("WatchRules: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("Demo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-got:
		if !reflect.DeepEqual(p, []string{"Demo"}) {
			t.Fatalf("reloaded patterns = %v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rules were not reloaded")
	}
}
