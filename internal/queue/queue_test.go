package queue

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JohnDeved/rombrowse/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Dataset{
		{Name: "Redump", Root: "https://example.test/files/Redump/"},
		{Name: "No-Intro", Root: "https://example.test/files/No-Intro/"},
	})
}

func entry(platform, path, title string) Entry {
	return Entry{catalog.Target{Dataset: "Redump", Platform: platform, Path: path, Title: title}}
}

func openTemp(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.txt")
	q, err := Open(path, testCatalog())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return q, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestEnqueueHead(t *testing.T) {
	q, path := openTemp(t)
	first := entry("Sony - PlayStation", "Alpha%20(USA).zip", "Alpha (USA).zip")
	second := entry("Sony - PlayStation", "Beta%20(USA).zip", "Beta (USA).zip")

	if err := q.Enqueue(first, Head); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", lines)
	}

	if err := q.Enqueue(second, Head); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	lines = readLines(t, path)
	if len(lines) != 2 || !strings.Contains(lines[0], "title=Beta (USA).zip") {
		t.Fatalf("expected second entry first, got %q", lines)
	}
	want := "dataset=Redump\tplatform=Sony - PlayStation\tpath=Beta%20(USA).zip\ttitle=Beta (USA).zip"
	if lines[0] != want {
		t.Fatalf("line = %q, want %q", lines[0], want)
	}
}

func TestEnqueueTailAndDuplicate(t *testing.T) {
	q, _ := openTemp(t)
	a := entry("P", "a.zip", "a.zip")
	b := entry("P", "b.zip", "b.zip")
	q.Enqueue(a, Tail)
	q.Enqueue(b, Tail)

	got := q.List()
	if len(got) != 2 || got[0].Path != "a.zip" || got[1].Path != "b.zip" {
		t.Fatalf("unexpected order %+v", got)
	}
	if err := q.Enqueue(a, Head); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("duplicate enqueue = %v, want ErrAlreadyQueued", err)
	}
	u, err := q.URL(got[0])
	if err != nil || u != "https://example.test/files/Redump/P/a.zip" {
		t.Fatalf("URL = %q, %v", u, err)
	}
}

func TestRoundTripPreservesContent(t *testing.T) {
	content := "# pending downloads\n" +
		"dataset=Redump\tplatform=Sony - PlayStation\tpath=Game%20(USA).zip\ttitle=Game (USA).zip\n" +
		"\n" +
		"dataset=No-Intro\tplatform=Nintendo - Game Boy\tpath=Tetris%20(World).zip\ttitle=Tetris (World).zip\n"
	path := filepath.Join(t.TempDir(), "queue.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	q, err := Open(path, testCatalog())
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", q.Len())
	}
	if err := q.Save(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != content {
		t.Fatalf("round trip changed content:\n%q\n%q", data, content)
	}
}

func TestCorruptLineSkippedWithWarning(t *testing.T) {
	content := "dataset=Redump\tplatform=P\tpath=a.zip\ttitle=a.zip\n" +
		"this line is garbage\n" +
		"dataset=Redump\tplatform=P\tpath=b.zip\ttitle=b.zip\n"
	path := filepath.Join(t.TempDir(), "queue.txt")
	os.WriteFile(path, []byte(content), 0o644)

	q, err := Open(path, testCatalog())
	if err != nil {
		t.Fatalf("Open should not fail on a corrupt line: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 valid entries, got %d", q.Len())
	}
	w := q.Warnings()
	if len(w) != 1 || w[0].Line != 2 {
		t.Fatalf("unexpected warnings %+v", w)
	}

	if _, err := q.DequeueMatching("a.zip"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "this line is garbage\n") {
		t.Fatalf("corrupt line should be kept for manual repair: %q", data)
	}
}

func TestDequeueMatching(t *testing.T) {
	q, _ := openTemp(t)
	q.Enqueue(entry("P", "Sonic%20(USA).zip", "Sonic (USA).zip"), Tail)
	q.Enqueue(entry("P", "Sonic%202%20(USA).zip", "Sonic 2 (USA).zip"), Tail)
	q.Enqueue(entry("P", "Tails%20(USA).zip", "Tails (USA).zip"), Tail)

	if _, err := q.DequeueMatching("sonic"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("ambiguous substring = %v", err)
	}
	if q.Len() != 3 {
		t.Fatal("ambiguous match must not remove anything")
	}

	got, err := q.DequeueMatching("sonic (usa).zip")
	if err != nil || got.Title != "Sonic (USA).zip" {
		t.Fatalf("exact title match = %+v, %v", got, err)
	}
	got, err = q.DequeueMatching("https://example.test/files/Redump/P/Tails%20(USA).zip")
	if err != nil || got.Title != "Tails (USA).zip" {
		t.Fatalf("URL match = %+v, %v", got, err)
	}
	if _, err := q.DequeueMatching("zelda"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing match = %v", err)
	}
	if _, err := q.DequeueMatching("2 (U"); err != nil {
		t.Fatalf("unique substring should match: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, have %d", q.Len())
	}
}

func TestExternalEditsAreSeen(t *testing.T) {
	q, path := openTemp(t)
	q.Enqueue(entry("P", "a.zip", "a.zip"), Tail)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("dataset=Redump\tplatform=P\tpath=hand.zip\ttitle=hand.zip\n")
	f.Close()

	if err := q.Enqueue(entry("P", "b.zip", "b.zip"), Tail); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 3 {
		t.Fatalf("hand-edited line lost, have %d entries", q.Len())
	}
}

func TestParseLine(t *testing.T) {
	e, err := ParseLine("dataset=Redump\tpath=Root%20File.zip")
	if err != nil {
		t.Fatal(err)
	}
	if e.Platform != "" || e.Title != "Root File.zip" {
		t.Fatalf("unexpected entry %+v", e)
	}
	for _, bad := range []string{"path=x.zip", "dataset=Redump", "dataset=R\tcolor=blue\tpath=x", "dataset=R\tnoequals"} {
		if _, err := ParseLine(bad); err == nil {
			t.Fatalf("ParseLine(%q) should fail", bad)
		}
	}
}

func TestEnqueueDuplicateAcrossEscaping(t *testing.T) {
	q, _ := openTemp(t)
	cat := testCatalog()
	raw, ok := cat.Split("https://example.test/files/Redump/Sony%20-%20PlayStation/Crash%20(USA).zip")
	if !ok {
		t.Fatal("Split failed")
	}
	if err := q.Enqueue(Entry{raw}, Tail); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	escaped := entry("Sony - PlayStation", "Crash%20%28USA%29.zip", "Crash (USA).zip")
	if err := q.Enqueue(escaped, Tail); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("same file with different escaping = %v, want ErrAlreadyQueued", err)
	}
	if _, err := q.DequeueMatching("https://example.test/files/Redump/Sony%20-%20PlayStation/Crash%20%28USA%29.zip"); err != nil {
		t.Fatalf("dequeue by escaped URL: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue len = %d", q.Len())
	}
}
