package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "queue.txt")

	if err := WriteFileAtomic(path, []byte("one\n"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two\n"), 0o644); err != nil {
		t.Fatalf("second write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != "two\n" {
		t.Fatalf("unexpected content %q", data)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "nested", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestTruncatePath(t *testing.T) {
	if got := TruncatePath("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := TruncatePath("Redump/Sony - PlayStation/", 12); got != "...yStation/" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestFormatProgress(t *testing.T) {
	if got := FormatProgress(512, 0); got != "512 B" {
		t.Fatalf("unexpected %q", got)
	}
	if got := FormatProgress(1024, 2048); got != "1.0 KiB / 2.0 KiB" {
		t.Fatalf("unexpected %q", got)
	}
}
