package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JohnDeved/rombrowse/internal/client"
)

const payload = "0123456789"

func newTestDownloader(retries int) *Downloader {
	c := client.New(client.Options{RequestsPerSecond: 1000})
	d := New(c, Options{Retries: retries})
	d.FreeSpace = func(string) (uint64, error) { return 1 << 40, nil }
	return d
}

// truncated sends the first half of the payload and drops the connection.
func truncated(w http.ResponseWriter) {
	w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, payload[:5])
	w.(http.Flusher).Flush()
	panic(http.ErrAbortHandler)
}

func TestDownload_AlreadyExistsMakesNoRequests(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	os.WriteFile(dest, []byte("old"), 0o644)

	res := newTestDownloader(3).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != AlreadyExists {
		t.Fatalf("outcome = %v, want AlreadyExists", res.Outcome)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected zero requests, got %d", hits.Load())
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "old" {
		t.Fatal("existing file was modified")
	}
}

func TestDownload_EmptyExistingFileIsReplaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	os.WriteFile(dest, nil, 0o644)

	res := newTestDownloader(1).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != Success {
		t.Fatalf("outcome = %v (%v), want Success", res.Outcome, res.Err)
	}
}

func TestDownload_SuccessRenamesPart(t *testing.T) {
	var progressed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "sub", "game.zip")
	d := newTestDownloader(1)
	d.SetOnProgress(func(p Progress) { progressed.Add(1) })

	res := d.Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != Success || res.Record.Status != StatusSucceeded {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != payload {
		t.Fatalf("dest content = %q, %v", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatal("part file left behind")
	}
	if res.Record.Bytes != int64(len(payload)) || res.Record.Attempts != 1 {
		t.Fatalf("record = %+v", res.Record)
	}
	if progressed.Load() == 0 {
		t.Fatal("expected progress callbacks")
	}
}

func TestDownload_RetryResumesFromPart(t *testing.T) {
	var hits atomic.Int32
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Range"))
		if hits.Add(1) == 1 {
			truncated(w)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 5-9/%d", len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, payload[5:])
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	res := newTestDownloader(3).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != Success {
		t.Fatalf("outcome = %v (%v)", res.Outcome, res.Err)
	}
	if res.Record.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Record.Attempts)
	}
	if len(ranges) != 2 || ranges[1] != "bytes=5-" {
		t.Fatalf("unexpected Range headers %q", ranges)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != payload {
		t.Fatalf("dest content = %q", data)
	}
}

func TestDownload_ExhaustedRetriesLeaveNoPartialFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Range") == "" {
			truncated(w)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	res := newTestDownloader(3).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != Failed || res.Err == nil {
		t.Fatalf("result = %+v, want Failed", res)
	}
	if hits.Load() != 3 || res.Record.Attempts != 3 {
		t.Fatalf("expected 3 attempts, hits=%d record=%d", hits.Load(), res.Record.Attempts)
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist after failure", p)
		}
	}
}

func TestDownload_NetworkDownFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/game.zip"
	srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	res := newTestDownloader(3).Download(context.Background(), Request{URL: url, Dest: dest})
	var fe *client.FetchError
	if res.Outcome != Failed || !errors.As(res.Err, &fe) {
		t.Fatalf("result = %+v, want Failed with FetchError", res)
	}
	if res.Record.Attempts != 3 {
		t.Fatalf("attempts = %d", res.Record.Attempts)
	}
	if entries, _ := os.ReadDir(filepath.Dir(dest)); len(entries) != 0 {
		t.Fatalf("unexpected files left: %v", entries)
	}
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := newTestDownloader(3).Download(context.Background(), Request{
		URL: srv.URL + "/missing.zip", Dest: filepath.Join(t.TempDir(), "missing.zip"),
	})
	if res.Outcome != Failed || hits.Load() != 1 {
		t.Fatalf("outcome=%v hits=%d", res.Outcome, hits.Load())
	}
}

func TestDownload_ResumeCompleteFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Range") == fmt.Sprintf("bytes=%d-", len(payload)) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	os.WriteFile(dest, []byte(payload), 0o644)

	res := newTestDownloader(3).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest, Resume: true})
	if res.Outcome != Success || hits.Load() != 1 {
		t.Fatalf("outcome=%v hits=%d err=%v", res.Outcome, hits.Load(), res.Err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != payload {
		t.Fatalf("dest content = %q", data)
	}
}

func TestDownload_StaleOversizedPartIsReplaced(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Range") != "" {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(payload)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "game.zip")
	os.WriteFile(dest+".part", []byte("stale bytes from another file"), 0o644)

	res := newTestDownloader(3).Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if res.Outcome != Success || hits.Load() != 2 {
		t.Fatalf("outcome=%v hits=%d err=%v", res.Outcome, hits.Load(), res.Err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != payload {
		t.Fatalf("dest content = %q", data)
	}
}

func TestDownload_InsufficientSpace(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	d := newTestDownloader(3)
	d.FreeSpace = func(string) (uint64, error) { return 4, nil }
	dest := filepath.Join(t.TempDir(), "game.zip")
	res := d.Download(context.Background(), Request{URL: srv.URL + "/game.zip", Dest: dest})
	if !errors.Is(res.Err, ErrInsufficientSpace) || hits.Load() != 1 {
		t.Fatalf("err=%v hits=%d", res.Err, hits.Load())
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatal("part file left behind")
	}
}

func TestDestPath(t *testing.T) {
	got := DestPath("/dl", "Sub/Game%20(USA)%20%5BBIOS%5D.zip")
	if got != filepath.Join("/dl", "Game (USA) [BIOS].zip") {
		t.Fatalf("DestPath = %q", got)
	}
	if name := SanitizeName("a/b\\c"); strings.ContainsAny(name, "/\\") {
		t.Fatalf("SanitizeName left separators: %q", name)
	}
	if SanitizeName("..") != "download" {
		t.Fatal("dot names must be replaced")
	}
}
