package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(retries int) *Client {
	return New(Options{RequestsPerSecond: 1000, Retries: retries})
}

func TestFetch_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		io.WriteString(w, "<a href=\"x.zip\">x</a>")
	}))
	defer srv.Close()

	body, err := newTestClient(1).Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(body) != "<a href=\"x.zip\">x</a>" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("expected browser user agent, got %q", gotUA)
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	body, err := newTestClient(3).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(body) != "ok" || hits.Load() != 3 {
		t.Fatalf("expected success on third attempt, body=%q hits=%d", body, hits.Load())
	}
}

func TestFetch_DoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(3).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", fe.StatusCode)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", hits.Load())
	}
}

func TestFetch_ExhaustsRetriesOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(3).Fetch(context.Background(), url)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != 0 || !fe.Temporary() {
		t.Fatalf("expected transport error, got %+v", fe)
	}
}

func TestListDirectory_ParsesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Redump/Sub/" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `<pre><a href="../">Parent</a><a href="b/">b/</a><a href="A/">A/</a></pre>`)
	}))
	defer srv.Close()

	l, err := newTestClient(1).ListDirectory(context.Background(), srv.URL+"/Redump/", "Sub", true)
	if err != nil {
		t.Fatalf("ListDirectory returned error: %v", err)
	}
	if l.Path != "Sub/" || len(l.Entries) != 2 || l.Entries[0].Href != "A/" {
		t.Fatalf("unexpected listing: %+v", l)
	}
}

func TestOpenFile_ResumeAndRangeEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Range") {
		case "":
			io.WriteString(w, "hello")
		case "bytes=2-":
			w.Header().Set("Content-Range", "bytes 2-4/5")
			w.WriteHeader(http.StatusPartialContent)
			io.WriteString(w, "llo")
		default:
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}
	}))
	defer srv.Close()

	c := newTestClient(1)
	body, _, resumed, err := c.OpenFile(context.Background(), srv.URL+"/f.bin", 2)
	if err != nil {
		t.Fatalf("OpenFile returned error: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if !resumed || string(data) != "llo" {
		t.Fatalf("expected resumed tail, got resumed=%v data=%q", resumed, data)
	}

	if _, _, _, err := c.OpenFile(context.Background(), srv.URL+"/f.bin", 5); !errors.Is(err, ErrRangeNotSatisfiable) {
		t.Fatalf("expected ErrRangeNotSatisfiable, got %v", err)
	}
}

func TestOpenFile_RangeErrorReportsRemoteSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes */5")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	_, _, _, err := newTestClient(1).OpenFile(context.Background(), srv.URL+"/f.bin", 9)
	var rerr *RangeError
	if !errors.As(err, &rerr) || !errors.Is(err, ErrRangeNotSatisfiable) {
		t.Fatalf("expected RangeError, got %v", err)
	}
	if rerr.Size != 5 || rerr.Offset != 9 {
		t.Fatalf("range error = %+v", rerr)
	}
}

func TestOpenFile_RefusesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	if _, _, _, err := newTestClient(1).OpenFile(context.Background(), srv.URL+"/game.zip", 0); err == nil {
		t.Fatal("expected HTML response to be refused")
	}
}
