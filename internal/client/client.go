package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/logging"
)

// DefaultUserAgent mimics a desktop browser; the origin blocks obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

// maxIndexSize caps how much of a listing document is read.
const maxIndexSize = 32 << 20

// ErrRangeNotSatisfiable is returned by OpenFile when the requested resume
// offset is at or beyond the end of the remote file.
var ErrRangeNotSatisfiable = errors.New("range not satisfiable")

// RangeError carries the remote size reported with a 416 response.
type RangeError struct {
	Offset int64
	Size   int64 // from Content-Range "bytes */N", -1 when absent
}

func (e *RangeError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("range from byte %d not satisfiable", e.Offset)
	}
	return fmt.Sprintf("range from byte %d not satisfiable, remote size %d", e.Offset, e.Size)
}

func (e *RangeError) Is(target error) bool { return target == ErrRangeNotSatisfiable }

// unsatisfiedSize parses the complete length from "bytes */N".
func unsatisfiedSize(header string) int64 {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes */")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// FetchError reports a failure to reach the origin or a non-success status.
type FetchError struct {
	URL        string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request may succeed.
func (e *FetchError) Temporary() bool {
	if e.StatusCode != 0 {
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Options configures a Client.
type Options struct {
	RequestsPerSecond float64
	UserAgent         string
	Retries           int           // attempts per listing fetch
	Backoff           time.Duration // fixed wait between attempts
}

// Client handles HTTP requests to the origin.
type Client struct {
	listHTTP  *http.Client // Short timeout for directory listings
	dlHTTP    *http.Client // No timeout for file downloads (managed by context)
	limiter   *rate.Limiter
	userAgent string
	retries   int
	backoff   time.Duration
}

// New creates a new client.
func New(opts Options) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2.0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}

	return &Client{
		listHTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
		dlHTTP: &http.Client{
			// No timeout -- downloads are long-running and controlled by context.
			// The 30s timeout on http.Client includes body read time in Go,
			// which would kill any download larger than ~150MB.
		},
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		userAgent: opts.UserAgent,
		retries:   opts.Retries,
		backoff:   opts.Backoff,
	}
}

// Fetch retrieves a directory-listing document. Transient failures are
// retried a bounded number of times with a fixed backoff.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr *FetchError
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err := c.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !errors.As(err, &lastErr) {
			lastErr = &FetchError{URL: rawURL, Err: err}
		}
		if !lastErr.Temporary() || attempt == c.retries {
			break
		}
		log.Printf("WARN: fetch attempt %d/%d for %s failed: %v", attempt, c.retries, rawURL, lastErr)
		if err := sleep(ctx, c.backoff); err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", rawURL)
	logging.Debug("GET %s", rawURL)

	resp, err := c.listHTTP.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	return body, nil
}

// ListDirectory fetches and parses a directory listing.
// dirPath is percent-encoded and relative to root.
func (c *Client) ListDirectory(ctx context.Context, root, dirPath string, sortDirs bool) (listing.Listing, error) {
	dirPath = strings.TrimPrefix(dirPath, "/")
	if dirPath != "" && !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}
	doc, err := c.Fetch(ctx, root+dirPath)
	if err != nil {
		return listing.Listing{Root: root, Path: dirPath}, err
	}
	return listing.Parse(bytes.NewReader(doc), listing.Options{
		Root:            root,
		Path:            dirPath,
		SortDirectories: sortDirs,
	}), nil
}

// OpenFile initiates a download of a file, optionally resuming from offset.
// Returns the response body (caller must close), content length, and whether resume was accepted.
func (c *Client) OpenFile(ctx context.Context, fileURL string, resumeFrom int64) (io.ReadCloser, int64, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, false, err
	}

	// Derive the directory URL for the Referer header.
	referer := fileURL
	if i := strings.LastIndex(fileURL, "/"); i >= 0 {
		referer = fileURL[:i+1]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)

	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}
	logging.Debug("GET %s (from byte %d)", fileURL, resumeFrom)

	resp, err := c.dlHTTP.Do(req)
	if err != nil {
		return nil, 0, false, &FetchError{URL: fileURL, Err: err}
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && resumeFrom > 0 {
		resp.Body.Close()
		return nil, 0, false, &RangeError{Offset: resumeFrom, Size: unsatisfiedSize(resp.Header.Get("Content-Range"))}
	}

	resumed := resp.StatusCode == http.StatusPartialContent
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, 0, false, &FetchError{URL: fileURL, StatusCode: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	lowerURL := strings.ToLower(fileURL)
	if strings.Contains(contentType, "text/html") &&
		!strings.HasSuffix(lowerURL, ".html") &&
		!strings.HasSuffix(lowerURL, ".htm") {
		resp.Body.Close()
		return nil, 0, false, fmt.Errorf("refusing HTML response for file URL %s", fileURL)
	}

	return resp.Body, resp.ContentLength, resumed, nil
}

// IsTransient reports whether err from OpenFile or a body read is worth
// retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Temporary()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
