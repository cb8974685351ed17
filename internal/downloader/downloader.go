// Package downloader streams remote files to disk with resume and bounded
// retry.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/JohnDeved/rombrowse/internal/client"
	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/util"
)

// ErrInsufficientSpace is returned when the destination volume cannot hold
// the remaining bytes. It is never retried.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// Status is the lifecycle of a DownloadRecord.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in progress"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result class of one Download call.
type Outcome int

const (
	Success Outcome = iota
	AlreadyExists
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case AlreadyExists:
		return "already exists"
	default:
		return "failed"
	}
}

// Record describes one transfer.
type Record struct {
	URL        string
	Dest       string
	Attempts   int
	Status     Status
	Bytes      int64 // bytes on disk when the call finished
	Total      int64 // -1 when the server did not say
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result is returned by Download.
type Result struct {
	Outcome Outcome
	Err     error // set when Outcome is Failed
	Record  Record
}

// Progress is reported while bytes arrive.
type Progress struct {
	URL     string
	Dest    string
	Done    int64
	Total   int64 // -1 when unknown
	Attempt int
}

// Fraction returns done/total, or -1 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Done) / float64(p.Total)
}

// Source opens remote files, optionally from an offset. *client.Client
// satisfies it.
type Source interface {
	OpenFile(ctx context.Context, url string, resumeFrom int64) (io.ReadCloser, int64, bool, error)
}

// Options configures a Downloader.
type Options struct {
	Retries      int           // attempts per file
	RetryDelay   time.Duration // fixed wait between attempts
	MinFreeBytes uint64        // headroom kept free on the destination volume
	OnProgress   func(Progress)
}

// Downloader transfers one file at a time.
type Downloader struct {
	src  Source
	opts Options

	mu         sync.Mutex
	lastNotify time.Time

	// FreeSpace reports free bytes on the volume holding path.
	FreeSpace func(path string) (uint64, error)
}

// New creates a downloader.
func New(src Source, opts Options) *Downloader {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Downloader{src: src, opts: opts, FreeSpace: diskFree}
}

func diskFree(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// SetOnProgress replaces the progress callback.
func (d *Downloader) SetOnProgress(fn func(Progress)) {
	d.mu.Lock()
	d.opts.OnProgress = fn
	d.mu.Unlock()
}

func (d *Downloader) notify(p Progress, force bool) {
	d.mu.Lock()
	fn := d.opts.OnProgress
	now := time.Now()
	if !force && now.Sub(d.lastNotify) < 100*time.Millisecond {
		d.mu.Unlock()
		return
	}
	d.lastNotify = now
	d.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Request is one transfer.
type Request struct {
	URL  string
	Dest string
	// Resume continues into an existing destination file instead of
	// treating it as already downloaded.
	Resume bool
}

// Download fetches url into dest. An existing non-empty dest short-circuits
// with AlreadyExists and no network request. Data is written to dest+".part"
// and renamed on completion; every retry resumes from the part's size. When
// retries run out, a part file created by this call is removed.
func (d *Downloader) Download(ctx context.Context, req Request) Result {
	rec := Record{URL: req.URL, Dest: req.Dest, Status: StatusPending, Total: -1, StartedAt: time.Now()}
	finish := func(o Outcome, err error) Result {
		rec.FinishedAt = time.Now()
		switch o {
		case Failed:
			rec.Status = StatusFailed
		default:
			rec.Status = StatusSucceeded
		}
		if info, serr := os.Stat(req.Dest); serr == nil {
			rec.Bytes = info.Size()
		}
		return Result{Outcome: o, Err: err, Record: rec}
	}

	exists := Exists(req.Dest)
	if exists && !req.Resume {
		return finish(AlreadyExists, nil)
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return finish(Failed, fmt.Errorf("creating directory: %w", err))
	}

	partPath := req.Dest + ".part"
	_, perr := os.Stat(partPath)
	createdPart := os.IsNotExist(perr)
	if exists {
		// Resume into the existing file.
		if err := os.Rename(req.Dest, partPath); err != nil {
			return finish(Failed, fmt.Errorf("preparing resume: %w", err))
		}
		createdPart = false
	}

	rec.Status = StatusInProgress
	var lastErr error
	for attempt := 1; attempt <= d.opts.Retries; attempt++ {
		rec.Attempts = attempt
		err := d.attempt(ctx, req, partPath, &rec)
		if err == nil {
			return finish(Success, nil)
		}
		lastErr = err
		if ctx.Err() != nil || !client.IsTransient(err) || attempt == d.opts.Retries {
			break
		}
		log.Printf("WARN: download attempt %d/%d for %s failed: %v", attempt, d.opts.Retries, req.URL, err)
		if err := sleep(ctx, d.opts.RetryDelay); err != nil {
			lastErr = err
			break
		}
	}

	if createdPart {
		if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: removing partial file %s: %v", partPath, err)
		}
	}
	log.Printf("ERROR: download of %s failed after %d attempt(s): %v", req.URL, rec.Attempts, lastErr)
	return finish(Failed, lastErr)
}

func (d *Downloader) attempt(ctx context.Context, req Request, partPath string, rec *Record) error {
	var resumeFrom int64
	if info, err := os.Stat(partPath); err == nil {
		resumeFrom = info.Size()
	}

	body, contentLength, resumed, err := d.src.OpenFile(ctx, req.URL, resumeFrom)
	if errors.Is(err, client.ErrRangeNotSatisfiable) {
		var rerr *client.RangeError
		if errors.As(err, &rerr) && rerr.Size >= 0 && rerr.Size != resumeFrom {
			log.Printf("WARN: partial file %s has %d bytes, remote has %d; restarting", partPath, resumeFrom, rerr.Size)
			if err := os.Truncate(partPath, 0); err != nil {
				return fmt.Errorf("resetting partial file: %w", err)
			}
			return d.attempt(ctx, req, partPath, rec)
		}
		// The part already holds the whole file.
		rec.Total = resumeFrom
		return d.complete(partPath, req.Dest)
	}
	if err != nil {
		return err
	}
	defer body.Close()

	done := resumeFrom
	if !resumed {
		done = 0
	}
	if contentLength >= 0 {
		rec.Total = done + contentLength
	}
	if contentLength > 0 {
		if err := d.checkSpace(filepath.Dir(req.Dest), contentLength); err != nil {
			return err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	p := Progress{URL: req.URL, Dest: req.Dest, Done: done, Total: rec.Total, Attempt: rec.Attempts}
	d.notify(p, true)

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("writing file: %w", werr)
			}
			p.Done += int64(n)
			d.notify(p, false)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading response: %w", rerr)
		}
	}
	d.notify(p, true)

	if rec.Total > 0 && p.Done < rec.Total {
		return fmt.Errorf("short body (%d of %d bytes): %w", p.Done, rec.Total, io.ErrUnexpectedEOF)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	return d.complete(partPath, req.Dest)
}

func (d *Downloader) complete(partPath, dest string) error {
	if err := os.Rename(partPath, dest); err != nil {
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

func (d *Downloader) checkSpace(dir string, need int64) error {
	if d.FreeSpace == nil {
		return nil
	}
	free, err := d.FreeSpace(dir)
	if err != nil {
		log.Printf("WARN: checking free space on %s: %v", dir, err)
		return nil
	}
	if uint64(need)+d.opts.MinFreeBytes > free {
		return fmt.Errorf("%w: need %s, %s free", ErrInsufficientSpace,
			util.FormatBytes(need), util.FormatBytes(int64(free)))
	}
	return nil
}

// DestPath returns where a file addressed by href is stored: the decoded
// final path segment under dir.
func DestPath(dir, href string) string {
	seg := strings.TrimSuffix(href, "/")
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if j := strings.IndexAny(seg, "?#"); j >= 0 {
		seg = seg[:j]
	}
	return filepath.Join(dir, SanitizeName(listing.Decode(seg)))
}

// SanitizeName makes a decoded name safe as a single file name.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "download"
	}
	return name
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

// Exists reports whether path is a regular file with nonzero size, the
// condition under which Download reports AlreadyExists.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
