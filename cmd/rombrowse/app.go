package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/client"
	"github.com/JohnDeved/rombrowse/internal/config"
	"github.com/JohnDeved/rombrowse/internal/dispatch"
	"github.com/JohnDeved/rombrowse/internal/downloader"
	"github.com/JohnDeved/rombrowse/internal/filter"
	"github.com/JohnDeved/rombrowse/internal/logging"
	"github.com/JohnDeved/rombrowse/internal/navigator"
	"github.com/JohnDeved/rombrowse/internal/queue"
	"github.com/JohnDeved/rombrowse/internal/store"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	client  *client.Client
	db      *store.DB // nil when the state database cannot be opened
	rules   *filter.Rules
	queue   *queue.Queue
	dl      *downloader.Downloader
	logFile io.Closer
}

// newApp loads configuration and opens the persisted state. logTo, when
// non-nil, also receives log output (stderr for batch commands; the TUI
// logs to the file only).
func newApp(debug bool, logTo io.Writer) (*app, error) {
	logging.DebugEnabled = debug || logging.EnvDebug()

	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	logFile, err := logging.Setup(config.LogPath(), logTo)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a := &app{
		cfg:     cfg,
		catalog: cfg.Catalog(),
		logFile: logFile,
	}
	a.client = client.New(client.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         cfg.UserAgent,
		Retries:           cfg.FetchRetries,
		Backoff:           cfg.FetchBackoff.Std(),
	})
	a.dl = downloader.New(a.client, downloader.Options{
		Retries:      cfg.DownloadRetries,
		RetryDelay:   cfg.DownloadRetryDelay.Std(),
		MinFreeBytes: cfg.MinFreeBytes,
	})

	// History and the download log are optional.
	db, err := store.Open(config.DBPath())
	if err != nil {
		log.Printf("WARN: could not open state database: %v", err)
	} else {
		db.SetRecentLimit(cfg.HistoryLimit)
		a.db = db
	}

	if a.rules, err = filter.LoadRules(cfg.FilterPath()); err != nil {
		a.close()
		return nil, err
	}
	if a.queue, err = queue.Open(cfg.QueuePath(), a.catalog); err != nil {
		a.close()
		return nil, err
	}
	log.Printf("INFO: session started (config %s)", config.ConfigPath())
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// ensureDownloadDir creates the download directory. Failure is fatal.
func (a *app) ensureDownloadDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	return nil
}

func (a *app) navigator() (*navigator.Navigator, error) {
	opts := navigator.Options{
		Catalog:      a.catalog,
		Fetcher:      a.client,
		Rules:        a.rules,
		PageSize:     a.cfg.PageSize,
		HistoryLimit: a.cfg.HistoryLimit,
	}
	if a.db != nil {
		opts.History = a.db
	}
	return navigator.New(opts)
}

// dispatchOptions returns the shared dispatcher settings.
func (a *app) dispatchOptions(dir string) dispatch.Options {
	opts := dispatch.Options{
		Catalog:     a.catalog,
		Queue:       a.queue,
		Downloader:  a.dl,
		DownloadDir: dir,
		Pacing:      a.cfg.DownloadPacing.Std(),
	}
	if a.db != nil {
		opts.Logger = a.db
	}
	return opts
}

// dataset resolves a --dataset flag, defaulting to the configured one.
func (a *app) dataset(name string) (catalog.Dataset, error) {
	if name == "" {
		return a.catalog.Datasets()[0], nil
	}
	ds, ok := a.catalog.Lookup(name)
	if !ok {
		return catalog.Dataset{}, fmt.Errorf("unknown dataset %q", name)
	}
	return ds, nil
}
