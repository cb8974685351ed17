package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_WritesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROMBROWSE_CONFIG_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PageSize != 50 || cfg.FetchRetries != 3 || cfg.DownloadPacing.Std() != 3*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if cfg.QueuePath() != filepath.Join(dir, "queue.txt") || cfg.FilterPath() != filepath.Join(dir, "filters.txt") {
		t.Fatalf("unexpected derived paths %q %q", cfg.QueuePath(), cfg.FilterPath())
	}
}

func TestLoad_ParsesDurations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROMBROWSE_CONFIG_DIR", dir)
	body := `{"fetch_backoff": "250ms", "download_retry_delay": 2, "page_size": 10}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.FetchBackoff.Std() != 250*time.Millisecond || cfg.DownloadRetryDelay.Std() != 2*time.Second {
		t.Fatalf("durations = %v %v", cfg.FetchBackoff.Std(), cfg.DownloadRetryDelay.Std())
	}
	if cfg.PageSize != 10 || len(cfg.Datasets) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"fetch_backoff": "soon"}`), 0o644)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestCatalog_ResolvesRootsAndDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://example.test/files"
	cfg.DefaultDataset = "no-intro"
	cfg.Datasets = append(cfg.Datasets, DatasetConfig{Name: "Mirror", Root: "https://mirror.test/roms"})

	ds := cfg.Catalog().Datasets()
	if len(ds) != 3 {
		t.Fatalf("expected 3 datasets, got %d", len(ds))
	}
	if ds[0].Name != "No-Intro" || ds[0].Root != "https://example.test/files/No-Intro/" {
		t.Fatalf("default dataset not first: %+v", ds[0])
	}
	if ds[2].Root != "https://mirror.test/roms/" {
		t.Fatalf("absolute root not kept: %+v", ds[2])
	}
}
