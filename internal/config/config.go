package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohnDeved/rombrowse/internal/catalog"
	"github.com/JohnDeved/rombrowse/internal/util"
)

func homeDirOrFallback() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

// Duration is a time.Duration stored as a Go duration string ("5s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	// Bare numbers are seconds.
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DatasetConfig names a root catalog. Root may be absolute or relative to
// BaseURL.
type DatasetConfig struct {
	Name string `json:"name"`
	Root string `json:"root"`
}

// Config holds all user-configurable settings.
type Config struct {
	// DownloadDir is where downloaded files are saved.
	DownloadDir string `json:"download_dir"`
	// BaseURL is the root URL of the file listings.
	BaseURL string `json:"base_url"`
	// Datasets are the alternate root catalogs, in menu order.
	Datasets []DatasetConfig `json:"datasets"`
	// DefaultDataset is opened on start.
	DefaultDataset string `json:"default_dataset"`
	// PageSize is the number of entries shown per page.
	PageSize int `json:"page_size"`
	// RequestsPerSecond rate-limits HTTP requests to the origin.
	RequestsPerSecond float64 `json:"requests_per_second"`
	// UserAgent overrides the browser-like client identifier.
	UserAgent string `json:"user_agent,omitempty"`
	// FetchRetries and FetchBackoff bound listing fetch retries.
	FetchRetries int      `json:"fetch_retries"`
	FetchBackoff Duration `json:"fetch_backoff"`
	// DownloadRetries and DownloadRetryDelay bound transfer retries.
	DownloadRetries    int      `json:"download_retries"`
	DownloadRetryDelay Duration `json:"download_retry_delay"`
	// DownloadPacing is the minimum gap between consecutive transfers.
	DownloadPacing Duration `json:"download_pacing"`
	// QueueFile and FilterFile default to files in the config directory.
	QueueFile  string `json:"queue_file,omitempty"`
	FilterFile string `json:"filter_file,omitempty"`
	// HistoryLimit caps the recent-directory history.
	HistoryLimit int `json:"history_limit"`
	// MinFreeBytes is kept free on the download volume.
	MinFreeBytes uint64 `json:"min_free_bytes"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home := homeDirOrFallback()
	return &Config{
		DownloadDir: filepath.Join(home, "Downloads", "rombrowse"),
		BaseURL:     "https://myrient.erista.me/files/",
		Datasets: []DatasetConfig{
			{Name: "Redump", Root: "Redump/"},
			{Name: "No-Intro", Root: "No-Intro/"},
		},
		DefaultDataset:     "Redump",
		PageSize:           50,
		RequestsPerSecond:  2.0,
		FetchRetries:       3,
		FetchBackoff:       Duration(5 * time.Second),
		DownloadRetries:    3,
		DownloadRetryDelay: Duration(5 * time.Second),
		DownloadPacing:     Duration(3 * time.Second),
		HistoryLimit:       5,
		MinFreeBytes:       512 << 20,
	}
}

// ConfigDir returns the directory where config and data files are stored.
func ConfigDir() string {
	if dir := os.Getenv("ROMBROWSE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDirOrFallback()
	return filepath.Join(home, ".config", "rombrowse")
}

// DBPath returns the path to the SQLite database.
func DBPath() string {
	return filepath.Join(ConfigDir(), "state.db")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LogPath returns the path to the session log.
func LogPath() string {
	return filepath.Join(ConfigDir(), "rombrowse.log")
}

// QueuePath resolves the queue file location.
func (c *Config) QueuePath() string {
	if c.QueueFile != "" {
		return expandHome(c.QueueFile)
	}
	return filepath.Join(ConfigDir(), "queue.txt")
}

// FilterPath resolves the filter rule file location.
func (c *Config) FilterPath() string {
	if c.FilterFile != "" {
		return expandHome(c.FilterFile)
	}
	return filepath.Join(ConfigDir(), "filters.txt")
}

// DownloadPath returns DownloadDir with "~" expanded.
func (c *Config) DownloadPath() string {
	return expandHome(c.DownloadDir)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDirOrFallback(), strings.TrimPrefix(p, "~"))
	}
	return p
}

// Catalog builds the dataset catalog, resolving relative roots against
// BaseURL. The default dataset is moved to the front.
func (c *Config) Catalog() *catalog.Catalog {
	base := c.BaseURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	var first []catalog.Dataset
	var rest []catalog.Dataset
	for _, d := range c.Datasets {
		root := d.Root
		if !strings.Contains(root, "://") {
			root = base + strings.TrimPrefix(root, "/")
		}
		ds := catalog.Dataset{Name: d.Name, Root: root}
		if strings.EqualFold(d.Name, c.DefaultDataset) {
			first = append(first, ds)
		} else {
			rest = append(rest, ds)
		}
	}
	return catalog.New(append(first, rest...))
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}
	if c.BaseURL == "" {
		for _, d := range c.Datasets {
			if !strings.Contains(d.Root, "://") {
				return fmt.Errorf("dataset %q has a relative root but base_url is empty", d.Name)
			}
		}
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive")
	}
	return nil
}

// Load reads config from disk, returning defaults if the file doesn't exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Save(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigPath(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigPath(), err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(ConfigPath(), append(data, '\n'), 0o644)
}
