// Package store keeps small local state in SQLite: the recent-directory
// history and a log of download attempts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database.
type DB struct {
	db        *sql.DB
	session   string
	recentCap int
}

// Open opens or creates the SQLite database at the given path. Each Open
// starts a new session id for the download log.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db, session: uuid.NewString(), recentCap: DefaultRecentLimit}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Session returns the id stamped on download rows written by this process.
func (d *DB) Session() string { return d.session }

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recent_dirs (
		dataset TEXT NOT NULL,
		path TEXT NOT NULL,
		display TEXT NOT NULL DEFAULT '',
		visited_at DATETIME NOT NULL,
		PRIMARY KEY (dataset, path)
	);

	CREATE INDEX IF NOT EXISTS idx_recent_visited ON recent_dirs(visited_at);

	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		dest TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_finished ON downloads(finished_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecentDir is one entry of the recent-directory history.
type RecentDir struct {
	Dataset   string
	Path      string // percent-encoded, relative to the dataset root
	Display   string
	VisitedAt time.Time
}

// DefaultRecentLimit is the history capacity unless SetRecentLimit says otherwise.
const DefaultRecentLimit = 5

// SetRecentLimit changes how many recent directories are kept.
func (d *DB) SetRecentLimit(n int) {
	if n > 0 {
		d.recentCap = n
	}
}

// AddRecent records a visit. Revisiting moves the entry to the front and
// the oldest entries beyond the limit are dropped.
func (d *DB) AddRecent(dataset, path, display string) error {
	return d.addRecent(dataset, path, display, time.Now().UTC())
}

func (d *DB) addRecent(dataset, path, display string, at time.Time) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO recent_dirs (dataset, path, display, visited_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(dataset, path) DO UPDATE SET display=excluded.display, visited_at=excluded.visited_at`,
		dataset, path, display, at,
	); err != nil {
		return fmt.Errorf("recording recent directory: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM recent_dirs WHERE rowid NOT IN (
			SELECT rowid FROM recent_dirs ORDER BY visited_at DESC LIMIT ?
		)`, d.recentCap,
	); err != nil {
		return fmt.Errorf("trimming recent directories: %w", err)
	}
	return tx.Commit()
}

// RecentDirs returns up to limit entries, most recent first.
func (d *DB) RecentDirs(limit int) ([]RecentDir, error) {
	if limit <= 0 || limit > d.recentCap {
		limit = d.recentCap
	}
	rows, err := d.db.Query(
		`SELECT dataset, path, display, visited_at FROM recent_dirs
		 ORDER BY visited_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecentDir
	for rows.Next() {
		var r RecentDir
		if err := rows.Scan(&r.Dataset, &r.Path, &r.Display, &r.VisitedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DownloadRow is one logged download outcome.
type DownloadRow struct {
	ID         int64
	Session    string
	URL        string
	Dest       string
	Attempts   int
	Bytes      int64
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// LogDownload appends an outcome to the session log.
func (d *DB) LogDownload(r DownloadRow) error {
	if r.Session == "" {
		r.Session = d.session
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.FinishedAt
	}
	_, err := d.db.Exec(
		`INSERT INTO downloads (session_id, url, dest, attempts, bytes, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Session, r.URL, r.Dest, r.Attempts, r.Bytes, r.Status, r.Error, r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("logging download: %w", err)
	}
	return nil
}

// Downloads returns the newest logged outcomes first.
func (d *DB) Downloads(limit int) ([]DownloadRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT id, session_id, url, dest, attempts, bytes, status, COALESCE(error, ''), started_at, finished_at
		FROM downloads
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("download log query failed: %w", err)
	}
	defer rows.Close()

	var out []DownloadRow
	for rows.Next() {
		var r DownloadRow
		if err := rows.Scan(
			&r.ID, &r.Session, &r.URL, &r.Dest, &r.Attempts, &r.Bytes,
			&r.Status, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarizes the store.
type Stats struct {
	RecentDirs int
	Downloads  int
	Failed     int
}

// GetStats returns row counts.
func (d *DB) GetStats() (Stats, error) {
	var s Stats
	if err := d.db.QueryRow("SELECT COUNT(*) FROM recent_dirs").Scan(&s.RecentDirs); err != nil {
		return s, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM downloads").Scan(&s.Downloads); err != nil {
		return s, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM downloads WHERE status = 'failed'").Scan(&s.Failed); err != nil {
		return s, err
	}
	return s, nil
}
