// Package logging routes the standard logger to the session log file and
// gates debug output.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// DebugEnabled controls whether Debug() produces output.
// Set via --debug or ROMBROWSE_DEBUG=1.
var DebugEnabled bool

// Debug logs a message only when DebugEnabled is true.
func Debug(format string, args ...any) {
	if DebugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}

// EnvDebug reports whether ROMBROWSE_DEBUG asks for debug output.
func EnvDebug() bool {
	switch os.Getenv("ROMBROWSE_DEBUG") {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Setup appends log output to the file at path. When also is non-nil the
// output is duplicated there (e.g. stderr for non-interactive commands).
// Close the returned file when the session ends.
func Setup(path string, also io.Writer) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	var w io.Writer = f
	if also != nil {
		w = io.MultiWriter(f, also)
	}
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags)
	return f, nil
}
