package util

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes formats a byte count into a human-readable string.
func FormatBytes(b int64) string {
	if b < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(b))
}

// FormatProgress renders "done / total" or just "done" when the total is unknown.
func FormatProgress(done, total int64) string {
	if total <= 0 {
		return FormatBytes(done)
	}
	return FormatBytes(done) + " / " + FormatBytes(total)
}

// FormatAgo renders a timestamp relative to now ("3 minutes ago").
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// TruncatePath truncates a path from the left, keeping the rightmost part visible.
func TruncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[len(path)-maxLen:]
	}
	return "..." + path[len(path)-maxLen+3:]
}
