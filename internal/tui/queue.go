package tui

import (
	"fmt"
	"strings"

	"github.com/JohnDeved/rombrowse/internal/listing"
	"github.com/JohnDeved/rombrowse/internal/queue"
)

// queueModel lists the persisted download queue.
type queueModel struct {
	entries  []queue.Entry
	warnings []*queue.LineError
	cursor   int
	offset   int
	height   int
}

func newQueueModel() queueModel {
	return queueModel{height: 20}
}

func (q *queueModel) load(src *queue.Queue) error {
	if err := src.Load(); err != nil {
		return err
	}
	q.entries = src.List()
	q.warnings = src.Warnings()
	q.clamp()
	return nil
}

func (q *queueModel) clamp() {
	if q.cursor >= len(q.entries) {
		q.cursor = len(q.entries) - 1
	}
	if q.cursor < 0 {
		q.cursor = 0
	}
	if q.cursor < q.offset {
		q.offset = q.cursor
	}
	if q.height > 0 && q.cursor >= q.offset+q.height {
		q.offset = q.cursor - q.height + 1
	}
}

func (q *queueModel) moveUp() {
	q.cursor--
	q.clamp()
}

func (q *queueModel) moveDown() {
	q.cursor++
	q.clamp()
}

func (q *queueModel) selected() (queue.Entry, bool) {
	if q.cursor >= 0 && q.cursor < len(q.entries) {
		return q.entries[q.cursor], true
	}
	return queue.Entry{}, false
}

func (q *queueModel) view(width int) string {
	var sb strings.Builder
	for _, w := range q.warnings {
		sb.WriteString(warnStyle.Render("  " + w.Error()))
		sb.WriteString("\n")
	}

	if len(q.entries) == 0 {
		sb.WriteString(helpStyle.Render("\n  Queue is empty. Queue files from the browser with \"<n> q\" or \"<n> h\".\n"))
		return sb.String()
	}

	sb.WriteString(helpStyle.Render(fmt.Sprintf("  %d queued", len(q.entries))))
	sb.WriteString("\n\n")

	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 12)
	end := min(q.offset+q.height, len(q.entries))
	for i := q.offset; i < end; i++ {
		e := q.entries[i]
		title := truncateText(e.Title, max(rowWidth-40, 12))
		where := helpStyle.Render(truncateText(e.Dataset+" / "+e.Platform, 32))
		line := fmt.Sprintf("%s  %s  %s", numberStyle.Render(fmt.Sprintf("%d.", i+1)), entryStyles[listing.File].Render(title), where)
		if i == q.cursor {
			sb.WriteString(selectedStyle.Render(padToWidth(line, rowWidth)))
		} else {
			sb.WriteString(normalStyle.Render(padToWidth(line, rowWidth)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
