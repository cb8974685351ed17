package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/JohnDeved/rombrowse/internal/dispatch"
	"github.com/JohnDeved/rombrowse/internal/downloader"
	"github.com/JohnDeved/rombrowse/internal/util"
)

type rowStatus int

const (
	rowPending rowStatus = iota
	rowActive
	rowDone
	rowExisting
	rowFailed
	rowSkipped
)

// downloadRow is one transfer of the current session.
type downloadRow struct {
	Title  string
	URL    string
	Dest   string
	Status rowStatus
	Bytes  int64
	Err    error
}

// downloadsModel shows the batch in flight and earlier results.
type downloadsModel struct {
	rows    []downloadRow
	active  *downloader.Progress
	tally   dispatch.Tally
	running bool
	bar     progress.Model
	cursor  int
	offset  int
	height  int
}

func newDownloadsModel() downloadsModel {
	return downloadsModel{
		height: 20,
		bar:    progress.New(progress.WithDefaultGradient()),
	}
}

// begin appends the items of a new batch as pending rows.
func (d *downloadsModel) begin(items []dispatch.Item) {
	d.running = true
	d.tally = dispatch.Tally{}
	for _, it := range items {
		d.rows = append(d.rows, downloadRow{Title: it.Target.Title, URL: it.URL})
	}
}

func (d *downloadsModel) find(url string) *downloadRow {
	for i := len(d.rows) - 1; i >= 0; i-- {
		if d.rows[i].URL == url && (d.rows[i].Status == rowPending || d.rows[i].Status == rowActive) {
			return &d.rows[i]
		}
	}
	return nil
}

func (d *downloadsModel) onProgress(p downloader.Progress) {
	d.active = &p
	if row := d.find(p.URL); row != nil {
		row.Status = rowActive
		row.Dest = p.Dest
		row.Bytes = p.Done
	}
}

func (d *downloadsModel) onResult(r dispatch.ItemResult, t dispatch.Tally) {
	d.tally = t
	if d.active != nil && d.active.URL == r.Item.URL {
		d.active = nil
	}
	row := d.find(r.Item.URL)
	if row == nil {
		d.rows = append(d.rows, downloadRow{Title: r.Item.Target.Title, URL: r.Item.URL})
		row = &d.rows[len(d.rows)-1]
	}
	row.Dest = r.Dest
	row.Err = r.Err
	switch {
	case r.Skipped:
		row.Status = rowSkipped
	case r.Err != nil:
		row.Status = rowFailed
	case r.Download != nil && r.Download.Outcome == downloader.AlreadyExists:
		row.Status = rowExisting
	default:
		row.Status = rowDone
	}
	if r.Download != nil {
		row.Bytes = r.Download.Record.Bytes
	}
}

func (d *downloadsModel) finish() {
	d.running = false
	d.active = nil
}

// clearFinished drops rows that are no longer pending.
func (d *downloadsModel) clearFinished() int {
	kept := d.rows[:0]
	removed := 0
	for _, r := range d.rows {
		if r.Status == rowPending || r.Status == rowActive {
			kept = append(kept, r)
			continue
		}
		removed++
	}
	d.rows = kept
	d.cursor = 0
	d.offset = 0
	return removed
}

func (d *downloadsModel) moveUp() {
	if d.cursor > 0 {
		d.cursor--
		if d.cursor < d.offset {
			d.offset = d.cursor
		}
	}
}

func (d *downloadsModel) moveDown() {
	if d.cursor < len(d.rows)-1 {
		d.cursor++
		if d.cursor >= d.offset+d.height {
			d.offset = d.cursor - d.height + 1
		}
	}
}

func (d *downloadsModel) view(width int) string {
	var sb strings.Builder

	if len(d.rows) == 0 {
		sb.WriteString(helpStyle.Render("\n  No downloads yet. Use \"<n> d\" in the browser or \"run\" to process the queue.\n"))
		return sb.String()
	}

	sb.WriteString(helpStyle.Render("  " + d.tally.String()))
	sb.WriteString("\n")

	if p := d.active; p != nil {
		d.bar.Width = min(max(width-30, 20), 60)
		frac := p.Fraction()
		if frac < 0 {
			frac = 0
		}
		sb.WriteString(fmt.Sprintf("  %s  %s", d.bar.ViewAs(frac), util.FormatProgress(p.Done, p.Total)))
		if p.Attempt > 1 {
			sb.WriteString(warnStyle.Render(fmt.Sprintf("  attempt %d", p.Attempt)))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	end := min(d.offset+d.height, len(d.rows))
	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 12)
	for i := d.offset; i < end; i++ {
		r := d.rows[i]
		line := fmt.Sprintf("  %s %s", statusLabel(r.Status), truncateText(r.Title, max(rowWidth-30, 12)))
		if r.Bytes > 0 {
			line += "  " + helpStyle.Render(util.FormatBytes(r.Bytes))
		}
		if r.Err != nil {
			line += "  " + errorStyle.Render(r.Err.Error())
		}
		if i == d.cursor {
			line = selectedStyle.Render(padToWidth(line, rowWidth))
		}
		sb.WriteString(line)
		sb.WriteString("\n")

		if width > 80 && r.Dest != "" {
			sb.WriteString(helpStyle.Render("    to: " + util.TruncatePath(r.Dest, width-8)))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func statusLabel(s rowStatus) string {
	l := rowStatusStyles[s]
	return l.style.Render(l.label)
}
