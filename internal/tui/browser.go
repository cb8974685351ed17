package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/rombrowse/internal/navigator"
)

// browserModel is the cursor and mark state over the navigator's current
// page. The navigator itself owns the listing.
type browserModel struct {
	cursor int // index into the current page
	offset int // viewport scroll offset
	height int // visible rows
	marked map[int]bool
}

func newBrowserModel() browserModel {
	return browserModel{
		height: 20,
		marked: make(map[int]bool),
	}
}

// reset is called whenever the directory or page changes.
func (b *browserModel) reset() {
	b.cursor = 0
	b.offset = 0
	b.marked = make(map[int]bool)
}

func (b *browserModel) normalize(total int) {
	if total <= 0 {
		b.cursor = 0
		b.offset = 0
		return
	}
	if b.cursor >= total {
		b.cursor = total - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
	if b.cursor < b.offset {
		b.offset = b.cursor
	}
	if b.height > 0 && b.cursor >= b.offset+b.height {
		b.offset = b.cursor - b.height + 1
	}
	maxOffset := max(total-b.height, 0)
	if b.offset > maxOffset {
		b.offset = maxOffset
	}
}

func (b *browserModel) moveUp(total int) {
	b.cursor--
	b.normalize(total)
}

func (b *browserModel) moveDown(total int) {
	b.cursor++
	b.normalize(total)
}

func (b *browserModel) goHome() {
	b.cursor = 0
	b.offset = 0
}

func (b *browserModel) goEnd(total int) {
	b.cursor = total - 1
	b.normalize(total)
}

func (b *browserModel) current(items []navigator.Item) (navigator.Item, bool) {
	b.normalize(len(items))
	if b.cursor < len(items) {
		return items[b.cursor], true
	}
	return navigator.Item{}, false
}

// toggleMark marks or unmarks the file under the cursor.
func (b *browserModel) toggleMark(items []navigator.Item) {
	it, ok := b.current(items)
	if !ok || it.Entry.IsDir() {
		return
	}
	if b.marked[it.Number] {
		delete(b.marked, it.Number)
	} else {
		b.marked[it.Number] = true
	}
}

func (b *browserModel) markAll(items []navigator.Item) {
	for _, it := range items {
		if !it.Entry.IsDir() {
			b.marked[it.Number] = true
		}
	}
}

// markedNumbers returns marked numbers ascending, falling back to the
// cursor entry when nothing is marked.
func (b *browserModel) markedNumbers(items []navigator.Item) []int {
	if len(b.marked) == 0 {
		if it, ok := b.current(items); ok {
			return []int{it.Number}
		}
		return nil
	}
	out := make([]int, 0, len(b.marked))
	for n := range b.marked {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// view renders the page body. It must not be called while a fetch is in
// flight because the navigator is owned by that command.
func (b *browserModel) view(nav *navigator.Navigator, width int) string {
	var sb strings.Builder

	if nav.State() == navigator.StateError {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", nav.Err())))
		sb.WriteString("\n")
		sb.WriteString(helpStyle.Render("  r to retry, .. to go up, ds <name> to switch dataset"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(helpStyle.Render(b.summary(nav)))
	sb.WriteString("\n")

	items := nav.Page()
	if len(items) == 0 {
		if len(nav.Listing().Entries) == 0 {
			sb.WriteString("\n  (empty directory)\n")
		} else {
			sb.WriteString("\n  (every entry is hidden by the active filters)\n")
		}
		return sb.String()
	}

	b.normalize(len(items))
	end := min(b.offset+b.height, len(items))
	rowWidth := max(width-selectedStyle.GetHorizontalFrameSize(), 12)
	for i := b.offset; i < end; i++ {
		it := items[i]
		sb.WriteString(renderEntryRow(it, b.marked[it.Number], rowWidth, i == b.cursor))
		sb.WriteString("\n")
	}

	if len(items) > b.height {
		sb.WriteString(helpStyle.Render(fmt.Sprintf("  %d/%d on this page", b.cursor+1, len(items))))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *browserModel) summary(nav *navigator.Navigator) string {
	parts := []string{
		fmt.Sprintf("Page %d/%d", nav.PageNumber(), nav.TotalPages()),
		fmt.Sprintf("%d entries", nav.Total()),
	}
	if hidden := nav.Toggles().HiddenNames(); len(hidden) > 0 {
		parts = append(parts, "hiding "+strings.Join(hidden, ", "))
	}
	if q := nav.Query(); q != "" {
		parts = append(parts, fmt.Sprintf("search %q", q))
	}
	if len(b.marked) > 0 {
		parts = append(parts, fmt.Sprintf("%d marked", len(b.marked)))
	}
	return "  " + strings.Join(parts, "  |  ")
}

func renderEntryRow(it navigator.Item, marked bool, rowWidth int, isSelected bool) string {
	nameWidth := max(rowWidth-12, 12)
	name := renderEntryName(it.Entry, nameWidth)
	mark := " "
	if marked {
		mark = markedStyle.Render("*")
	}

	line := fmt.Sprintf("%s %s %s", numberStyle.Render(fmt.Sprintf("%d.", it.Number)), mark, name)
	if isSelected {
		return selectedStyle.Render(padToWidth(line, rowWidth))
	}
	return normalStyle.Render(padToWidth(line, rowWidth))
}

func truncateText(s string, maxWidth int) string {
	if maxWidth < 4 || lipgloss.Width(s) <= maxWidth {
		return s
	}
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	return string(r[:maxWidth-3]) + "..."
}

func padToWidth(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}
