package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/rombrowse/internal/listing"
)

// Palette.
var (
	inkAccent = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"} // cartridge amber
	inkDir    = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	inkFile   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#E5E7EB"}
	inkDim    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8B95A5"}
	inkOK     = lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#4ADE80"}
	inkWarn   = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"}
	inkFail   = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	paperBar  = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#161B22"}
	paperRow  = lipgloss.AdaptiveColor{Light: "#FDE68A", Dark: "#3B3222"}
)

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(inkAccent)
	breadcrumbStyle = lipgloss.NewStyle().Foreground(inkDir)
	datasetBadge    = lipgloss.NewStyle().Foreground(paperBar).Background(inkDir).Bold(true).Padding(0, 1)
	promptStyle     = lipgloss.NewStyle().Foreground(inkAccent).Bold(true)
	statusBarStyle  = lipgloss.NewStyle().Foreground(inkDim).Background(paperBar).Padding(0, 1)

	// Rows shared by the browse, queue and downloads lists.
	normalStyle   = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(paperRow).Bold(true).Padding(0, 1)
	numberStyle   = lipgloss.NewStyle().Foreground(inkDim).Width(6).Align(lipgloss.Right)
	markedStyle   = lipgloss.NewStyle().Foreground(inkAccent).Bold(true)

	helpStyle    = lipgloss.NewStyle().Foreground(inkDim)
	successStyle = lipgloss.NewStyle().Foreground(inkOK)
	warnStyle    = lipgloss.NewStyle().Foreground(inkWarn)
	errorStyle   = lipgloss.NewStyle().Foreground(inkFail).Bold(true)
)

var entryStyles = map[listing.Kind]lipgloss.Style{
	listing.Directory: lipgloss.NewStyle().Foreground(inkDir).Bold(true),
	listing.File:      lipgloss.NewStyle().Foreground(inkFile),
}

// renderEntryName styles an entry name by kind; directories get a slash.
func renderEntryName(e listing.Entry, width int) string {
	name := e.Name
	if e.IsDir() {
		name += "/"
	}
	return entryStyles[e.Kind].Render(truncateText(name, width))
}

var (
	tabOn  = lipgloss.NewStyle().Foreground(paperBar).Background(inkAccent).Bold(true).Padding(0, 1)
	tabOff = lipgloss.NewStyle().Foreground(inkDim).Background(paperBar).Padding(0, 1)
)

func renderTab(label string, active bool) string {
	if active {
		return tabOn.Render(label)
	}
	return tabOff.Render(label)
}

// Download row labels.
var rowStatusStyles = map[rowStatus]struct {
	label string
	style lipgloss.Style
}{
	rowPending:  {"[Pending]", helpStyle},
	rowActive:   {"[Downloading]", successStyle.Bold(true)},
	rowDone:     {"[Done]", successStyle},
	rowExisting: {"[Exists]", helpStyle},
	rowFailed:   {"[Failed]", errorStyle},
	rowSkipped:  {"[Skipped]", warnStyle},
}
