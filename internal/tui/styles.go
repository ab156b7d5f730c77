package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard's lipgloss styles.
type Styles struct {
	EventViewport lipgloss.Style
	Modal         lipgloss.Style
}

func newStyles() Styles {
	bg := lipgloss.Color("#0B100E")
	surface := lipgloss.Color("#16201D")
	primary := lipgloss.Color("#5FB3A1")
	text := lipgloss.Color("#E2E8F0")

	return Styles{
		EventViewport: lipgloss.NewStyle().
			Background(bg).Foreground(text).
			Padding(0, 1),

		Modal: lipgloss.NewStyle().
			Background(surface).Foreground(text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(1, 2),
	}
}
