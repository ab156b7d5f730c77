// Package components holds the dashboard's rendered parts: header, footer,
// node table, artifact list, live graph and modal.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	colorPrimary = lipgloss.Color("#5FB3A1")
	colorAccent  = lipgloss.Color("#E6C86E")
	colorSurface = lipgloss.Color("#16201D")
	colorBg      = lipgloss.Color("#0B100E")
	colorMuted   = lipgloss.Color("#4A5568")
	colorText    = lipgloss.Color("#E2E8F0")
	colorOK      = lipgloss.Color("#68D391")
	colorWarn    = lipgloss.Color("#ECC94B")
	colorErr     = lipgloss.Color("#F56565")
)

// ─────────────────────────────────────────────────────────────────────────────
// Header
// ─────────────────────────────────────────────────────────────────────────────

// Header renders the top status bar.
type Header struct {
	panel      string
	online     int
	total      int
	generating int
}

// NewHeader creates a Header.
func NewHeader() Header { return Header{} }

func (h *Header) SetPanel(name string)       { h.panel = name }
func (h *Header) SetNodes(online, total int) { h.online, h.total = online, total }
func (h *Header) SetGenerating(n int)        { h.generating = n }

// View renders the header bar at the given terminal width.
func (h *Header) View(width int) string {
	left := fmt.Sprintf(" ◉ SENSORHUB  %s ", h.panel)
	right := fmt.Sprintf(" %d/%d nodes online ", h.online, h.total)
	if h.generating > 0 {
		right = fmt.Sprintf(" %d generating ·", h.generating) + right
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return lipgloss.NewStyle().
		Background(colorPrimary).
		Foreground(colorBg).
		Bold(true).
		Width(width).
		Render(left + strings.Repeat(" ", gap) + right)
}

// ─────────────────────────────────────────────────────────────────────────────
// Footer
// ─────────────────────────────────────────────────────────────────────────────

// Footer renders the bottom hint bar, or the last error.
type Footer struct {
	err error
}

// NewFooter creates a Footer.
func NewFooter() Footer { return Footer{} }

// SetError sets the error to display; nil restores the hints.
func (f *Footer) SetError(err error) { f.err = err }

// View renders the footer.
func (f *Footer) View(width int) string {
	hints := []struct{ key, desc string }{
		{"tab", "panel"}, {"↑↓", "select"}, {"enter", "regenerate"},
		{"x", "remove node"}, {"r", "refresh"}, {"?", "help"}, {"q", "quit"},
	}

	var b strings.Builder
	for _, h := range hints {
		b.WriteString(lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render(h.key))
		b.WriteString(lipgloss.NewStyle().Foreground(colorMuted).Render(" " + h.desc + "  "))
	}
	content := b.String()
	if f.err != nil {
		content = lipgloss.NewStyle().Foreground(colorErr).Render("Error: " + f.err.Error())
	}

	return lipgloss.NewStyle().
		Background(colorSurface).
		Width(width).Padding(0, 1).
		Render(content)
}
