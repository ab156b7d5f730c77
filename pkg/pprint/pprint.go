// Package pprint provides the terminal output helpers for the sensorhub CLI:
// status lines, key/value pairs, panels, tables, badges and a spinner.
package pprint

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

// Out and ErrOut are where the helpers write. Tests swap them.
var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

// ─────────────────────────────────────────────────────────────────────────────
// Colour palette
// ─────────────────────────────────────────────────────────────────────────────

var (
	ColorPrimary = lipgloss.Color("#5FB3A1") // moss green
	ColorAccent  = lipgloss.Color("#E6C86E") // sun yellow
	ColorSuccess = lipgloss.Color("#48BB78")
	ColorWarning = lipgloss.Color("#F6AD55")
	ColorError   = lipgloss.Color("#FC8181")
	ColorMuted   = lipgloss.Color("#4A5568")
	ColorText    = lipgloss.Color("#E2E8F0")
)

// ─────────────────────────────────────────────────────────────────────────────
// Styles
// ─────────────────────────────────────────────────────────────────────────────

var (
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleAccent  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	StyleText    = lipgloss.NewStyle().Foreground(ColorText)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Width(16)

	StylePanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(1, 2)
)

// ─────────────────────────────────────────────────────────────────────────────
// Simple output helpers
// ─────────────────────────────────────────────────────────────────────────────

// Success prints a green ✓ line.
func Success(format string, args ...any) {
	fmt.Fprintln(Out, StyleSuccess.Render("✓ ")+StyleText.Render(fmt.Sprintf(format, args...)))
}

// Warn prints an amber ⚠ line.
func Warn(format string, args ...any) {
	fmt.Fprintln(Out, StyleWarning.Render("⚠ ")+StyleText.Render(fmt.Sprintf(format, args...)))
}

// Error prints a red ✗ line to ErrOut.
func Error(format string, args ...any) {
	fmt.Fprintln(ErrOut, StyleError.Render("✗ ")+StyleText.Render(fmt.Sprintf(format, args...)))
}

// Info prints a dimmed line.
func Info(format string, args ...any) {
	fmt.Fprintln(Out, StyleMuted.Render("  "+fmt.Sprintf(format, args...)))
}

// Step prints a step with an index indicator.
func Step(n, total int, format string, args ...any) {
	idx := StylePrimary.Render(fmt.Sprintf("[%d/%d]", n, total))
	fmt.Fprintln(Out, idx+" "+StyleText.Render(fmt.Sprintf(format, args...)))
}

// Header prints a section header.
func Header(title string) {
	bar := strings.Repeat("─", 60)
	fmt.Fprintln(Out)
	fmt.Fprintln(Out, StylePrimary.Render(bar))
	fmt.Fprintln(Out, StylePrimary.Render(" ◉ "+strings.ToUpper(title)))
	fmt.Fprintln(Out, StylePrimary.Render(bar))
}

// KV prints a labelled key/value pair.
func KV(key, value string) {
	fmt.Fprintln(Out, StyleLabel.Render(key)+StyleText.Render(value))
}

// Panel renders a rounded box with an optional title.
func Panel(title, body string) {
	content := body
	if title != "" {
		content = StyleAccent.Render(" "+title+" ") + "\n" + body
	}
	fmt.Fprintln(Out, StylePanel.Render(content))
}

// ─────────────────────────────────────────────────────────────────────────────
// Badges
// ─────────────────────────────────────────────────────────────────────────────

// NodeBadge renders a coloured node status.
func NodeBadge(s v1.NodeStatus) string {
	switch s {
	case v1.NodeOnline:
		return StyleSuccess.Render("● online")
	case v1.NodeDegraded:
		return StyleWarning.Render("◐ degraded")
	case v1.NodeOffline:
		return StyleError.Render("○ offline")
	default:
		return StyleMuted.Render("· unknown")
	}
}

// ResultBadge renders a coloured fan-out result status.
func ResultBadge(s v1.ResultStatus) string {
	switch s {
	case v1.ResultOK:
		return StyleSuccess.Render("ok")
	case v1.ResultAuthFailed:
		return StyleWarning.Render("login failed")
	case v1.ResultOffline:
		return StyleError.Render("offline")
	default:
		return StyleError.Render("error")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Table
// ─────────────────────────────────────────────────────────────────────────────

// Table renders a terminal table with coloured headers. Cells may contain
// styled text; widths are measured without escape sequences.
type Table struct {
	headers []string
	rows    [][]string
	out     io.Writer
}

// NewTable creates a Table writing to Out.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers, out: Out}
}

// AddRow appends a data row.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the table.
func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, StylePrimary.Render(t.line(t.headers, widths)))
	var sep strings.Builder
	for _, w := range widths {
		sep.WriteString(strings.Repeat("─", w+2))
	}
	fmt.Fprintln(t.out, StyleMuted.Render(sep.String()))
	for _, row := range t.rows {
		fmt.Fprintln(t.out, t.line(row, widths))
	}
	fmt.Fprintln(t.out)
}

func (t *Table) line(cells []string, widths []int) string {
	var b strings.Builder
	for i, cell := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", w-lipgloss.Width(cell)+2))
	}
	return strings.TrimRight(b.String(), " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// Spinner
// ─────────────────────────────────────────────────────────────────────────────

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a non-blocking terminal spinner.
type Spinner struct {
	label  string
	done   chan struct{}
	mu     sync.Mutex
	active bool
}

// NewSpinner creates a Spinner with the given label.
func NewSpinner(label string) *Spinner {
	return &Spinner{label: label, done: make(chan struct{})}
}

// Start begins the animation in a goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					fmt.Fprintf(Out, "\r%s %s ", StylePrimary.Render(spinnerFrames[i%len(spinnerFrames)]), StyleText.Render(s.label))
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop halts the spinner and prints the final state.
func (s *Spinner) Stop(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	close(s.done)
	s.active = false

	mark := StyleSuccess.Render("✓")
	if !success {
		mark = StyleError.Render("✗")
	}
	fmt.Fprintf(Out, "\r%s %s\n", mark, StyleText.Render(s.label))
}
