package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(colorMuted).Bold(true).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Foreground(colorText).Padding(0, 1)
	selStyle    = lipgloss.NewStyle().Background(colorSurface).Foreground(colorAccent).Bold(true).Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted).Padding(1, 2)
)

// ─────────────────────────────────────────────────────────────────────────────
// Nodes table
// ─────────────────────────────────────────────────────────────────────────────

// RenderNodesTable renders the registered nodes.
func RenderNodesTable(nodes []v1.NodeInfo, selected, width, height int) string {
	hdr := headerStyle.Render(fmt.Sprintf("  %-22s %-20s %-12s %-10s %s",
		"ADDRESS", "NAME", "STATUS", "RTT", "LAST SEEN"))

	var rows strings.Builder
	for i, n := range nodes {
		rtt, seen := "-", "never"
		if n.ResponseTime > 0 {
			rtt = n.ResponseTime.Round(time.Millisecond).String()
		}
		if !n.LastSeen.IsZero() {
			seen = humanize.Time(n.LastSeen)
		}
		line := fmt.Sprintf("%-22s %-20s %s %-10s %s",
			truncate(n.Address, 22), truncate(n.DisplayName, 20),
			pad(statusBadge(n.Status), 12), rtt, seen)
		if i == selected {
			rows.WriteString(selStyle.Render("▶ "+line) + "\n")
		} else {
			rows.WriteString(rowStyle.Render("  "+line) + "\n")
		}
	}
	body := rows.String()
	if len(nodes) == 0 {
		body = mutedStyle.Render("No nodes registered. Run 'sensorhub nodes add <address>'.")
	}
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("NODES"), hdr, body))
}

// ─────────────────────────────────────────────────────────────────────────────
// Artifacts
// ─────────────────────────────────────────────────────────────────────────────

// ArtifactRow is one report or archive slot as shown in the dashboard.
type ArtifactRow struct {
	Group       string // report | archive
	Kind        string
	Generating  bool
	Ready       bool
	GeneratedAt time.Time
	Nodes       int
	Failed      int
	Size        int64
	Err         string
}

// RenderArtifacts renders the report and archive slots.
func RenderArtifacts(rows []ArtifactRow, selected, width, height int) string {
	hdr := headerStyle.Render(fmt.Sprintf("  %-8s %-10s %-14s %-16s %-8s %s",
		"GROUP", "KIND", "STATE", "GENERATED", "FAILED", "SIZE"))

	var b strings.Builder
	for i, r := range rows {
		state := lipgloss.NewStyle().Foreground(colorMuted).Render("not generated")
		switch {
		case r.Generating:
			state = lipgloss.NewStyle().Foreground(colorWarn).Render("⟳ generating")
		case r.Err != "":
			state = lipgloss.NewStyle().Foreground(colorErr).Render("✗ failed")
		case r.Ready:
			state = lipgloss.NewStyle().Foreground(colorOK).Render("✓ ready")
		}
		when, size := "-", "-"
		if !r.GeneratedAt.IsZero() {
			when = humanize.Time(r.GeneratedAt)
		}
		if r.Size > 0 {
			size = humanize.IBytes(uint64(r.Size))
		}
		line := fmt.Sprintf("%-8s %-10s %s %-16s %-8s %s",
			r.Group, r.Kind, pad(state, 14), truncate(when, 16),
			fmt.Sprintf("%d/%d", r.Failed, r.Nodes), size)
		if i == selected {
			b.WriteString(selStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString(rowStyle.Render("  "+line) + "\n")
		}
	}
	return lipgloss.NewStyle().Width(width).Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("REPORTS & ARCHIVES"), hdr, b.String()))
}

// ─────────────────────────────────────────────────────────────────────────────
// Live graph
// ─────────────────────────────────────────────────────────────────────────────

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the last width values scaled between their min and max.
func Sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

// RenderLive renders one metric's history with its latest value.
func RenderLive(metrics []string, selected int, values []float64, latest v1.LiveSample, width, height int) string {
	var tabs []string
	for i, m := range metrics {
		if i == selected {
			tabs = append(tabs, selStyle.Render(m))
		} else {
			tabs = append(tabs, rowStyle.Render(m))
		}
	}

	content := titleStyle.Render("LIVE") + "\n" + strings.Join(tabs, "") + "\n\n"
	if len(metrics) == 0 {
		return content + mutedStyle.Render("No graph node configured (remote.graph_address).")
	}
	current := lipgloss.NewStyle().Foreground(colorMuted).Render("NoSensor")
	if latest.Present {
		current = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render(fmt.Sprintf("%.2f", latest.Value))
	}
	content += fmt.Sprintf("  %s  %s\n\n", metrics[selected], current)
	spark := Sparkline(values, max(width-6, 1))
	if spark == "" {
		spark = "waiting for samples…"
	}
	content += "  " + lipgloss.NewStyle().Foreground(colorPrimary).Render(spark) + "\n"
	return lipgloss.NewStyle().Width(width).Height(height).Render(content)
}

// ─────────────────────────────────────────────────────────────────────────────
// Event log
// ─────────────────────────────────────────────────────────────────────────────

// RenderEvents renders the event viewport under a title.
func RenderEvents(vp viewport.Model) string {
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("EVENTS"), vp.View())
}

// ─────────────────────────────────────────────────────────────────────────────
// Modal
// ─────────────────────────────────────────────────────────────────────────────

// Modal is a pop-over dialog.
type Modal struct {
	title     string
	body      string
	style     lipgloss.Style
	onConfirm func() tea.Cmd
	confirm   bool
}

// NewConfirmModal creates a confirmation modal.
func NewConfirmModal(title, body string, style lipgloss.Style, onConfirm func() tea.Cmd) *Modal {
	return &Modal{title: title, body: body, style: style, onConfirm: onConfirm, confirm: true}
}

// NewHelpModal creates the keyboard help modal.
func NewHelpModal(body string, style lipgloss.Style) *Modal {
	return &Modal{title: "Keyboard Shortcuts", body: body, style: style}
}

// HandleKey processes a key for the modal. Returns (cmd, done).
func (m *Modal) HandleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc", "q", "n":
		return nil, true
	case "enter", "y":
		if m.confirm && m.onConfirm != nil {
			return m.onConfirm(), true
		}
		return nil, true
	}
	return nil, false
}

// Overlay renders the modal centred in the terminal.
func (m *Modal) Overlay(width, height int) string {
	content := lipgloss.NewStyle().Foreground(colorWarn).Bold(true).Render(m.title) + "\n\n" + m.body
	if m.confirm {
		content += "\n\n  [Enter/y] Confirm   [Esc/n] Cancel"
	} else {
		content += "\n\n  [Esc] Close"
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.style.Render(content))
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func statusBadge(s v1.NodeStatus) string {
	switch s {
	case v1.NodeOnline:
		return lipgloss.NewStyle().Foreground(colorOK).Render("● online")
	case v1.NodeDegraded:
		return lipgloss.NewStyle().Foreground(colorWarn).Render("◐ degraded")
	case v1.NodeOffline:
		return lipgloss.NewStyle().Foreground(colorErr).Render("○ offline")
	default:
		return lipgloss.NewStyle().Foreground(colorMuted).Render("? unknown")
	}
}

// pad right-pads styled text to w visible cells.
func pad(s string, w int) string {
	return s + strings.Repeat(" ", max(w-lipgloss.Width(s), 0))
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
