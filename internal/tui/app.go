// Package tui defines the Bubble Tea model for the sensorhub dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/metrics"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/report"
	"github.com/f9-o/sensorhub/internal/tui/components"
)

// maxEventLines bounds the event viewport buffer.
const maxEventLines = 500

// Config carries dependencies into the dashboard. Engine, Collector and
// LogLines are optional.
type Config struct {
	Context   context.Context
	Registry  *remote.Registry
	Engine    *remote.Engine
	Reports   *report.Service
	Archives  *archive.Service
	Collector *metrics.Collector
	Nodes     func() ([]string, error) // regeneration targets
	LogLines  <-chan string
	Log       *logger.Logger
}

// ActivePanel identifies which main panel has focus.
type ActivePanel int

const (
	PanelNodes ActivePanel = iota
	PanelArtifacts
	PanelLive
	PanelEvents
	panelCount
)

var panelNames = [...]string{"nodes", "reports & archives", "live", "events"}

func (p ActivePanel) String() string { return panelNames[p] }

// Model is the root Bubble Tea model.
type Model struct {
	cfg Config

	width  int
	height int

	panel      ActivePanel
	nodes      []v1.NodeInfo
	selNode    int
	selArt     int
	selMetric  int
	events     viewport.Model
	eventLines []string

	header components.Header
	footer components.Footer
	modal  *components.Modal
	styles Styles
}

type tickMsg time.Time

type nodeListMsg []v1.NodeInfo

type nodeEventMsg remote.NodeEvent

type logLineMsg string

type regenDoneMsg struct {
	label string
	err   error
}

type errMsg struct{ err error }

// New constructs the dashboard model.
func New(cfg Config) *Model {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	styles := newStyles()
	vp := viewport.New(0, 0)
	vp.Style = styles.EventViewport
	m := &Model{
		cfg:    cfg,
		events: vp,
		styles: styles,
		header: components.NewHeader(),
		footer: components.NewFooter(),
	}
	m.header.SetPanel(m.panel.String())
	return m
}

// Init starts the ticker, the first node load and the event listeners.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tickCmd(), m.loadNodesCmd()}
	if m.cfg.Engine != nil {
		cmds = append(cmds, m.waitEventCmd())
	}
	if m.cfg.LogLines != nil {
		cmds = append(cmds, m.waitLogCmd())
	}
	return tea.Batch(cmds...)
}

// Update handles one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.events.Width = m.width
		m.events.Height = max(m.height-4, 1)

	case tea.KeyMsg:
		if m.modal != nil {
			cmd, done := m.modal.HandleKey(msg)
			if done {
				m.modal = nil
			}
			return m, cmd
		}
		cmds = append(cmds, m.handleKey(msg))

	case tickMsg:
		cmds = append(cmds, m.tickCmd(), m.loadNodesCmd())

	case nodeListMsg:
		m.nodes = msg
		m.selNode = min(m.selNode, max(len(msg)-1, 0))
		online := 0
		for _, n := range msg {
			if n.Status == v1.NodeOnline {
				online++
			}
		}
		m.header.SetNodes(online, len(msg))

	case nodeEventMsg:
		m.appendEvent(fmt.Sprintf("%s  %s → %s (%s)",
			time.Now().Format("15:04:05"), msg.Address, msg.Status, msg.ResponseTime.Round(time.Millisecond)))
		cmds = append(cmds, m.waitEventCmd(), m.loadNodesCmd())

	case logLineMsg:
		m.appendEvent(strings.TrimRight(string(msg), "\n"))
		cmds = append(cmds, m.waitLogCmd())

	case regenDoneMsg:
		if msg.err != nil {
			m.footer.SetError(fmt.Errorf("%s: %w", msg.label, msg.err))
		} else {
			m.footer.SetError(nil)
			m.appendEvent(fmt.Sprintf("%s  %s regenerated", time.Now().Format("15:04:05"), msg.label))
		}

	case errMsg:
		m.footer.SetError(msg.err)
	}

	m.header.SetGenerating(m.generatingCount())

	var vpCmd tea.Cmd
	m.events, vpCmd = m.events.Update(msg)
	cmds = append(cmds, vpCmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	kb := defaultKeymap()

	switch msg.String() {
	case kb.Quit, kb.ForceQuit:
		return tea.Quit

	case kb.TabNext:
		m.setPanel((m.panel + 1) % panelCount)

	case kb.TabPrev:
		m.setPanel((m.panel + panelCount - 1) % panelCount)

	case kb.NavDown, "j":
		m.move(1)

	case kb.NavUp, "k":
		m.move(-1)

	case kb.Refresh:
		return m.loadNodesCmd()

	case kb.Help:
		m.modal = components.NewHelpModal(HelpText(), m.styles.Modal)

	case kb.Remove:
		if m.panel != PanelNodes || len(m.nodes) == 0 {
			return nil
		}
		addr := m.nodes[m.selNode].Address
		m.modal = components.NewConfirmModal(
			fmt.Sprintf("Remove %s?", addr),
			"The node is dropped from the registry and no longer polled.",
			m.styles.Modal,
			func() tea.Cmd { return m.removeNodeCmd(addr) },
		)

	case kb.Regenerate:
		if m.panel != PanelArtifacts {
			return nil
		}
		rows := m.artifactRows()
		if m.selArt >= len(rows) {
			return nil
		}
		row := rows[m.selArt]
		m.modal = components.NewConfirmModal(
			fmt.Sprintf("Regenerate %s %s?", row.Kind, row.Group),
			"Every node is contacted again; the current copy stays available until this finishes.",
			m.styles.Modal,
			func() tea.Cmd { return m.regenerateCmd(row.Group, row.Kind) },
		)
	}
	return nil
}

func (m *Model) setPanel(p ActivePanel) {
	m.panel = p
	m.header.SetPanel(p.String())
}

func (m *Model) move(delta int) {
	clamp := func(v, n int) int { return min(max(v, 0), max(n-1, 0)) }
	switch m.panel {
	case PanelNodes:
		m.selNode = clamp(m.selNode+delta, len(m.nodes))
	case PanelArtifacts:
		m.selArt = clamp(m.selArt+delta, len(v1.ReportKinds)+1+len(v1.ArchiveKinds))
	case PanelLive:
		if m.cfg.Collector != nil {
			m.selMetric = clamp(m.selMetric+delta, len(m.cfg.Collector.Metrics()))
		}
	}
}

func (m *Model) appendEvent(line string) {
	m.eventLines = append(m.eventLines, line)
	if len(m.eventLines) > maxEventLines {
		m.eventLines = m.eventLines[len(m.eventLines)-maxEventLines:]
	}
	m.events.SetContent(strings.Join(m.eventLines, "\n"))
	m.events.GotoBottom()
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.modal != nil {
		return m.modal.Overlay(m.width, m.height)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(m.width),
		m.renderMain(),
		m.footer.View(m.width),
	)
}

func (m *Model) renderMain() string {
	h := max(m.height-2, 1)
	switch m.panel {
	case PanelNodes:
		return components.RenderNodesTable(m.nodes, m.selNode, m.width, h)
	case PanelArtifacts:
		return components.RenderArtifacts(m.artifactRows(), m.selArt, m.width, h)
	case PanelLive:
		if m.cfg.Collector == nil {
			return components.RenderLive(nil, 0, nil, v1.LiveSample{}, m.width, h)
		}
		names := m.cfg.Collector.Metrics()
		if len(names) == 0 {
			return components.RenderLive(nil, 0, nil, v1.LiveSample{}, m.width, h)
		}
		series := m.cfg.Collector.Series(names[m.selMetric])
		latest, _ := series.Latest()
		return components.RenderLive(names, m.selMetric, series.Values(), latest, m.width, h)
	case PanelEvents:
		return components.RenderEvents(m.events)
	}
	return ""
}

// artifactRows snapshots every report and archive slot, reports first.
func (m *Model) artifactRows() []components.ArtifactRow {
	var rows []components.ArtifactRow
	if m.cfg.Reports != nil {
		cache := m.cfg.Reports.Cache()
		for _, k := range append(append([]v1.ReportKind(nil), v1.ReportKinds...), v1.ReportCombo) {
			art, _ := cache.Get(k)
			rows = append(rows, components.ArtifactRow{
				Group:       "report",
				Kind:        string(k),
				Generating:  cache.Generating(k),
				Ready:       !art.GeneratedAt.IsZero(),
				GeneratedAt: art.GeneratedAt,
				Nodes:       art.Nodes,
				Failed:      art.Failed,
				Size:        int64(len(art.HTML)),
				Err:         art.Err,
			})
		}
	}
	if m.cfg.Archives != nil {
		slots := m.cfg.Archives.Slots()
		for _, k := range v1.ArchiveKinds {
			job, _ := slots.Get(k)
			rows = append(rows, components.ArtifactRow{
				Group:       "archive",
				Kind:        string(k),
				Generating:  slots.Generating(k),
				Ready:       job.Ready(),
				GeneratedAt: job.GeneratedAt,
				Nodes:       job.Entries,
				Failed:      job.Failed,
				Size:        job.Size,
				Err:         job.Err,
			})
		}
	}
	return rows
}

func (m *Model) generatingCount() int {
	n := 0
	for _, r := range m.artifactRows() {
		if r.Generating {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadNodesCmd() tea.Cmd {
	return func() tea.Msg {
		if m.cfg.Registry == nil {
			return nodeListMsg(nil)
		}
		nodes, err := m.cfg.Registry.List()
		if err != nil {
			return errMsg{err}
		}
		return nodeListMsg(nodes)
	}
}

func (m *Model) waitEventCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-m.cfg.Engine.Events():
			return nodeEventMsg(ev)
		case <-m.cfg.Context.Done():
			return nil
		}
	}
}

func (m *Model) waitLogCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case line, ok := <-m.cfg.LogLines:
			if !ok {
				return nil
			}
			return logLineMsg(line)
		case <-m.cfg.Context.Done():
			return nil
		}
	}
}

func (m *Model) removeNodeCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		if m.cfg.Engine != nil {
			m.cfg.Engine.Unwatch(addr)
		}
		if err := m.cfg.Registry.Remove(addr); err != nil {
			return errMsg{err}
		}
		nodes, err := m.cfg.Registry.List()
		if err != nil {
			return errMsg{err}
		}
		return nodeListMsg(nodes)
	}
}

func (m *Model) regenerateCmd(group, kind string) tea.Cmd {
	return func() tea.Msg {
		label := kind + " " + group
		addrs, err := m.cfg.Nodes()
		if err != nil {
			return regenDoneMsg{label: label, err: err}
		}
		switch group {
		case "report":
			_, err = m.cfg.Reports.Regenerate(m.cfg.Context, v1.ReportKind(kind), addrs)
		case "archive":
			_, err = m.cfg.Archives.Regenerate(m.cfg.Context, v1.ArchiveKind(kind), addrs)
		}
		return regenDoneMsg{label: label, err: err}
	}
}
