package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
	"github.com/f9-o/sensorhub/internal/report"
)

func newModel(t *testing.T, nodes ...string) (*Model, *remote.Registry) {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	creds := config.NewCredentialStore(config.RemoteConfig{Username: remotetest.Username, Password: remotetest.Password})
	client := remote.NewClient(creds, remote.Options{Timeout: 2 * time.Second}, logger.Discard())
	coord := remote.NewCoordinator(client, 0, logger.Discard())
	builder := report.NewBuilder(coord, logger.Discard())
	reg := remote.NewRegistry(db)

	m := New(Config{
		Context:  context.Background(),
		Registry: reg,
		Reports:  report.NewService(builder, report.NewCache(), nil, logger.Discard()),
		Archives: archive.NewService(coord, builder, archive.NewSlots(), archive.Options{Dir: t.TempDir()}, nil, logger.Discard()),
		Nodes:    func() ([]string, error) { return nodes, nil },
		Log:      logger.Discard(),
	})
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return m, reg
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_LoadsNodes(t *testing.T) {
	m, reg := newModel(t)
	_, err := reg.Add("10.0.0.5", "greenhouse")
	require.NoError(t, err)

	msg := m.loadNodesCmd()()
	m.Update(msg)
	require.Len(t, m.nodes, 1)
	assert.Contains(t, m.View(), "greenhouse")
}

func TestModel_CyclesPanels(t *testing.T) {
	m, _ := newModel(t)
	assert.Equal(t, PanelNodes, m.panel)
	m.Update(key("tab"))
	assert.Equal(t, PanelArtifacts, m.panel)
	assert.Contains(t, m.View(), "REPORTS & ARCHIVES")
	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, PanelNodes, m.panel)
}

func TestModel_RegenerateFromArtifacts(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse").Set("GetSystemReport", []byte("<p>ok</p>"))
	m, _ := newModel(t, node.Address())

	m.Update(key("tab"))
	m.Update(key("enter"))
	require.NotNil(t, m.modal)

	_, cmd := m.Update(key("y"))
	require.NotNil(t, cmd)
	assert.Nil(t, m.modal)

	done, ok := cmd().(regenDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	m.Update(done)

	art, _ := m.cfg.Reports.Cache().Get(v1.ReportSystem)
	assert.Contains(t, art.HTML, "<p>ok</p>")
	assert.Contains(t, m.eventLines[len(m.eventLines)-1], "system report regenerated")
}

func TestModel_RemoveNode(t *testing.T) {
	m, reg := newModel(t)
	_, err := reg.Add("10.0.0.5", "")
	require.NoError(t, err)
	m.Update(m.loadNodesCmd()())

	m.Update(key("x"))
	require.NotNil(t, m.modal)
	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	m.Update(cmd())

	assert.Empty(t, m.nodes)
	nodes, err := reg.List()
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestModel_LogLinesAppend(t *testing.T) {
	m, _ := newModel(t)
	m.Update(logLineMsg("level=INFO msg=hello\n"))
	require.Len(t, m.eventLines, 1)
	assert.Equal(t, "level=INFO msg=hello", m.eventLines[0])
}
