package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f9-o/sensorhub/internal/cli/commands"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := pprint.Out
	pprint.Out = &buf
	t.Cleanup(func() { pprint.Out = prev })
	return &buf
}

func TestRoot_RegistersCommands(t *testing.T) {
	var names []string
	for _, c := range Root().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"init", "nodes", "report", "archive", "live", "send", "logs",
		"credentials", "serve", "agent", "cert", "ui", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersion_SkipsRuntime(t *testing.T) {
	out := captureOut(t)
	commands.Version = "v9.9.9-test"
	t.Cleanup(func() { commands.Version = "dev" })

	Root().SetArgs([]string{"version"})
	require.NoError(t, Root().Execute())
	assert.Contains(t, out.String(), "v9.9.9-test")
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	t.Setenv("SENSORHUB_HOME", t.TempDir())
	dir := t.TempDir()
	captureOut(t)

	Root().SetArgs([]string{"init", "--path", dir, "--node", "10.0.0.5", "--graph", "10.0.0.5"})
	require.NoError(t, Root().Execute())

	cfg, err := config.Load(filepath.Join(dir, config.ProjectFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5:10065"}, cfg.Remote.Nodes)
	assert.Equal(t, "10.0.0.5:10065", cfg.Remote.GraphAddress)
}

func TestNodesList_InitialisesRuntime(t *testing.T) {
	home := t.TempDir()
	t.Setenv("SENSORHUB_HOME", home)
	out := captureOut(t)

	Root().SetArgs([]string{"nodes", "ls"})
	require.NoError(t, Root().Execute())

	assert.Contains(t, out.String(), "No nodes registered")
	_, err := os.Stat(filepath.Join(home, "state.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, "logs", "sensorhub.log"))
	assert.NoError(t, err)
}
