package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SENSORHUB_HOME", home)
	return home
}

func TestLoad_SavedConfigRoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ProjectFile)

	cfg := Default()
	cfg.Remote.Nodes = []string{"10.0.0.10", "[::1]:9999"}
	cfg.Remote.GraphAddress = "10.0.0.10"
	cfg.Remote.Timeout = 3 * time.Second
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.10", "[::1]:9999"}, loaded.Remote.Nodes)
	assert.Equal(t, "10.0.0.10", loaded.Remote.GraphAddress)
	assert.Equal(t, 3*time.Second, loaded.Remote.Timeout)
	assert.Equal(t, 500*time.Millisecond, loaded.Remote.LiveTimeout)
	assert.Equal(t, 100.0, loaded.Archive.MemoryThresholdMB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ProjectFile)
	require.NoError(t, Save(path, Default()))

	t.Setenv("SENSORHUB_REMOTE_PASSWORD", "from-env")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.Remote.Password)
}

func TestLoad_RejectsDuplicateNodes(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ProjectFile)

	cfg := Default()
	// Same node once with and once without the default port.
	cfg.Remote.Nodes = []string{"10.0.0.10", "https://10.0.0.10:10065/"}
	require.NoError(t, Save(path, cfg))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node address")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestArchiveDir_DefaultsUnderHome(t *testing.T) {
	home := isolate(t)
	cfg := Default()
	assert.Equal(t, filepath.Join(home, "archives"), cfg.ArchiveDir())

	cfg.Archive.Dir = "/srv/zips"
	assert.Equal(t, "/srv/zips", cfg.ArchiveDir())
}

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore(RemoteConfig{Username: "a", Password: "b"})
	assert.Equal(t, v1.Credentials{Username: "a", Password: "b"}, store.Get())

	store.Set(v1.Credentials{Username: "c", Password: "d"})
	assert.Equal(t, "c", store.Get().Username)
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("remote.password"))
	assert.True(t, IsSensitiveKey("agent.password_hash"))
	assert.False(t, IsSensitiveKey("remote.nodes"))
}
