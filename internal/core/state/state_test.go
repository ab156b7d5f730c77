package state

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNodes_CRUD(t *testing.T) {
	db := openTemp(t)

	require.NoError(t, db.PutNode(v1.NodeInfo{Address: "10.0.0.2:10065", Status: v1.NodeOffline}))
	require.NoError(t, db.PutNode(v1.NodeInfo{Address: "10.0.0.1:10065", Status: v1.NodeOffline}))

	got, err := db.GetNode("10.0.0.2:10065")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v1.NodeOffline, got.Status)

	missing, err := db.GetNode("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	nodes, err := db.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "10.0.0.1:10065", nodes[0].Address)

	require.NoError(t, db.DeleteNode("10.0.0.1:10065"))
	nodes, err = db.ListNodes()
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestUpdateNodeStatus(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.PutNode(v1.NodeInfo{Address: "a:1"}))

	require.NoError(t, db.UpdateNodeStatus("a:1", v1.NodeOnline, 42*time.Millisecond, 0))
	got, err := db.GetNode("a:1")
	require.NoError(t, err)
	assert.Equal(t, v1.NodeOnline, got.Status)
	assert.Equal(t, 42*time.Millisecond, got.ResponseTime)
	assert.False(t, got.LastSeen.IsZero())

	// Offline updates keep the last good response time and last-seen stamp.
	seen := got.LastSeen
	require.NoError(t, db.UpdateNodeStatus("a:1", v1.NodeOffline, 0, 3))
	got, err = db.GetNode("a:1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailCount)
	assert.Equal(t, 42*time.Millisecond, got.ResponseTime)
	assert.Equal(t, seen, got.LastSeen)

	assert.Error(t, db.UpdateNodeStatus("missing", v1.NodeOnline, 0, 0))
}

func TestGenerations_NewestFirst(t *testing.T) {
	db := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.PutGeneration(v1.GenerationRecord{ID: "a", Artifact: "report", StartedAt: base}))
	require.NoError(t, db.PutGeneration(v1.GenerationRecord{ID: "b", Artifact: "archive", StartedAt: base.Add(time.Minute)}))
	require.NoError(t, db.PutGeneration(v1.GenerationRecord{ID: "c", Artifact: "report", StartedAt: base.Add(2 * time.Minute)}))

	all, err := db.ListGenerations("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	reports, err := db.ListGenerations("report")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"c", "a"}, []string{reports[0].ID, reports[1].ID})
}

func TestReadings_SinceAndSnapshot(t *testing.T) {
	db := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendReading(v1.ReadingSnapshot{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Values:    map[string]string{"CPUTemperature": "40.0"},
		}))
	}

	recent, err := db.ListReadings(base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	var buf bytes.Buffer
	n, err := db.Snapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	size, err := db.Size()
	require.NoError(t, err)
	assert.Equal(t, n, size)
}
