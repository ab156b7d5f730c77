package web

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/live"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
	"github.com/f9-o/sensorhub/internal/report"
)

func newServer(t *testing.T, threshold float64, graph string, nodes ...string) *Server {
	t.Helper()
	creds := config.NewCredentialStore(config.RemoteConfig{Username: remotetest.Username, Password: remotetest.Password})
	client := remote.NewClient(creds, remote.Options{Timeout: 2 * time.Second}, logger.Discard())
	coord := remote.NewCoordinator(client, 0, logger.Discard())

	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	builder := report.NewBuilder(coord, logger.Discard())
	reports := report.NewService(builder, report.NewCache(), db, logger.Discard())
	archives := archive.NewService(coord, builder, archive.NewSlots(),
		archive.Options{Dir: t.TempDir(), ThresholdMB: threshold}, db, logger.Discard())
	proxy := live.NewProxy(client, graph, 0, logger.Discard())
	return NewServer(reports, archives, proxy, Static(nodes), db, logger.Discard())
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthz(t *testing.T) {
	rr := do(t, newServer(t, 100, "").Handler(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestLive_Passthrough(t *testing.T) {
	node := remotetest.NewNode(t, "graph").
		SetOpen("GetCPUTemperature", []byte("47.9")).
		SetOpen("GetHumidity", []byte("NoSensor"))
	h := newServer(t, 100, node.Address()).Handler()

	rr := do(t, h, http.MethodGet, "/LGWGetCPUTemperature")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "47.9", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/LGWGetHumidity")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NoSensor", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/favicon.ico")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLive_UnreachableIs503(t *testing.T) {
	h := newServer(t, 100, remotetest.DeadAddress(t)).Handler()
	rr := do(t, h, http.MethodGet, "/LGWGetPressure")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "NoSensor", rr.Body.String())
}

func TestReports_RegenerateThenDownload(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse").
		Set("GetLatencyReport", []byte(`<p id="lat">3ms</p>`))
	srv := newServer(t, 100, "", node.Address())
	h := srv.Handler()

	rr := do(t, h, http.MethodGet, "/reports/latency")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "not generated")

	rr = do(t, h, http.MethodPost, "/reports/latency")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	srv.Wait()

	rr = do(t, h, http.MethodGet, "/reports/latency")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `id="lat"`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/reports/weather").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/reports/weather").Code)
}

func TestArchives_NotReadyThenInMemory(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse").
		Set("GetZippedLogsSize", []byte("0.2")).
		Set("DownloadZippedLogs", []byte("log-bytes"))
	srv := newServer(t, 100, "", node.Address())
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/archives/logs").Code)

	rr := do(t, h, http.MethodPost, "/archives/logs")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	srv.Wait()

	rr = do(t, h, http.MethodGet, "/archives/logs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "logs.zip")
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 1)
}

func TestArchives_ServedFromDisk(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse").
		Set("GetDatabaseSize", []byte("5")).
		Set("DownloadDatabase", []byte("db-bytes"))
	srv := newServer(t, 5, "", node.Address())
	h := srv.Handler()

	do(t, h, http.MethodPost, "/archives/databases")
	srv.Wait()

	job, _ := srv.archives.Slots().Get(v1.ArchiveDatabases)
	require.False(t, job.InMemory)

	rr := do(t, h, http.MethodGet, "/archives/databases")
	require.Equal(t, http.StatusOK, rr.Code)
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 1)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/archives/everything").Code)
}

func TestStatus(t *testing.T) {
	node := remotetest.NewNode(t, "greenhouse").
		Set("GetSystemReport", []byte(`<p>sys</p>`))
	srv := newServer(t, 100, "", node.Address())
	h := srv.Handler()

	do(t, h, http.MethodPost, "/reports/system")
	srv.Wait()

	rr := do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rr.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Len(t, st.Reports, 5)
	require.Len(t, st.Archives, 4)

	byKind := map[string]artifactStatus{}
	for _, r := range st.Reports {
		byKind[r.Kind] = r
	}
	assert.True(t, byKind["system"].Ready)
	assert.Equal(t, 1, byKind["system"].Nodes)
	assert.False(t, byKind["config"].Ready)
	assert.False(t, byKind["system"].Generating)

	require.Len(t, st.History, 1)
	assert.Equal(t, "report", st.History[0].Artifact)
}
