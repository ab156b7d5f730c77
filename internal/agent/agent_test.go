package agent

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/sensors"
	"github.com/f9-o/sensorhub/pkg/errs"
)

type recordingActions struct{ got []string }

func (a *recordingActions) Run(_ context.Context, command string, form url.Values) error {
	a.got = append(a.got, command+"?"+form.Encode())
	return nil
}

type fixture struct {
	srv     *Server
	addr    string
	db      *state.DB
	actions *recordingActions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	db, err := state.Open(filepath.Join(t.TempDir(), "readings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "sensorhub.log"), []byte("line one\n"), 0600))

	reg := sensors.NewRegistry(logger.Discard())
	reg.Register("EnvTemperature", sensors.Static("21.5"))
	reg.Register("Uptime", sensors.Static("3600"))

	actions := &recordingActions{}
	srv := NewServer(Options{
		Username:     "kootnet",
		PasswordHash: hash,
		Hostname:     "greenhouse",
		LogDir:       logDir,
		Version:      "test",
		Config:       map[string]string{"record_interval": "5m0s"},
	}, reg, db, actions, logger.Discard())

	ts := httptest.NewTLSServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, addr: strings.TrimPrefix(ts.URL, "https://"), db: db, actions: actions}
}

func client(password string) *remote.Client {
	creds := config.NewCredentialStore(config.RemoteConfig{Username: "kootnet", Password: password})
	return remote.NewClient(creds, remote.Options{Timeout: 5 * time.Second}, logger.Discard())
}

func TestAgent_OpenCommands(t *testing.T) {
	f := newFixture(t)
	c := client("")
	ctx := context.Background()

	body, err := c.SendTo(ctx, f.addr, remote.CmdCheckOnline, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	body, err = c.SendTo(ctx, f.addr, remote.CmdGetHostName, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "greenhouse", string(body))

	body, err = c.SendTo(ctx, f.addr, remote.MetricCommand("EnvTemperature"), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "21.5", string(body))

	body, err = c.SendTo(ctx, f.addr, remote.MetricCommand("Humidity"), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, remote.NoSensor, string(body))

	body, err = c.SendTo(ctx, f.addr, remote.CmdSensorReadings, nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"EnvTemperature":"21.5","Uptime":"3600"}`, string(body))
}

func TestAgent_AuthRequired(t *testing.T) {
	f := newFixture(t)

	_, err := client("wrong").SendTo(context.Background(), f.addr, remote.CmdSystemReport, nil, 0)
	assert.True(t, errs.IsCode(err, errs.ErrNodeAuthFailed))

	// Without a session cookie the node answers 401 with the marker.
	hc := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}} //nolint:gosec
	resp, err := hc.Get("https://" + f.addr + "/GetConfigReport")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, remote.AuthErrorMarker, buf.String())
}

func TestAgent_Reports(t *testing.T) {
	f := newFixture(t)
	c := client("s3cret")
	ctx := context.Background()

	for _, cmd := range []remote.Command{remote.CmdSystemReport, remote.CmdConfigReport, remote.CmdReadingsReport, remote.CmdLatencyReport} {
		body, err := c.SendTo(ctx, f.addr, cmd, nil, 0)
		require.NoError(t, err, cmd.Name)
		assert.True(t, strings.HasPrefix(string(body), "<style>"), cmd.Name)
	}

	body, err := c.SendTo(ctx, f.addr, remote.CmdReadingsReport, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), "21.5")

	body, err = c.SendTo(ctx, f.addr, remote.CmdConfigReport, nil, 0)
	require.NoError(t, err)
	assert.Contains(t, string(body), "record_interval")
}

func TestAgent_DatabaseAndLogs(t *testing.T) {
	f := newFixture(t)
	rec := NewRecorder(f.srv.sensors, f.db, time.Minute, logger.Discard())
	require.NoError(t, rec.RecordOnce(context.Background()))

	c := client("s3cret")
	ctx := context.Background()

	size, err := c.SendTo(ctx, f.addr, remote.CmdDatabaseSize, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, "0.000", string(size))

	data, err := c.SendTo(ctx, f.addr, remote.CmdDownloadDatabase, nil, 0)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, DatabaseEntryName, zr.File[0].Name)

	data, err = c.SendTo(ctx, f.addr, remote.CmdDownloadLogs, nil, 0)
	require.NoError(t, err)
	zr, err = zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "sensorhub.log", zr.File[0].Name)
}

func TestAgent_ControlCommands(t *testing.T) {
	f := newFixture(t)
	c := client("s3cret")
	ctx := context.Background()

	_, err := c.SendTo(ctx, f.addr, remote.CmdSetHostName, url.Values{"hostname": {"shed"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "shed", f.srv.Hostname())

	_, err = c.SendTo(ctx, f.addr, remote.CmdSetHostName, url.Values{}, 0)
	assert.True(t, errs.IsCode(err, errs.ErrNodeUnknown))

	_, err = c.SendTo(ctx, f.addr, remote.CmdRebootSystem, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"SetHostName?hostname=shed", "RebootSystem?"}, f.actions.got)
}

func TestAgent_WrongMethod(t *testing.T) {
	f := newFixture(t)
	_, err := client("s3cret").SendTo(context.Background(), f.addr, remote.Command{Name: "RebootSystem", Method: http.MethodGet}, nil, 0)
	assert.True(t, errs.IsCode(err, errs.ErrNodeUnknown))
}

func TestSessions_Expire(t *testing.T) {
	s := newSessions(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	tok, err := s.issue()
	require.NoError(t, err)
	assert.True(t, s.valid(tok))

	now = now.Add(2 * time.Minute)
	assert.False(t, s.valid(tok))
	assert.False(t, s.valid("forged"))
}

func TestLoadOrCreateCert_Reuses(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrCreateCert("", "", dir, []string{"greenhouse.local"})
	require.NoError(t, err)
	second, err := LoadOrCreateCert("", "", dir, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])

	_, err = LoadOrCreateCert(filepath.Join(dir, "missing.crt"), filepath.Join(dir, "missing.key"), dir, nil)
	assert.Error(t, err)
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "pw"))
	assert.False(t, CheckPassword(hash, "nope"))
	assert.False(t, CheckPassword("", "pw"))
}

func TestRecorder_RecordsSnapshots(t *testing.T) {
	f := newFixture(t)
	rec := NewRecorder(f.srv.sensors, f.db, time.Hour, logger.Discard())
	rec.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, rec.RecordOnce(context.Background()))

	snaps, err := f.db.ListReadings(time.Time{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "21.5", snaps[0].Values["EnvTemperature"])
	assert.True(t, snaps[0].Timestamp.Equal(rec.now()))
}

func TestRecorder_SkipsEmptyRegistry(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := NewRecorder(sensors.NewRegistry(logger.Discard()), db, 0, logger.Discard())
	require.NoError(t, rec.RecordOnce(context.Background()))

	snaps, err := db.ListReadings(time.Time{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
