package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/remote/remotetest"
	"github.com/f9-o/sensorhub/pkg/errs"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newBuilder() *Builder {
	creds := config.NewCredentialStore(config.RemoteConfig{Username: remotetest.Username, Password: remotetest.Password})
	client := remote.NewClient(creds, remote.Options{Timeout: 2 * time.Second}, logger.Discard())
	coord := remote.NewCoordinator(client, 0, logger.Discard())
	return NewBuilder(coord, logger.Discard()).WithClock(func() time.Time { return fixedNow })
}

func TestBuild_EndToEndThreeNodes(t *testing.T) {
	ok := remotetest.NewNode(t, "greenhouse").
		Set("GetSystemReport", []byte(`<style>.x{}</style><table id="sys-greenhouse"></table>`))
	locked := remotetest.NewNode(t, "shed").
		Set("GetSystemReport", []byte(`<table id="sys-shed"></table>`)).
		SetPassword("changed").
		SetDelay(60 * time.Millisecond)
	dead := remotetest.DeadAddress(t)

	doc, err := newBuilder().Build(context.Background(), []string{dead, locked.Address(), ok.Address()}, v1.ReportSystem)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(doc, "Sensor Offline"))
	assert.Equal(t, 1, strings.Count(doc, "Login Failed"))
	assert.Equal(t, 1, strings.Count(doc, `id="sys-greenhouse"`))
	assert.NotContains(t, doc, `id="sys-shed"`)
	assert.NotContains(t, doc, "Unknown Error")
	assert.NotContains(t, doc, "{{")

	// Response-time order: fast node, slow node, then the offline one.
	iOK := strings.Index(doc, `id="sys-greenhouse"`)
	iAuth := strings.Index(doc, "Login Failed")
	iOff := strings.Index(doc, "Sensor Offline")
	assert.Less(t, iOK, iAuth)
	assert.Less(t, iAuth, iOff)
	assert.Contains(t, doc, "greenhouse")
}

func TestCollect_EmptyPayloadIsUnknownError(t *testing.T) {
	node := remotetest.NewNode(t, "attic").Set("GetConfigReport", []byte("  "))

	rs, err := newBuilder().Collect(context.Background(), []string{node.Address()}, v1.ReportConfig)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, v1.ResultUnknownError, rs[0].Status)
	assert.Equal(t, "attic", rs[0].DisplayName)
}

func TestCollect_UnknownKind(t *testing.T) {
	_, err := newBuilder().Collect(context.Background(), nil, "weather")
	assert.True(t, errs.IsCode(err, errs.ErrReportKind))
}

func fixedResults() Results {
	mk := func(addr string, rt time.Duration, status v1.ResultStatus, body string) v1.NodeResult {
		return v1.NodeResult{Address: addr, DisplayName: "n-" + addr, ResponseTime: rt, Status: status, Payload: []byte(body)}
	}
	all := Results{}
	for _, kind := range v1.ReportKinds {
		all[kind] = []v1.NodeResult{
			mk("10.0.0.3:10065", 30*time.Millisecond, v1.ResultOK, `<script>x()</script><p>`+string(kind)+` three</p>`),
			mk("10.0.0.1:10065", 10*time.Millisecond, v1.ResultOK, `<style>p{}</style><p>`+string(kind)+` one</p>`),
			mk("10.0.0.2:10065", OfflineResponseTime, v1.ResultOffline, ""),
		}
	}
	return all
}

func TestRenderCombo_DeterministicAndStripped(t *testing.T) {
	b := newBuilder()
	first, err := b.RenderCombo(fixedResults())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.RenderCombo(fixedResults())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	assert.NotContains(t, first, "<script>")
	assert.Equal(t, 1, strings.Count(first, "<style>"), "only the shell's own style block")
	assert.NotContains(t, first, "{{")
	for _, kind := range v1.ReportKinds {
		assert.Contains(t, first, `class="report report-`+string(kind)+`"`)
		assert.Less(t, strings.Index(first, string(kind)+" one"), strings.Index(first, string(kind)+" three"))
	}
	assert.Contains(t, first, "3 nodes")
	assert.Contains(t, first, "1 unavailable")
}

func TestRender_SortsAndKeepsNodeStyles(t *testing.T) {
	doc, err := newBuilder().Render(v1.ReportSystem, fixedResults()[v1.ReportSystem])
	require.NoError(t, err)
	assert.Less(t, strings.Index(doc, "system one"), strings.Index(doc, "system three"))
	assert.Less(t, strings.Index(doc, "system three"), strings.Index(doc, "Sensor Offline"))
	assert.Contains(t, doc, "<style>p{}</style>")
	assert.Contains(t, doc, "10.0 ms")
}

func TestRender_NodeTextCannotInjectPlaceholders(t *testing.T) {
	rs := []v1.NodeResult{{Address: "a:1", DisplayName: "{{ Title }}", Status: v1.ResultOK, Payload: []byte("{{ Body }}")}}
	doc, err := newBuilder().Render(v1.ReportReadings, rs)
	require.NoError(t, err)
	assert.NotContains(t, doc, "{{")
}

func TestStripAssets(t *testing.T) {
	in := "<STYLE type=\"text/css\">\na{}\n</STYLE><p>keep</p><script src=x></script >"
	assert.Equal(t, "<p>keep</p>", StripAssets(in))
}

func TestCache_PlaceholderStoreAndFail(t *testing.T) {
	c := NewCache()
	for _, kind := range append(v1.ReportKinds, v1.ReportCombo) {
		art, ok := c.Get(kind)
		require.True(t, ok)
		assert.Contains(t, art.HTML, "not generated")
		assert.NotContains(t, art.HTML, "{{")
	}
	_, ok := c.Get("weather")
	assert.False(t, ok)

	c.Store(Artifact{Kind: v1.ReportSystem, HTML: "<p>v1</p>"})
	c.Fail(v1.ReportSystem, errs.Newf(errs.ErrReportGeneration, "test", "boom"))
	art, _ := c.Get(v1.ReportSystem)
	assert.Equal(t, "<p>v1</p>", art.HTML)
	assert.Contains(t, art.Err, "boom")
}

func TestService_Regenerate(t *testing.T) {
	node := remotetest.NewNode(t, "porch")
	for _, cmd := range []string{"GetSystemReport", "GetConfigReport", "GetReadingsReport", "GetLatencyReport"} {
		node.Set(cmd, []byte("<p>"+cmd+"</p>"))
	}
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(newBuilder(), NewCache(), db, logger.Discard())

	art, err := svc.Regenerate(context.Background(), v1.ReportCombo, []string{node.Address()})
	require.NoError(t, err)
	assert.False(t, svc.Cache().Generating(v1.ReportCombo))
	assert.Equal(t, 1, art.Nodes)
	assert.Zero(t, art.Failed)
	for _, cmd := range []string{"GetSystemReport", "GetConfigReport", "GetReadingsReport", "GetLatencyReport"} {
		assert.Contains(t, art.HTML, "<p>"+cmd+"</p>")
	}

	cached, _ := svc.Cache().Get(v1.ReportCombo)
	assert.Equal(t, art.HTML, cached.HTML)
	assert.Equal(t, fixedNow, cached.GeneratedAt)

	_, err = svc.Regenerate(context.Background(), "weather", nil)
	assert.True(t, errs.IsCode(err, errs.ErrReportKind))

	recs, err := db.ListGenerations("report")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "success", recs[0].Result)
	assert.Equal(t, "combo", recs[0].Kind)
}

func TestRenderCombo_StrippingCannotJoinBraces(t *testing.T) {
	all := fixedResults()
	all[v1.ReportConfig][0].Payload = []byte(`<p>{<style>x</style>{ ok</p>`)

	doc, err := newBuilder().RenderCombo(all)
	require.NoError(t, err)
	assert.NotContains(t, doc, "{{")
	assert.Contains(t, doc, "&#123;&#123; ok</p>")

	docs, err := newBuilder().RenderAll(all)
	require.NoError(t, err)
	assert.Contains(t, docs[v1.ReportConfig], "<style>x</style>")
}

func TestService_RegenerateFailureKeepsLastGoodDocument(t *testing.T) {
	node := remotetest.NewNode(t, "porch").Set("GetSystemReport", []byte("<p>fresh</p>"))
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := NewCache()
	cache.Store(Artifact{Kind: v1.ReportSystem, HTML: "<p>last good</p>", GeneratedAt: fixedNow, Nodes: 1})

	broken := newBuilder().WithClock(func() time.Time { panic("clock unavailable") })
	svc := NewService(broken, cache, db, logger.Discard())

	_, err = svc.Regenerate(context.Background(), v1.ReportSystem, []string{node.Address()})
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.ErrReportGeneration))

	assert.False(t, cache.Generating(v1.ReportSystem))
	art, _ := cache.Get(v1.ReportSystem)
	assert.Equal(t, "<p>last good</p>", art.HTML)
	assert.Equal(t, fixedNow, art.GeneratedAt)
	assert.Contains(t, art.Err, "clock unavailable")

	recs, err := db.ListGenerations("report")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "failure", recs[0].Result)
}

func TestCache_FailNeverRollsBackNewerDocument(t *testing.T) {
	c := NewCache()
	sl := c.slots[v1.ReportLatency]
	stale := sl.art.Load()

	c.Store(Artifact{Kind: v1.ReportLatency, HTML: "<p>newer</p>"})
	assert.False(t, sl.fail(stale, errs.Newf(errs.ErrReportGeneration, "test", "late failure")))

	art, _ := c.Get(v1.ReportLatency)
	assert.Equal(t, "<p>newer</p>", art.HTML)
	assert.Empty(t, art.Err)
}
