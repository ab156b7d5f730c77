package components

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{5, 5, 5}, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{1, 2}, 10))
	// Only the newest width values are drawn.
	assert.Equal(t, "▁█", Sparkline([]float64{100, 0, 1, 2}, 2))
}

func TestRenderNodesTable(t *testing.T) {
	out := RenderNodesTable([]v1.NodeInfo{
		{Address: "10.0.0.5:10065", DisplayName: "greenhouse", Status: v1.NodeOnline, ResponseTime: 12 * time.Millisecond, LastSeen: time.Now()},
		{Address: "10.0.0.6:10065", Status: v1.NodeOffline},
	}, 0, 100, 10)
	assert.Contains(t, out, "greenhouse")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "offline")
	assert.Contains(t, out, "never")

	assert.Contains(t, RenderNodesTable(nil, 0, 100, 10), "No nodes registered")
}

func TestRenderArtifacts_States(t *testing.T) {
	out := RenderArtifacts([]ArtifactRow{
		{Group: "report", Kind: "system"},
		{Group: "report", Kind: "config", Generating: true},
		{Group: "archive", Kind: "logs", Ready: true, GeneratedAt: time.Now(), Size: 2048, Nodes: 3, Failed: 1},
		{Group: "archive", Kind: "bigzip", Err: "boom"},
	}, 2, 120, 12)
	assert.Contains(t, out, "not generated")
	assert.Contains(t, out, "generating")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "failed")
}

func TestRenderLive(t *testing.T) {
	out := RenderLive([]string{"CPUTemperature", "Humidity"}, 0, []float64{40, 41}, v1.LiveSample{Value: 41, Present: true}, 80, 8)
	assert.Contains(t, out, "41.00")
	assert.Contains(t, out, "Humidity")

	out = RenderLive([]string{"Humidity"}, 0, nil, v1.LiveSample{}, 80, 8)
	assert.Contains(t, out, "NoSensor")
	assert.Contains(t, out, "waiting for samples")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
