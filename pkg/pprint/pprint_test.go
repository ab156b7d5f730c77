package pprint

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	v1 "github.com/f9-o/sensorhub/api/v1"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevErr := Out, ErrOut
	Out, ErrOut = &buf, &buf
	t.Cleanup(func() { Out, ErrOut = prevOut, prevErr })
	return &buf
}

func TestTable_AlignsStyledCells(t *testing.T) {
	buf := capture(t)
	tbl := NewTable("NODE", "STATUS", "RTT")
	tbl.AddRow("greenhouse", NodeBadge(v1.NodeOnline), "3ms")
	tbl.AddRow("shed", NodeBadge(v1.NodeOffline), "-")
	tbl.Render()

	out := buf.String()
	assert.Contains(t, out, "greenhouse")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "offline")
	for _, l := range strings.Split(out, "\n") {
		assert.Equal(t, l, strings.TrimRight(l, " "))
	}
}

func TestBadges(t *testing.T) {
	assert.Contains(t, ResultBadge(v1.ResultAuthFailed), "login failed")
	assert.Contains(t, ResultBadge(v1.ResultUnknownError), "error")
	assert.Contains(t, NodeBadge(v1.NodeDegraded), "degraded")
	assert.Contains(t, NodeBadge(""), "unknown")
}

func TestHelpersWriteToOut(t *testing.T) {
	buf := capture(t)
	Success("saved %s", "config")
	Error("boom")
	KV("Address", "10.0.0.5:10065")
	assert.Contains(t, buf.String(), "saved config")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "10.0.0.5:10065")
}
