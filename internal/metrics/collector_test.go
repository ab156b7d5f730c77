package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/live"
	"github.com/f9-o/sensorhub/internal/remote"
)

type fakeSource struct {
	values map[string][]live.Reading
}

func (f *fakeSource) Read(_ context.Context, cmd remote.Command) (live.Reading, error) {
	q := f.values[cmd.Name]
	if len(q) == 0 {
		return live.Absent, errors.New("timeout")
	}
	r := q[0]
	f.values[cmd.Name] = q[1:]
	return r, nil
}

func TestCollector_RecordsHistory(t *testing.T) {
	src := &fakeSource{values: map[string][]live.Reading{
		"GetCPUTemperature": {live.Value("40.5"), live.Value("41"), live.Absent},
	}}
	c := NewCollector(src, []string{"CPUTemperature", "Pressure"}, logger.Discard())

	for i := 0; i < 3; i++ {
		c.CollectOnce(context.Background())
	}

	temp := c.Series("CPUTemperature")
	assert.Equal(t, []float64{40.5, 41}, temp.Values())
	last, ok := temp.Latest()
	require.True(t, ok)
	assert.False(t, last.Present)

	assert.Len(t, c.Series("Pressure").Get(), 3)
	assert.Empty(t, c.Series("Pressure").Values())
}

func TestSeries_Bounded(t *testing.T) {
	s := &Series{max: 3}
	for i := 0; i < 5; i++ {
		s.add(sampleOf(float64(i)))
	}
	assert.Equal(t, []float64{2, 3, 4}, s.Values())
}

func sampleOf(v float64) v1.LiveSample {
	return v1.LiveSample{Metric: "x", Value: v, Present: true}
}
