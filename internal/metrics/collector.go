// Package metrics polls live metric values from the graphing node and keeps
// a bounded history per metric for the dashboard.
package metrics

import (
	"context"
	"sync"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/live"
	"github.com/f9-o/sensorhub/internal/remote"
)

// PollInterval is how often metrics are collected.
const PollInterval = 2 * time.Second

// DefaultHistory is the number of samples kept per metric.
const DefaultHistory = 120

// Source reads one metric; *live.Proxy satisfies it.
type Source interface {
	Read(ctx context.Context, cmd remote.Command) (live.Reading, error)
}

// Series is a bounded, oldest-first history of samples for one metric.
type Series struct {
	mu      sync.RWMutex
	max     int
	samples []v1.LiveSample
}

// Get returns a copy of the samples.
func (s *Series) Get() []v1.LiveSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]v1.LiveSample(nil), s.samples...)
}

// Latest returns the newest sample.
func (s *Series) Latest() (v1.LiveSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.samples) == 0 {
		return v1.LiveSample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Values returns the numeric values of present samples, oldest first.
func (s *Series) Values() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, 0, len(s.samples))
	for _, sm := range s.samples {
		if sm.Present {
			out = append(out, sm.Value)
		}
	}
	return out
}

func (s *Series) add(sm v1.LiveSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sm)
	if over := len(s.samples) - s.max; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
}

// Collector polls a Source for a fixed set of metrics.
type Collector struct {
	src      Source
	metrics  []string
	history  int
	interval time.Duration
	series   map[string]*Series
	mu       sync.RWMutex
	log      *logger.Logger
}

// NewCollector constructs a Collector for metrics.
func NewCollector(src Source, metrics []string, log *logger.Logger) *Collector {
	return &Collector{
		src:      src,
		metrics:  metrics,
		history:  DefaultHistory,
		interval: PollInterval,
		series:   make(map[string]*Series),
		log:      log,
	}
}

// WithInterval overrides the poll interval.
func (c *Collector) WithInterval(d time.Duration) *Collector {
	if d > 0 {
		c.interval = d
	}
	return c
}

// Metrics returns the polled metric names.
func (c *Collector) Metrics() []string { return c.metrics }

// Series returns the history for metric, creating it if needed.
func (c *Collector) Series(metric string) *Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.series[metric]; !ok {
		c.series[metric] = &Series{max: c.history}
	}
	return c.series[metric]
}

// Run starts the collection loop. Blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.CollectOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CollectOnce polls every metric once. A failed poll records an absent sample.
func (c *Collector) CollectOnce(ctx context.Context) {
	for _, m := range c.metrics {
		sm := v1.LiveSample{Timestamp: time.Now().UTC(), Metric: m}
		r, err := c.src.Read(ctx, remote.MetricCommand(m))
		if err != nil {
			c.log.Debug("metrics collect", "metric", m, "err", err)
		} else if f, ok := r.Float(); ok {
			sm.Value, sm.Present = f, true
		}
		c.Series(m).add(sm)
	}
}
