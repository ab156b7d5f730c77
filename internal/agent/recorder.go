package agent

import (
	"context"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/sensors"
)

// DefaultRecordInterval is how often readings are recorded.
const DefaultRecordInterval = 5 * time.Minute

// Recorder periodically stores a snapshot of every sensor reading.
type Recorder struct {
	sensors  *sensors.Registry
	db       *state.DB
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewRecorder constructs a Recorder. interval <= 0 uses DefaultRecordInterval.
func NewRecorder(reg *sensors.Registry, db *state.DB, interval time.Duration, log *logger.Logger) *Recorder {
	if interval <= 0 {
		interval = DefaultRecordInterval
	}
	return &Recorder{sensors: reg, db: db, interval: interval, now: time.Now, log: log}
}

// RecordOnce stores one snapshot. Empty snapshots are skipped.
func (r *Recorder) RecordOnce(ctx context.Context) error {
	values := r.sensors.ReadAll(ctx)
	if len(values) == 0 {
		return nil
	}
	return r.db.AppendReading(v1.ReadingSnapshot{Timestamp: r.now().UTC(), Values: values})
}

// Run records immediately and then on every tick until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if err := r.RecordOnce(ctx); err != nil {
			r.log.Warn("record readings", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
