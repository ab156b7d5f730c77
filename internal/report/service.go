package report

import (
	"context"
	"fmt"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/pkg/errs"
)

// Service regenerates reports into the cache and records each run.
type Service struct {
	builder *Builder
	cache   *Cache
	db      *state.DB // optional generation history
	log     *logger.Logger
}

// NewService constructs a Service. db may be nil.
func NewService(builder *Builder, cache *Cache, db *state.DB, log *logger.Logger) *Service {
	return &Service{builder: builder, cache: cache, db: db, log: log}
}

// Cache returns the service's cache.
func (s *Service) Cache() *Cache { return s.cache }

// Builder returns the service's builder.
func (s *Service) Builder() *Builder { return s.builder }

// Regenerate rebuilds kind for addresses and replaces its cache slot.
//
// The generating flag is set for the duration and always cleared. On
// failure the slot keeps its previous document with the error attached.
func (s *Service) Regenerate(ctx context.Context, kind v1.ReportKind, addresses []string) (art Artifact, err error) {
	if !Valid(kind) {
		return Artifact{}, errs.Newf(errs.ErrReportKind, "report.regenerate", "unknown report kind %q", kind)
	}

	s.cache.setGenerating(kind, true)
	defer s.cache.setGenerating(kind, false)

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.ErrReportGeneration, "report.regenerate", "panic: %v", r).WithNode(string(kind))
		}
		if err != nil {
			s.cache.Fail(kind, err)
			s.log.Error("report generation failed", "kind", kind, "err", err)
		}
		s.record(kind, len(addresses), art.Failed, started, err)
	}()

	s.log.Info("generating report", "kind", kind, "nodes", len(addresses))

	var html string
	var nodes, failed int
	if kind == v1.ReportCombo {
		all, cerr := s.builder.CollectAll(ctx, addresses)
		if cerr != nil {
			return Artifact{}, errs.Wrap(cerr, errs.ErrReportGeneration, "report.collect").WithNode(string(kind))
		}
		html, err = s.builder.RenderCombo(all)
		nodes, failed = len(addresses), failedAcross(all)
	} else {
		rs, cerr := s.builder.Collect(ctx, addresses, kind)
		if cerr != nil {
			return Artifact{}, errs.Wrap(cerr, errs.ErrReportGeneration, "report.collect").WithNode(string(kind))
		}
		html, err = s.builder.Render(kind, rs)
		nodes, failed = len(rs), countFailed(rs)
	}
	if err != nil {
		return Artifact{}, err
	}

	art = Artifact{
		Kind:        kind,
		HTML:        html,
		GeneratedAt: s.builder.now().UTC(),
		Nodes:       nodes,
		Failed:      failed,
	}
	s.cache.Store(art)
	s.log.Info("report generated", "kind", kind, "nodes", nodes, "failed", failed, "took", time.Since(started).Round(time.Millisecond))
	return art, nil
}

func (s *Service) record(kind v1.ReportKind, nodes, failed int, started time.Time, err error) {
	done := time.Now()
	result := "success"
	msg := ""
	if err != nil {
		result, msg = "failure", err.Error()
	}
	s.log.Audit(logger.AuditEntry{
		Op:     "report.regenerate",
		Kind:   string(kind),
		Nodes:  nodes,
		Failed: failed,
		Result: result,
	})
	if s.db == nil {
		return
	}
	rec := v1.GenerationRecord{
		ID:          fmt.Sprintf("report-%s-%d", kind, started.UnixNano()),
		Artifact:    "report",
		Kind:        string(kind),
		Nodes:       nodes,
		Failed:      failed,
		StartedAt:   started.UTC(),
		CompletedAt: done.UTC(),
		Result:      result,
		DurationMS:  done.Sub(started).Milliseconds(),
		Error:       msg,
	}
	if perr := s.db.PutGeneration(rec); perr != nil {
		s.log.Warn("record generation", "kind", kind, "err", perr)
	}
}

func failedAcross(all Results) int {
	failed := map[string]bool{}
	for _, rs := range all {
		for _, r := range rs {
			if !r.OK() {
				failed[r.Address] = true
			}
		}
	}
	return len(failed)
}
