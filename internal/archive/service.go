package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/report"
	"github.com/f9-o/sensorhub/pkg/errs"
)

const bytesPerMB = 1 << 20

// Reports is the part of report.Builder the reports archive needs.
type Reports interface {
	CollectAll(ctx context.Context, addresses []string) (report.Results, error)
	RenderAll(all report.Results) (map[v1.ReportKind]string, error)
}

// Options configures a Service.
type Options struct {
	Dir         string  // disk archives live at <Dir>/<kind>.zip
	ThresholdMB float64 // see KeepInMemory
}

// Service regenerates archives into Slots.
type Service struct {
	coord   *remote.Coordinator
	reports Reports
	slots   *Slots
	opts    Options
	db      *state.DB // optional generation history
	now     func() time.Time
	log     *logger.Logger
}

// NewService constructs a Service. db may be nil.
func NewService(coord *remote.Coordinator, reports Reports, slots *Slots, opts Options, db *state.DB, log *logger.Logger) *Service {
	if opts.ThresholdMB <= 0 {
		opts.ThresholdMB = DefaultThresholdMB
	}
	return &Service{coord: coord, reports: reports, slots: slots, opts: opts, db: db, now: time.Now, log: log}
}

// Slots returns the service's slots.
func (s *Service) Slots() *Slots { return s.slots }

// Path returns the fixed disk location for kind.
func (s *Service) Path(kind v1.ArchiveKind) string {
	return filepath.Join(s.opts.Dir, FileName(kind))
}

// Valid reports whether kind names an archive.
func Valid(kind v1.ArchiveKind) bool {
	for _, k := range v1.ArchiveKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Regenerate fetches every node's payload for kind, zips the results and
// replaces the kind's slot.
//
// Node files are sized first; when the estimated total is below the
// threshold the archive stays in memory, otherwise it is written to Path.
// Nodes whose fetch failed appear as "<name>.txt" holding a failure marker.
// The generating flag is always cleared; on failure the slot keeps its
// previous archive with the error attached.
func (s *Service) Regenerate(ctx context.Context, kind v1.ArchiveKind, addresses []string) (job Job, err error) {
	if !Valid(kind) {
		return Job{}, errs.Newf(errs.ErrValidation, "archive.regenerate", "unknown archive kind %q", kind)
	}

	s.slots.setGenerating(kind, true)
	defer s.slots.setGenerating(kind, false)

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errs.Newf(errs.ErrArchiveGeneration, "archive.regenerate", "panic: %v", r).WithNode(string(kind))
		}
		if err != nil {
			s.slots.Fail(kind, err)
			s.log.Error("archive generation failed", "kind", kind, "err", err)
		}
		s.record(kind, len(addresses), job.Failed, started, err)
	}()

	s.log.Info("generating archive", "kind", kind, "nodes", len(addresses))

	var e entries
	var estMB float64
	switch kind {
	case v1.ArchiveDatabases:
		estMB = s.collectFiles(ctx, &e, "", addresses, remote.CmdDatabaseSize, remote.CmdDownloadDatabase)
	case v1.ArchiveLogs:
		estMB = s.collectFiles(ctx, &e, "", addresses, remote.CmdZippedLogsSize, remote.CmdDownloadLogs)
	case v1.ArchiveReports:
		if estMB, err = s.collectReports(ctx, &e, "", addresses); err != nil {
			return Job{}, err
		}
	case v1.ArchiveBigZip:
		estMB += s.collectFiles(ctx, &e, "databases/", addresses, remote.CmdDatabaseSize, remote.CmdDownloadDatabase)
		estMB += s.collectFiles(ctx, &e, "logs/", addresses, remote.CmdZippedLogsSize, remote.CmdDownloadLogs)
		rep, rerr := s.collectReports(ctx, &e, "reports/", addresses)
		if rerr != nil {
			return Job{}, rerr
		}
		estMB += rep
	}

	job = Job{
		Kind:        kind,
		Name:        FileName(kind),
		EstimatedMB: estMB,
		Entries:     len(e.names),
		Failed:      e.failed,
		GeneratedAt: s.now().UTC(),
	}
	if KeepInMemory(estMB, s.opts.ThresholdMB) {
		data, zerr := Zip(e.names, e.blobs)
		if zerr != nil {
			return Job{Failed: e.failed}, zerr
		}
		job.InMemory, job.Bytes, job.Size = true, data, int64(len(data))
	} else {
		path := s.Path(kind)
		size, zerr := WriteZip(path, e.names, e.blobs)
		if zerr != nil {
			return Job{Failed: e.failed}, zerr
		}
		job.Path, job.Size = path, size
	}

	s.slots.Store(job)
	s.log.Info("archive generated",
		"kind", kind,
		"entries", job.Entries,
		"failed", job.Failed,
		"in_memory", job.InMemory,
		"estimated_mb", estMB,
		"took", time.Since(started).Round(time.Millisecond),
	)
	return job, nil
}

// collectFiles probes sizes, then downloads every node's file regardless of
// the probe outcome. It returns the estimated total in MB.
func (s *Service) collectFiles(ctx context.Context, e *entries, prefix string, addresses []string, sizeCmd, fileCmd remote.Command) float64 {
	sizes := s.coord.ProbeSizes(ctx, addresses, sizeCmd)
	results := s.coord.FanOut(ctx, addresses, fileCmd, remote.FanOutOptions{DisplayName: true})
	report.SortResults(results)
	for _, r := range results {
		e.addNode(prefix, r)
	}
	return remote.TotalMB(sizes)
}

func (s *Service) collectReports(ctx context.Context, e *entries, prefix string, addresses []string) (float64, error) {
	all, err := s.reports.CollectAll(ctx, addresses)
	if err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.reports")
	}
	docs, err := s.reports.RenderAll(all)
	if err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.reports")
	}
	var total int
	for _, kind := range append(append([]v1.ReportKind(nil), v1.ReportKinds...), v1.ReportCombo) {
		doc, ok := docs[kind]
		if !ok {
			continue
		}
		e.add(prefix+string(kind)+"_report.html", []byte(doc))
		total += len(doc)
	}
	return float64(total) / bytesPerMB, nil
}

func (s *Service) record(kind v1.ArchiveKind, nodes, failed int, started time.Time, err error) {
	done := time.Now()
	result, msg := "success", ""
	if err != nil {
		result, msg = "failure", err.Error()
	}
	s.log.Audit(logger.AuditEntry{
		Op:     "archive.regenerate",
		Kind:   string(kind),
		Nodes:  nodes,
		Failed: failed,
		Result: result,
	})
	if s.db == nil {
		return
	}
	rec := v1.GenerationRecord{
		ID:          fmt.Sprintf("archive-%s-%d", kind, started.UnixNano()),
		Artifact:    "archive",
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

// entries accumulates positionally paired archive names and blobs.
type entries struct {
	names  []string
	blobs  [][]byte
	failed int
}

func (e *entries) add(name string, blob []byte) {
	e.names = append(e.names, name)
	e.blobs = append(e.blobs, blob)
}

func (e *entries) addNode(prefix string, r v1.NodeResult) {
	if r.OK() {
		e.add(prefix+EntryName(r.DisplayName, r.Address, ".zip"), r.Payload)
		return
	}
	e.failed++
	e.add(prefix+EntryName(r.DisplayName, r.Address, ".txt"), []byte(FailureMarker(r)))
}

var unsafeName = strings.NewReplacer(":", "-", "/", "-", "\\", "-", "[", "", "]", "", " ", "-")

// EntryName is "<hostname>_<address><ext>". Two nodes with the same hostname
// and address produce the same name; no de-duplication is attempted.
func EntryName(hostname, address, ext string) string {
	if hostname == "" {
		hostname = "unknown"
	}
	return unsafeName.Replace(hostname) + "_" + unsafeName.Replace(address) + ext
}

// FailureMarker is the text stored in place of a node file that could not be
// fetched.
func FailureMarker(r v1.NodeResult) string {
	var marker string
	switch r.Status {
	case v1.ResultAuthFailed:
		marker = remote.AuthErrorMarker
	case v1.ResultOffline:
		marker = "Sensor Offline"
	default:
		marker = "Unknown Error"
	}
	if r.Err != "" {
		marker += "\n" + r.Err
	}
	return marker + "\n"
}
