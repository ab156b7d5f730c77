// Package web is the console's HTTP surface: live metric passthrough, report
// and archive triggers, cached artifact downloads and a JSON status page.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/live"
	"github.com/f9-o/sensorhub/internal/report"
)

// LivePrefix starts every live metric path, e.g. /LGWGetCPUTemperature.
const LivePrefix = "LGWGet"

// historyLimit caps the generation records returned by /status.
const historyLimit = 20

// NodeSource returns the node addresses a regeneration targets.
type NodeSource func() ([]string, error)

// Static returns a NodeSource for a fixed list.
func Static(addresses []string) NodeSource {
	return func() ([]string, error) { return addresses, nil }
}

// Server wires the console services onto an http.Handler.
type Server struct {
	reports  *report.Service
	archives *archive.Service
	proxy    *live.Proxy
	nodes    NodeSource
	db       *state.DB // optional, feeds /status history
	log      *logger.Logger

	base context.Context
	jobs sync.WaitGroup
}

// NewServer constructs a Server. db may be nil.
func NewServer(reports *report.Service, archives *archive.Service, proxy *live.Proxy, nodes NodeSource, db *state.DB, log *logger.Logger) *Server {
	return &Server{
		reports:  reports,
		archives: archives,
		proxy:    proxy,
		nodes:    nodes,
		db:       db,
		log:      log,
		base:     context.Background(),
	}
}

// Handler returns the routed handler with logging and recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reports/{kind}", s.handleRegenerateReport)
	mux.HandleFunc("GET /reports/{kind}", s.handleGetReport)
	mux.HandleFunc("POST /archives/{kind}", s.handleRegenerateArchive)
	mux.HandleFunc("GET /archives/{kind}", s.handleGetArchive)
	mux.HandleFunc("GET /{name}", s.handleLive)
	return recoveryMiddleware(s.log, loggingMiddleware(s.log, mux))
}

// Serve listens on addr until ctx is cancelled, then waits for running
// regenerations to finish.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.base = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("web layer listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

// Wait blocks until every background regeneration has returned.
func (s *Server) Wait() { s.jobs.Wait() }

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	metric, ok := strings.CutPrefix(name, LivePrefix)
	if !ok || metric == "" {
		http.NotFound(w, r)
		return
	}
	body, status := s.proxy.GetMetric(r.Context(), metric)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleRegenerateReport(w http.ResponseWriter, r *http.Request) {
	kind := v1.ReportKind(r.PathValue("kind"))
	if !report.Valid(kind) {
		writeError(w, http.StatusNotFound, "unknown report kind")
		return
	}
	addrs, err := s.nodes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.background(func(ctx context.Context) {
		_, _ = s.reports.Regenerate(ctx, kind, addrs)
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"kind": kind, "nodes": len(addrs), "generating": true})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	kind := v1.ReportKind(r.PathValue("kind"))
	art, ok := s.reports.Cache().Get(kind)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown report kind")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.reports.Cache().Generating(kind) {
		w.Header().Set("X-Generating", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(art.HTML))
}

func (s *Server) handleRegenerateArchive(w http.ResponseWriter, r *http.Request) {
	kind := v1.ArchiveKind(r.PathValue("kind"))
	if !archive.Valid(kind) {
		writeError(w, http.StatusNotFound, "unknown archive kind")
		return
	}
	addrs, err := s.nodes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.background(func(ctx context.Context) {
		_, _ = s.archives.Regenerate(ctx, kind, addrs)
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"kind": kind, "nodes": len(addrs), "generating": true})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	kind := v1.ArchiveKind(r.PathValue("kind"))
	if !archive.Valid(kind) {
		writeError(w, http.StatusNotFound, "unknown archive kind")
		return
	}
	job, _ := s.archives.Slots().Get(kind)
	if !job.Ready() {
		writeError(w, http.StatusNotFound, "archive not generated")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+job.Name+`"`)
	if job.InMemory {
		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(job.Bytes)
		return
	}
	http.ServeFile(w, r, job.Path)
}

// artifactStatus is one slot in the /status payload.
type artifactStatus struct {
	Kind        string    `json:"kind"`
	Generating  bool      `json:"generating"`
	Ready       bool      `json:"ready"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Nodes       int       `json:"nodes"`
	Failed      int       `json:"failed"`
	InMemory    bool      `json:"in_memory,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Status is the /status payload.
type Status struct {
	Reports  []artifactStatus      `json:"reports"`
	Archives []artifactStatus      `json:"archives"`
	History  []v1.GenerationRecord `json:"history,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

// Status snapshots every report and archive slot.
func (s *Server) Status() Status {
	var st Status
	kinds := append(append([]v1.ReportKind(nil), v1.ReportKinds...), v1.ReportCombo)
	for _, k := range kinds {
		art, _ := s.reports.Cache().Get(k)
		st.Reports = append(st.Reports, artifactStatus{
			Kind:        string(k),
			Generating:  s.reports.Cache().Generating(k),
			Ready:       !art.GeneratedAt.IsZero(),
			GeneratedAt: art.GeneratedAt,
			Nodes:       art.Nodes,
			Failed:      art.Failed,
			Error:       art.Err,
		})
	}
	for _, k := range v1.ArchiveKinds {
		job, _ := s.archives.Slots().Get(k)
		st.Archives = append(st.Archives, artifactStatus{
			Kind:        string(k),
			Generating:  s.archives.Slots().Generating(k),
			Ready:       job.Ready(),
			GeneratedAt: job.GeneratedAt,
			Nodes:       job.Entries,
			Failed:      job.Failed,
			InMemory:    job.InMemory,
			Size:        job.Size,
			Error:       job.Err,
		})
	}
	if s.db != nil {
		recs, err := s.db.ListGenerations("")
		if err != nil {
			s.log.Warn("list generation history", "err", err)
		}
		st.History = recs[:min(len(recs), historyLimit)]
	}
	return st
}

func (s *Server) background(fn func(ctx context.Context)) {
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		fn(s.base)
	}()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
