// Package agent is the sensor node role: it serves the node command surface
// over self-signed HTTPS, backed by the local sensor registry and reading
// history.
package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/sensors"
)

// DatabaseEntryName is the file name of the database inside DownloadDatabase.
const DatabaseEntryName = "SensorRecordingDatabase.db"

const bytesPerMB = 1 << 20

// Options configures a Server.
type Options struct {
	Username     string
	PasswordHash string // bcrypt
	Hostname     string // empty uses os.Hostname
	LogDir       string // served by DownloadZippedLogs
	SessionTTL   time.Duration
	Version      string
	Config       map[string]string // shown in the configuration report
}

type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Server answers node commands.
type Server struct {
	opts     Options
	sensors  *sensors.Registry
	db       *state.DB // optional
	actions  Actions
	sessions *sessions
	hostname atomic.Value // string
	handlers map[string]handlerFunc
	log      *logger.Logger
}

// NewServer constructs a Server. db may be nil; actions nil logs only.
func NewServer(opts Options, reg *sensors.Registry, db *state.DB, actions Actions, log *logger.Logger) *Server {
	if actions == nil {
		actions = LogActions{Log: log}
	}
	s := &Server{
		opts:     opts,
		sensors:  reg,
		db:       db,
		actions:  actions,
		sessions: newSessions(opts.SessionTTL),
		log:      log,
	}
	host := opts.Hostname
	if host == "" {
		host, _ = os.Hostname()
	}
	s.hostname.Store(host)

	text := func(fn func(ctx context.Context) ([]byte, error)) handlerFunc {
		return func(ctx context.Context, w http.ResponseWriter, _ *http.Request) error {
			body, err := fn(ctx)
			if err != nil {
				return err
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, err = w.Write(body)
			return err
		}
	}
	s.handlers = map[string]handlerFunc{
		remote.CmdCheckOnline.Name:      s.plain(func() string { return "OK" }),
		remote.CmdTestLogin.Name:        s.plain(func() string { return "OK" }),
		remote.CmdGetHostName.Name:      s.plain(s.Hostname),
		remote.CmdSensorReadings.Name:   s.sensorReadings,
		remote.CmdSystemReport.Name:     text(s.systemReport),
		remote.CmdConfigReport.Name:     text(s.configReport),
		remote.CmdReadingsReport.Name:   text(s.readingsReport),
		remote.CmdLatencyReport.Name:    text(s.latencyReport),
		remote.CmdDatabaseSize.Name:     s.databaseSize,
		remote.CmdZippedLogsSize.Name:   s.logsSize,
		remote.CmdDownloadDatabase.Name: s.downloadDatabase,
		remote.CmdDownloadLogs.Name:     s.downloadLogs,
	}
	for _, c := range remote.ControlCommands() {
		s.handlers[c.Name] = s.control(c.Name)
	}
	return s
}

// Hostname returns the name the node reports.
func (s *Server) Hostname() string { return s.hostname.Load().(string) }

// Handler returns the node's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+remote.LoginPath, s.login)
	mux.HandleFunc("/{command}", s.command)
	return mux
}

// Serve listens on addr with cert until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string, cert tls.Certificate) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("agent listening", "addr", addr, "hostname", s.Hostname())
		errCh <- srv.ListenAndServeTLS("", "")
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user := r.PostForm.Get(remote.LoginUserField)
	pass := r.PostForm.Get(remote.LoginPasswordField)
	if user != s.opts.Username || !CheckPassword(s.opts.PasswordHash, pass) {
		s.log.Warn("login rejected", "remote", r.RemoteAddr, "user", user)
		s.unauthorized(w)
		return
	}
	token, err := s.sessions.issue()
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(remote.AuthErrorMarker))
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(SessionCookie)
	return err == nil && s.sessions.valid(c.Value)
}

func (s *Server) command(w http.ResponseWriter, r *http.Request) {
	cmd, err := remote.Lookup(r.PathValue("command"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != cmd.Method {
		w.Header().Set("Allow", cmd.Method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cmd.NeedsAuth && !s.authenticated(r) {
		s.unauthorized(w)
		return
	}

	h, ok := s.handlers[cmd.Name]
	if !ok {
		h = s.metric(strings.TrimPrefix(cmd.Name, "Get"))
	}
	if err := h(r.Context(), w, r); err != nil {
		s.log.Error("command failed", "command", cmd.Name, "err", err)
		http.Error(w, "command failed", http.StatusInternalServerError)
	}
}

func (s *Server) plain(fn func() string) handlerFunc {
	return func(_ context.Context, w http.ResponseWriter, _ *http.Request) error {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, err := w.Write([]byte(fn()))
		return err
	}
}

// metric answers a single reading, or the NoSensor sentinel.
func (s *Server) metric(name string) handlerFunc {
	return func(ctx context.Context, w http.ResponseWriter, _ *http.Request) error {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		v, ok := s.sensors.Read(ctx, name)
		if !ok {
			v = remote.NoSensor
		}
		_, err := w.Write([]byte(v))
		return err
	}
}

func (s *Server) sensorReadings(ctx context.Context, w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(s.sensors.ReadAll(ctx))
}

func (s *Server) databaseSize(_ context.Context, w http.ResponseWriter, _ *http.Request) error {
	var n int64
	if s.db != nil {
		var err error
		if n, err = s.db.Size(); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%.3f", float64(n)/bytesPerMB)
	return err
}

func (s *Server) downloadDatabase(_ context.Context, w http.ResponseWriter, _ *http.Request) error {
	if s.db == nil {
		return errors.New("no database")
	}
	var buf bytes.Buffer
	if _, err := s.db.Snapshot(&buf); err != nil {
		return err
	}
	data, err := archive.Zip([]string{DatabaseEntryName}, [][]byte{buf.Bytes()})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/zip")
	_, err = w.Write(data)
	return err
}

// logFiles lists the regular files directly inside LogDir.
func (s *Server) logFiles() ([]string, error) {
	if s.opts.LogDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.opts.LogDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(s.opts.LogDir, e.Name()))
		}
	}
	return out, nil
}

func (s *Server) logsSize(_ context.Context, w http.ResponseWriter, _ *http.Request) error {
	files, err := s.logFiles()
	if err != nil {
		return err
	}
	var total int64
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			total += info.Size()
		}
	}
	_, err = fmt.Fprintf(w, "%.3f", float64(total)/bytesPerMB)
	return err
}

func (s *Server) downloadLogs(_ context.Context, w http.ResponseWriter, _ *http.Request) error {
	files, err := s.logFiles()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	blobs := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		names = append(names, filepath.Base(f))
		blobs = append(blobs, b)
	}
	data, err := archive.Zip(names, blobs)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/zip")
	_, err = w.Write(data)
	return err
}

func (s *Server) control(name string) handlerFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return nil
		}
		if name == remote.CmdSetHostName.Name && strings.TrimSpace(r.PostForm.Get("hostname")) == "" {
			http.Error(w, "hostname is required", http.StatusBadRequest)
			return nil
		}
		if err := s.actions.Run(ctx, name, r.PostForm); err != nil {
			return err
		}
		if name == remote.CmdSetHostName.Name {
			s.hostname.Store(strings.TrimSpace(r.PostForm.Get("hostname")))
		}
		s.log.Audit(logger.AuditEntry{Op: "agent.command", Kind: name, Nodes: 1, Result: "success"})
		_, err := w.Write([]byte("OK"))
		return err
	}
}
