// Package logger provides the structured logging engine for sensorhub.
// Uses log/slog with support for multiple sinks: stderr, file, TUI.
package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Logger
// ─────────────────────────────────────────────────────────────────────────────

// Logger wraps slog.Logger with sensorhub-specific utilities.
type Logger struct {
	*slog.Logger
	auditMu sync.Mutex
	auditW  io.Writer // append-only audit log writer (nil = disabled)
}

// tuiSinkCh receives formatted log lines for TUI display when non-nil.
var tuiSinkCh chan string

// SetTUISink registers a channel that receives log lines destined for the TUI.
// Call before Init.
func SetTUISink(ch chan string) {
	tuiSinkCh = ch
}

// ParseLevel maps a config level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init builds the process logger and installs it as the slog default.
// stderrOut may be nil to suppress console output (the TUI owns the terminal).
func Init(level, format, logFile, home string, debug bool, stderrOut io.Writer) (*Logger, error) {
	lvl := ParseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}

	var writers []io.Writer
	if stderrOut != nil {
		writers = append(writers, stderrOut)
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0750); err == nil {
			if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640); err == nil {
				writers = append(writers, f)
			}
		}
	}

	if tuiSinkCh != nil {
		writers = append(writers, &tuiWriter{ch: tuiSinkCh})
	}

	out := io.MultiWriter(writers...)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl, AddSource: debug}
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	base := slog.New(handler)
	slog.SetDefault(base)

	var auditW io.Writer
	if home != "" {
		auditPath := filepath.Join(home, "audit.log")
		if af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640); err == nil {
			auditW = af
		}
	}

	return &Logger{Logger: base, auditW: auditW}, nil
}

// New wraps an existing handler. Useful for tests that capture output.
func New(h slog.Handler, audit io.Writer) *Logger {
	return &Logger{Logger: slog.New(h), auditW: audit}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil), nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// Audit logging
// ─────────────────────────────────────────────────────────────────────────────

// AuditEntry represents a single audit log event.
type AuditEntry struct {
	Timestamp time.Time         `json:"ts"`
	Op        string            `json:"op"` // report.regenerate | archive.regenerate | node.command
	Kind      string            `json:"kind,omitempty"`
	Nodes     int               `json:"nodes"`
	Failed    int               `json:"failed"`
	Result    string            `json:"result"` // success | failure
	Meta      map[string]string `json:"meta,omitempty"`
}

// Audit writes an append-only audit log entry.
func (l *Logger) Audit(entry AuditEntry) {
	l.Info("audit",
		"op", entry.Op,
		"kind", entry.Kind,
		"nodes", entry.Nodes,
		"failed", entry.Failed,
		"result", entry.Result,
	)
	if l.auditW == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.auditMu.Lock()
	defer l.auditMu.Unlock()
	_, _ = l.auditW.Write(append(line, '\n'))
}

// ─────────────────────────────────────────────────────────────────────────────
// TUI writer
// ─────────────────────────────────────────────────────────────────────────────

// tuiWriter implements io.Writer by forwarding lines to the TUI sink channel.
type tuiWriter struct {
	mu sync.Mutex
	ch chan<- string
}

func (w *tuiWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case w.ch <- string(p):
	default: // drop when the channel is full
	}
	return len(p), nil
}
