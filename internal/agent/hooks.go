package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/f9-o/sensorhub/internal/core/logger"
)

// DefaultHookTimeout bounds a single hook line.
const DefaultHookTimeout = 60 * time.Second

// HookActions runs configured shell lines for control commands. Commands
// without hooks are logged only.
//
// Each line runs under "sh -c" with SENSORHUB_COMMAND set and every form
// field exported as SENSORHUB_FORM_<KEY>. Lines run in order; the first
// failure stops the command and is returned to the caller.
type HookActions struct {
	mu      sync.RWMutex
	hooks   map[string][]string // lower-cased command name → lines
	timeout time.Duration
	log     *logger.Logger
}

// NewHookActions builds HookActions from a command → lines map. Names are
// matched case-insensitively.
func NewHookActions(hooks map[string][]string, log *logger.Logger) *HookActions {
	h := &HookActions{hooks: map[string][]string{}, timeout: DefaultHookTimeout, log: log}
	for name, lines := range hooks {
		h.Register(name, lines...)
	}
	return h
}

// WithTimeout overrides the per-line timeout.
func (h *HookActions) WithTimeout(d time.Duration) *HookActions {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Register appends lines to the hooks of command.
func (h *HookActions) Register(command string, lines ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := strings.ToLower(command)
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			h.hooks[key] = append(h.hooks[key], l)
		}
	}
}

// Commands returns the command names that have hooks.
func (h *HookActions) Commands() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.hooks))
	for name := range h.hooks {
		names = append(names, name)
	}
	return names
}

// Run executes the hooks of command.
func (h *HookActions) Run(ctx context.Context, command string, form url.Values) (retErr error) {
	h.mu.RLock()
	lines := h.hooks[strings.ToLower(command)]
	h.mu.RUnlock()

	if len(lines) == 0 {
		h.log.Info("control command received", "command", command, "form", form.Encode(), "hooks", 0)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("control hook panicked", "command", command, "panic", fmt.Sprintf("%v", r))
			retErr = fmt.Errorf("hook for %s panicked: %v", command, r)
		}
	}()

	env := append(os.Environ(), "SENSORHUB_COMMAND="+command)
	for k, vs := range form {
		if len(vs) > 0 {
			env = append(env, "SENSORHUB_FORM_"+strings.ToUpper(k)+"="+vs[0])
		}
	}

	for i, line := range lines {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := h.runLine(ctx, line, env); err != nil {
			h.log.Warn("control hook failed", "command", command, "hook", i, "err", err)
			return fmt.Errorf("hook %d for %s: %w", i, command, err)
		}
		h.log.Info("control hook ran", "command", command, "hook", i)
	}
	return nil
}

func (h *HookActions) runLine(ctx context.Context, line string, env []string) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
