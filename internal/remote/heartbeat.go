package remote

import (
	"context"
	"sync"
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// HeartbeatInterval is how often each node is probed.
const HeartbeatInterval = 30 * time.Second

// HeartbeatTimeout is the max time allowed for a single probe.
const HeartbeatTimeout = 5 * time.Second

// NodeEvent is emitted on the event channel when a node's status changes.
type NodeEvent struct {
	Address      string
	Status       v1.NodeStatus
	ResponseTime time.Duration
}

// Engine runs one goroutine per node, polling CheckOnlineStatus.
type Engine struct {
	client   Sender
	registry *Registry
	events   chan NodeEvent
	log      *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine creates a heartbeat Engine.
// The events channel is buffered; consumers should drain it promptly.
func NewEngine(client Sender, registry *Registry, log *logger.Logger) *Engine {
	return &Engine{
		client:   client,
		registry: registry,
		events:   make(chan NodeEvent, 64),
		log:      log,
		interval: HeartbeatInterval,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// WithInterval overrides the probe interval.
func (e *Engine) WithInterval(d time.Duration) *Engine {
	if d > 0 {
		e.interval = d
	}
	return e
}

// Events returns the channel on which NodeEvents are published.
func (e *Engine) Events() <-chan NodeEvent {
	return e.events
}

// Watch starts a heartbeat goroutine for the node (idempotent).
func (e *Engine) Watch(ctx context.Context, address string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.cancels[address]; ok {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancels[address] = cancel
	go e.watchLoop(ctx, netutil.Resolve(address))
	e.log.Info("heartbeat started", "node", address)
}

// Unwatch stops the heartbeat goroutine for a node.
func (e *Engine) Unwatch(address string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[address]; ok {
		cancel()
		delete(e.cancels, address)
	}
}

// StopAll stops all heartbeat goroutines.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for address, cancel := range e.cancels {
		cancel()
		delete(e.cancels, address)
		e.log.Info("heartbeat stopped", "node", address)
	}
}

// Probe runs one online check and returns its round-trip time.
func (e *Engine) Probe(ctx context.Context, addr netutil.NodeAddress) (time.Duration, error) {
	start := time.Now()
	_, err := e.client.Send(ctx, addr, CmdCheckOnline, nil, HeartbeatTimeout)
	return time.Since(start), err
}

func (e *Engine) watchLoop(ctx context.Context, addr netutil.NodeAddress) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	key := addr.String()
	failCount := 0
	last := v1.NodeStatus("")

	check := func() {
		rt, err := e.Probe(ctx, addr)
		if ctx.Err() != nil {
			return
		}
		status := v1.NodeOnline
		if err != nil {
			failCount++
			e.log.Debug("heartbeat miss", "node", key, "fail_count", failCount)
			var uerr error
			status, uerr = e.registry.MarkOffline(key, failCount)
			if uerr != nil {
				e.log.Warn("heartbeat: state update failed", "err", uerr)
			}
		} else {
			if failCount > 0 {
				e.log.Info("node recovered", "node", key)
			}
			failCount = 0
			if uerr := e.registry.MarkOnline(key, rt); uerr != nil {
				e.log.Warn("heartbeat: state update failed", "err", uerr)
			}
		}
		if status != last {
			last = status
			e.emit(NodeEvent{Address: key, Status: status, ResponseTime: rt})
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// emit sends a NodeEvent without blocking (drops if channel full).
func (e *Engine) emit(ev NodeEvent) {
	select {
	case e.events <- ev:
	default:
		e.log.Debug("heartbeat event channel full, dropping event", "node", ev.Address)
	}
}
