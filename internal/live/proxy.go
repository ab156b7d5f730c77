package live

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/errs"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// DefaultTimeout keeps polling UIs responsive.
const DefaultTimeout = 500 * time.Millisecond

// Proxy forwards one GET per call to the configured graphing node. It keeps
// no per-call state and never retries.
type Proxy struct {
	client  remote.Sender
	addr    atomic.Pointer[netutil.NodeAddress]
	timeout time.Duration
	log     *logger.Logger
}

// NewProxy constructs a Proxy for graphAddress. timeout <= 0 uses DefaultTimeout.
func NewProxy(client remote.Sender, graphAddress string, timeout time.Duration, log *logger.Logger) *Proxy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Proxy{client: client, timeout: timeout, log: log}
	p.SetAddress(graphAddress)
	return p
}

// SetAddress changes the graphing node. An empty address disables the proxy.
func (p *Proxy) SetAddress(raw string) {
	if strings.TrimSpace(raw) == "" {
		p.addr.Store(nil)
		return
	}
	a := netutil.Resolve(raw)
	p.addr.Store(&a)
}

// Address returns the graphing node, if one is configured.
func (p *Proxy) Address() (netutil.NodeAddress, bool) {
	a := p.addr.Load()
	if a == nil {
		return netutil.NodeAddress{}, false
	}
	return *a, true
}

// Read fetches cmd from the graphing node.
func (p *Proxy) Read(ctx context.Context, cmd remote.Command) (Reading, error) {
	addr, ok := p.Address()
	if !ok {
		return Absent, errs.Newf(errs.ErrConfig, "live.read", "no graph address configured").
			WithAdvice("Set remote.graph_address")
	}
	body, err := p.client.Send(ctx, addr, cmd, nil, p.timeout)
	if err != nil {
		p.log.Debug("live read failed", "node", addr.String(), "command", cmd.Name, "err", err)
		return Absent, err
	}
	return ParseReading(string(body)), nil
}

// Get returns the body and HTTP status for cmd: a NoSensor reply maps to
// (NoSensor, 404) and any other reply passes through with 200. A node that
// answered with an error status keeps that status behind the NoSensor body.
// Every other failure (transport, timeout, rejected login, no address) maps
// to (NoSensor, 503).
func (p *Proxy) Get(ctx context.Context, cmd remote.Command) (string, int) {
	r, err := p.Read(ctx, cmd)
	if code, ok := remote.HTTPStatus(err); ok {
		return remote.NoSensor, code
	}
	switch {
	case err != nil:
		return remote.NoSensor, http.StatusServiceUnavailable
	case !r.Present():
		return remote.NoSensor, http.StatusNotFound
	default:
		return r.String(), http.StatusOK
	}
}

// GetMetric is Get for a named metric. Unknown metrics are answered locally
// with (NoSensor, 404).
func (p *Proxy) GetMetric(ctx context.Context, metric string) (string, int) {
	if !remote.IsMetric(metric) {
		return remote.NoSensor, http.StatusNotFound
	}
	return p.Get(ctx, remote.MetricCommand(canonical(metric)))
}

// canonical returns the catalog spelling of metric.
func canonical(metric string) string {
	for _, m := range remote.Metrics {
		if strings.EqualFold(m, metric) {
			return m
		}
	}
	return metric
}
