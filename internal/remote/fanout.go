package remote

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// DefaultMaxConcurrency bounds in-flight node calls per batch.
const DefaultMaxConcurrency = 32

// SizeProbeAttempts is the number of sequential tries per node for size probes.
const SizeProbeAttempts = 3

// Sender is the part of Client the coordinator depends on.
type Sender interface {
	Send(ctx context.Context, addr netutil.NodeAddress, cmd Command, body url.Values, timeout time.Duration) ([]byte, error)
}

// FanOutOptions tunes a single batch.
type FanOutOptions struct {
	DisplayName bool          // also fetch GetHostName per node
	Body        url.Values    // form body for PUT commands
	Timeout     time.Duration // zero uses the client default for the command
}

// Coordinator dispatches one command to many nodes concurrently.
type Coordinator struct {
	client Sender
	max    int
	log    *logger.Logger
}

// NewCoordinator constructs a Coordinator. maxConcurrency <= 0 uses
// DefaultMaxConcurrency.
func NewCoordinator(client Sender, maxConcurrency int, log *logger.Logger) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Coordinator{client: client, max: maxConcurrency, log: log}
}

// Client returns the underlying sender.
func (c *Coordinator) Client() Sender { return c.client }

// Each runs fn once per address in a bounded pool and returns every result.
// The order of results is unspecified.
func (c *Coordinator) Each(ctx context.Context, addresses []string, fn func(ctx context.Context, addr netutil.NodeAddress) v1.NodeResult) []v1.NodeResult {
	p := pool.NewWithResults[v1.NodeResult]().WithMaxGoroutines(c.max)
	for _, raw := range addresses {
		addr := netutil.Resolve(raw)
		p.Go(func() v1.NodeResult {
			return fn(ctx, addr)
		})
	}
	return p.Wait()
}

// FanOut sends cmd to every address and waits for all of them. Individual
// failures are reported through NodeResult.Status; FanOut itself never fails.
func (c *Coordinator) FanOut(ctx context.Context, addresses []string, cmd Command, opts FanOutOptions) []v1.NodeResult {
	c.log.Debug("fan-out", "command", cmd.Name, "nodes", len(addresses))
	return c.Each(ctx, addresses, func(ctx context.Context, addr netutil.NodeAddress) v1.NodeResult {
		res := v1.NodeResult{Address: addr.String(), DisplayName: addr.Host}
		if opts.DisplayName {
			res.DisplayName = c.DisplayName(ctx, addr)
		}
		start := time.Now()
		payload, err := c.client.Send(ctx, addr, cmd, opts.Body, opts.Timeout)
		res.ResponseTime = time.Since(start)
		res.Status = StatusOf(err)
		if err != nil {
			res.Err = describe(err)
			return res
		}
		res.Payload = payload
		return res
	})
}

// DisplayName fetches a node's hostname, falling back to its host on failure.
func (c *Coordinator) DisplayName(ctx context.Context, addr netutil.NodeAddress) string {
	body, err := c.client.Send(ctx, addr, CmdGetHostName, nil, 0)
	if err != nil {
		return addr.Host
	}
	name := strings.TrimSpace(string(body))
	if name == "" {
		return addr.Host
	}
	return name
}

// NodeSize is one node's probed size. A node that never reported a usable
// number has MB 0 and OK false.
type NodeSize struct {
	Address string
	MB      float64
	OK      bool
}

// ProbeSizes asks every node for a size in MB using cmd. Each node gets up to
// SizeProbeAttempts sequential tries with no backoff; a node that never
// answers with a non-negative finite number reports 0. There is one entry per
// input address, duplicates included.
func (c *Coordinator) ProbeSizes(ctx context.Context, addresses []string, cmd Command) []NodeSize {
	results := c.Each(ctx, addresses, func(ctx context.Context, addr netutil.NodeAddress) v1.NodeResult {
		res := v1.NodeResult{Address: addr.String(), Status: v1.ResultUnknownError}
		for attempt := 1; attempt <= SizeProbeAttempts; attempt++ {
			body, err := c.client.Send(ctx, addr, cmd, nil, 0)
			if err == nil {
				if _, perr := parseSize(body); perr == nil {
					res.Payload, res.Status = body, v1.ResultOK
					return res
				}
			}
			c.log.Debug("size probe attempt failed", "node", addr.String(), "command", cmd.Name, "attempt", attempt)
			if ctx.Err() != nil {
				break
			}
		}
		return res
	})

	sizes := make([]NodeSize, 0, len(results))
	for _, r := range results {
		ns := NodeSize{Address: r.Address}
		if r.OK() {
			ns.MB, _ = parseSize(r.Payload)
			ns.OK = true
		}
		sizes = append(sizes, ns)
	}
	return sizes
}

// TotalMB sums probed sizes.
func TotalMB(sizes []NodeSize) float64 {
	var total float64
	for _, s := range sizes {
		total += s.MB
	}
	return total
}

func parseSize(body []byte) (float64, error) {
	mb, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(mb) || math.IsInf(mb, 0) || mb < 0 {
		return 0, fmt.Errorf("size %q is not a non-negative number", strings.TrimSpace(string(body)))
	}
	return mb, nil
}
