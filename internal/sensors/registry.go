// Package sensors maps metric names to the providers that can read them on
// this node. Only providers that worked at startup are registered, so a
// lookup miss means the node has no such sensor.
package sensors

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/f9-o/sensorhub/internal/core/logger"
)

// Provider reads one metric.
type Provider interface {
	Read(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

// Read calls f.
func (f ProviderFunc) Read(ctx context.Context) (string, error) { return f(ctx) }

// Static returns a provider that always reports v.
func Static(v string) Provider {
	return ProviderFunc(func(context.Context) (string, error) { return v, nil })
}

// Registry is a capability map from metric name to provider. Metric names
// are matched case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]entry
	log       *logger.Logger
}

type entry struct {
	name string
	p    Provider
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{providers: map[string]entry{}, log: log}
}

// Register adds or replaces the provider for metric.
func (r *Registry) Register(metric string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(metric)] = entry{name: metric, p: p}
}

// Probe registers p only if it can be read now.
func (r *Registry) Probe(ctx context.Context, metric string, p Provider) bool {
	if _, err := p.Read(ctx); err != nil {
		r.log.Debug("sensor unavailable", "metric", metric, "err", err)
		return false
	}
	r.Register(metric, p)
	return true
}

// Has reports whether metric has a provider.
func (r *Registry) Has(metric string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[strings.ToLower(metric)]
	return ok
}

// Read returns the value of metric. ok is false when there is no provider or
// the provider failed.
func (r *Registry) Read(ctx context.Context, metric string) (value string, ok bool) {
	r.mu.RLock()
	e, found := r.providers[strings.ToLower(metric)]
	r.mu.RUnlock()
	if !found {
		return "", false
	}
	v, err := e.p.Read(ctx)
	if err != nil {
		r.log.Warn("sensor read failed", "metric", e.name, "err", err)
		return "", false
	}
	return v, true
}

// Metrics returns the registered metric names, sorted.
func (r *Registry) Metrics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for _, e := range r.providers {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}

// ReadAll reads every registered metric, omitting failures.
func (r *Registry) ReadAll(ctx context.Context) map[string]string {
	out := map[string]string{}
	for _, m := range r.Metrics() {
		if v, ok := r.Read(ctx, m); ok {
			out[m] = v
		}
	}
	return out
}
