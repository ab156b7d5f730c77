package remote

import (
	"time"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/pkg/errs"
	"github.com/f9-o/sensorhub/pkg/netutil"
)

// OfflineAfter is the number of consecutive missed heartbeats before a node
// moves from degraded to offline.
const OfflineAfter = 3

// Registry wraps state.DB for node-specific operations. Nodes are keyed by
// their resolved host:port.
type Registry struct {
	db *state.DB
}

// NewRegistry constructs a Registry.
func NewRegistry(db *state.DB) *Registry {
	return &Registry{db: db}
}

// Add registers a node. raw is resolved first, so "10.0.0.5" and
// "https://10.0.0.5:10065/" are the same node.
func (r *Registry) Add(raw, displayName string) (v1.NodeInfo, error) {
	addr := netutil.Resolve(raw)
	existing, err := r.db.GetNode(addr.String())
	if err != nil {
		return v1.NodeInfo{}, errs.Wrap(err, errs.ErrStateRead, "registry.add")
	}
	if existing != nil {
		return v1.NodeInfo{}, errs.Newf(errs.ErrNodeDuplicate, "registry.add", "node already registered").
			WithNode(addr.String()).
			WithAdvice("Use 'sensorhub nodes rm' first")
	}
	if displayName == "" {
		displayName = addr.Host
	}
	info := v1.NodeInfo{Address: addr.String(), DisplayName: displayName, Status: v1.NodeOffline}
	if err := r.db.PutNode(info); err != nil {
		return v1.NodeInfo{}, errs.Wrap(err, errs.ErrStateWrite, "registry.add").WithNode(addr.String())
	}
	return info, nil
}

// Remove deletes a node from the registry.
func (r *Registry) Remove(raw string) error {
	info, err := r.Get(raw)
	if err != nil {
		return err
	}
	return r.db.DeleteNode(info.Address)
}

// Get returns the NodeInfo for raw, or ErrNodeNotFound.
func (r *Registry) Get(raw string) (v1.NodeInfo, error) {
	key := netutil.Resolve(raw).String()
	info, err := r.db.GetNode(key)
	if err != nil {
		return v1.NodeInfo{}, errs.Wrap(err, errs.ErrStateRead, "registry.get")
	}
	if info == nil {
		return v1.NodeInfo{}, errs.Newf(errs.ErrNodeNotFound, "registry.get", "node not registered").WithNode(key)
	}
	return *info, nil
}

// List returns all registered nodes ordered by address.
func (r *Registry) List() ([]v1.NodeInfo, error) {
	return r.db.ListNodes()
}

// Addresses returns the address of every registered node.
func (r *Registry) Addresses() ([]string, error) {
	nodes, err := r.db.ListNodes()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Address
	}
	return out, nil
}

// SetDisplayName records the hostname a node reported.
func (r *Registry) SetDisplayName(address, name string) error {
	info, err := r.Get(address)
	if err != nil {
		return err
	}
	if info.DisplayName == name {
		return nil
	}
	info.DisplayName = name
	return r.db.PutNode(info)
}

// MarkOnline records a successful check and resets the fail count.
func (r *Registry) MarkOnline(address string, responseTime time.Duration) error {
	return r.db.UpdateNodeStatus(address, v1.NodeOnline, responseTime, 0)
}

// MarkOffline records a missed check. The node is degraded until it has
// missed OfflineAfter checks in a row.
func (r *Registry) MarkOffline(address string, failCount int) (v1.NodeStatus, error) {
	status := v1.NodeDegraded
	if failCount >= OfflineAfter {
		status = v1.NodeOffline
	}
	return status, r.db.UpdateNodeStatus(address, status, 0, failCount)
}
