// Package commands provides the shared runtime type and all CLI subcommands.
package commands

import (
	"context"

	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/live"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/report"
)

// contextKey is the key type for values stored in a command context.
type contextKey string

const runtimeContextKey contextKey = "sensorhub.runtime"

// GlobalFlags holds the parsed global flags for use by subcommands.
type GlobalFlags struct {
	ConfigFile string
	Nodes      []string // overrides configured and registered nodes
	Debug      bool
	JSONOutput bool
}

// Runtime is the shared dependency bundle injected into each subcommand via context.
type Runtime struct {
	Config   *config.Config
	Log      *logger.Logger
	State    *state.DB
	Creds    *config.CredentialStore
	LogLines chan string // set for the TUI only
	Flags    GlobalFlags
}

// NewContext returns a new context carrying the Runtime.
func NewContext(parent context.Context, rt *Runtime) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, runtimeContextKey, rt)
}

// FromContext extracts the Runtime from ctx. Panics if not present (programming error).
func FromContext(ctx context.Context) *Runtime {
	rt, ok := ctx.Value(runtimeContextKey).(*Runtime)
	if !ok || rt == nil {
		panic("sensorhub: Runtime not found in context; missing PersistentPreRunE?")
	}
	return rt
}

// Client builds the node client from the remote settings.
func (rt *Runtime) Client() *remote.Client {
	return remote.NewClient(rt.Creds, remote.Options{
		VerifyTLS:   rt.Config.Remote.VerifyTLS,
		Timeout:     rt.Config.Remote.Timeout,
		FileTimeout: rt.Config.Remote.FileTimeout,
	}, rt.Log)
}

// Coordinator builds a fan-out coordinator over client.
func (rt *Runtime) Coordinator(client *remote.Client) *remote.Coordinator {
	return remote.NewCoordinator(client, rt.Config.Remote.MaxConcurrency, rt.Log)
}

// Registry returns the persisted node registry.
func (rt *Runtime) Registry() *remote.Registry {
	return remote.NewRegistry(rt.State)
}

// Nodes returns the addresses a batch targets: --nodes first, then
// remote.nodes from config, then the registry.
func (rt *Runtime) Nodes() ([]string, error) {
	if len(rt.Flags.Nodes) > 0 {
		return rt.Flags.Nodes, nil
	}
	if len(rt.Config.Remote.Nodes) > 0 {
		return rt.Config.Remote.Nodes, nil
	}
	return rt.Registry().Addresses()
}

// Services bundles the report and archive services sharing one coordinator.
type Services struct {
	Client   *remote.Client
	Coord    *remote.Coordinator
	Reports  *report.Service
	Archives *archive.Service
	Proxy    *live.Proxy
}

// Services wires the console services.
func (rt *Runtime) Services() *Services {
	client := rt.Client()
	coord := rt.Coordinator(client)
	builder := report.NewBuilder(coord, rt.Log)
	return &Services{
		Client:  client,
		Coord:   coord,
		Reports: report.NewService(builder, report.NewCache(), rt.State, rt.Log),
		Archives: archive.NewService(coord, builder, archive.NewSlots(), archive.Options{
			Dir:         rt.Config.ArchiveDir(),
			ThresholdMB: rt.Config.Archive.MemoryThresholdMB,
		}, rt.State, rt.Log),
		Proxy: live.NewProxy(client, rt.Config.Remote.GraphAddress, rt.Config.Remote.LiveTimeout, rt.Log),
	}
}
