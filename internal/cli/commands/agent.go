// sensorhub agent: run this host as a sensor node.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/f9-o/sensorhub/internal/agent"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/internal/sensors"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewAgentCmd() *cobra.Command {
	var listen string
	var hosts []string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Answer node commands from this host over HTTPS",
		Long: `Run the node side of the protocol: host metrics are served as sensor
readings, recorded periodically, and reported through the same commands
a console fans out.`,
		Example: `  sensorhub agent
  sensorhub agent --listen 0.0.0.0:10065 --host pi.local`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			cfg := rt.Config.Agent
			if listen == "" {
				listen = cfg.Listen
			}
			if cfg.PasswordHash == "" {
				return fmt.Errorf("agent.password_hash is not set; create one with 'sensorhub credentials hash'")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dataDir := rt.Config.AgentDataDir()
			if err := os.MkdirAll(dataDir, 0750); err != nil {
				return fmt.Errorf("create agent data dir: %w", err)
			}
			db, err := state.Open(filepath.Join(dataDir, "recordings.db"))
			if err != nil {
				return fmt.Errorf("recordings db: %w", err)
			}
			defer db.Close()

			if len(hosts) == 0 {
				host, _ := os.Hostname()
				hosts = []string{host, "localhost", "127.0.0.1"}
			}
			cert, err := agent.LoadOrCreateCert(cfg.CertFile, cfg.KeyFile, dataDir, hosts)
			if err != nil {
				return err
			}

			reg := sensors.System(ctx, rt.Log)
			srv := agent.NewServer(agent.Options{
				Username:     cfg.Username,
				PasswordHash: cfg.PasswordHash,
				LogDir:       filepath.Join(config.Home(), "logs"),
				Version:      Version,
				Config:       agentSettings(rt.Config),
			}, reg, db, agent.NewHookActions(cfg.Hooks, rt.Log), rt.Log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(ctx, listen, cert) })
			g.Go(func() error {
				agent.NewRecorder(reg, db, cfg.RecordInterval, rt.Log).Run(ctx)
				return nil
			})

			pprint.Success("Agent %q listening on https://%s with %d metric(s)", srv.Hostname(), listen, len(reg.Metrics()))
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("agent: %w", err)
			}
			pprint.Info("Agent stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to agent.listen)")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "Host names for the generated certificate")
	return cmd
}

// agentSettings lists the settings shown in the configuration report.
func agentSettings(cfg *config.Config) map[string]string {
	return map[string]string{
		"agent.listen":          cfg.Agent.Listen,
		"agent.username":        cfg.Agent.Username,
		"agent.data_dir":        cfg.AgentDataDir(),
		"agent.record_interval": cfg.Agent.RecordInterval.String(),
		"log.level":             cfg.Log.Level,
		"log.format":            cfg.Log.Format,
	}
}
