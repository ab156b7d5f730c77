// sensorhub serve: run the local web console.
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/web"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewServeCmd() *cobra.Command {
	var listen string
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports, archives and live readings over HTTP",
		Example: `  sensorhub serve
  sensorhub serve --listen 0.0.0.0:10066 --watch`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			if listen == "" {
				listen = rt.Config.Web.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := rt.Services()
			srv := web.NewServer(svc.Reports, svc.Archives, svc.Proxy, rt.Nodes, rt.State, rt.Log)

			var addrs []string
			if watch {
				var err error
				if addrs, err = rt.Nodes(); err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(ctx, listen) })

			if watch {
				engine := remote.NewEngine(svc.Client, rt.Registry(), rt.Log).WithInterval(interval)
				for _, a := range addrs {
					engine.Watch(ctx, a)
				}
				g.Go(func() error {
					for {
						select {
						case <-ctx.Done():
							engine.StopAll()
							return nil
						case ev := <-engine.Events():
							rt.Log.Debug("node status", "node", ev.Address, "status", ev.Status, "rtt", ev.ResponseTime)
						}
					}
				})
			}

			pprint.Success("Console listening on http://%s (Ctrl+C to stop)", listen)
			if err := g.Wait(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			srv.Wait()
			pprint.Info("Console stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to web.listen)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Also run heartbeats for every target node")
	cmd.Flags().DurationVar(&interval, "interval", remote.HeartbeatInterval, "Heartbeat interval with --watch")
	return cmd
}
