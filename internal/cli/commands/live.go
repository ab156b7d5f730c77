// sensorhub live: poll one metric from the graph node.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/metrics"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/tui/components"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewLiveCmd() *cobra.Command {
	var graph string
	var interval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "live <metric>",
		Short: "Stream a single metric from the graph node",
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub live CPUTemperature
  sensorhub live Humidity --graph 10.0.0.7 --interval 1s
  sensorhub live Pressure --once`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			metric, ok := canonicalMetric(args[0])
			if !ok {
				return fmt.Errorf("unknown metric %q (known: %s)", args[0], strings.Join(remote.Metrics, ", "))
			}

			svc := rt.Services()
			if graph != "" {
				svc.Proxy.SetAddress(graph)
			}
			if _, ok := svc.Proxy.Address(); !ok {
				return fmt.Errorf("no graph node; set remote.graph_address or pass --graph")
			}

			if once {
				body, status := svc.Proxy.GetMetric(cmd.Context(), metric)
				if rt.Flags.JSONOutput {
					return json.NewEncoder(os.Stdout).Encode(map[string]any{"metric": metric, "value": body, "status": status})
				}
				fmt.Fprintln(pprint.Out, body)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collector := metrics.NewCollector(svc.Proxy, []string{metric}, rt.Log)
			series := collector.Series(metric)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			addr, _ := svc.Proxy.Address()
			if !rt.Flags.JSONOutput {
				pprint.Info("Polling %s on %s every %s (Ctrl+C to stop)", metric, addr, interval)
			}
			for {
				collector.CollectOnce(ctx)
				sample, _ := series.Latest()
				switch {
				case rt.Flags.JSONOutput:
					_ = json.NewEncoder(os.Stdout).Encode(sample)
				case sample.Present:
					fmt.Fprintf(pprint.Out, "\r%s  %s %10.2f  %s ",
						sample.Timestamp.Local().Format("15:04:05"), metric, sample.Value,
						pprint.StyleAccent.Render(components.Sparkline(series.Values(), 40)))
				default:
					fmt.Fprintf(pprint.Out, "\r%s  %s %10s  ", sample.Timestamp.Local().Format("15:04:05"), metric, "NoSensor")
				}
				select {
				case <-ctx.Done():
					fmt.Fprintln(pprint.Out)
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().StringVar(&graph, "graph", "", "Node to poll (overrides remote.graph_address)")
	cmd.Flags().DurationVar(&interval, "interval", metrics.PollInterval, "Poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "Print one value and exit")
	return cmd
}

// canonicalMetric returns the catalog spelling of name.
func canonicalMetric(name string) (string, bool) {
	for _, m := range remote.Metrics {
		if strings.EqualFold(m, name) {
			return m, true
		}
	}
	return "", false
}
