// sensorhub ui: launch the interactive TUI dashboard.
package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/metrics"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/tui"
)

// dashboardMetrics are graphed in the live panel.
var dashboardMetrics = []string{"CPUTemperature", "CPUUsage", "MemoryUsage", "EnvTemperature", "Humidity", "Pressure"}

func NewUICmd() *cobra.Command {
	var graph string

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Launch the interactive TUI dashboard",
		Example: `  sensorhub ui
  sensorhub ui --graph 10.0.0.5`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			svc := rt.Services()
			addrs, err := rt.Nodes()
			if err != nil {
				return err
			}
			if graph == "" && rt.Config.Remote.GraphAddress == "" && len(addrs) > 0 {
				graph = addrs[0]
			}
			if graph != "" {
				svc.Proxy.SetAddress(graph)
			}

			registry := rt.Registry()
			engine := remote.NewEngine(svc.Client, registry, rt.Log)
			for _, a := range addrs {
				engine.Watch(ctx, a)
			}
			defer engine.StopAll()

			collector := metrics.NewCollector(svc.Proxy, dashboardMetrics, rt.Log)
			go collector.Run(ctx)

			app := tui.New(tui.Config{
				Context:   ctx,
				Registry:  registry,
				Engine:    engine,
				Reports:   svc.Reports,
				Archives:  svc.Archives,
				Collector: collector,
				Nodes:     rt.Nodes,
				LogLines:  rt.LogLines,
				Log:       rt.Log,
			})

			p := tea.NewProgram(app,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&graph, "graph", "", "Node graphed in the live panel (defaults to remote.graph_address, then the first node)")
	return cmd
}
