// sensorhub nodes: manage the sensor node registry.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/health"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/netutil"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Manage the sensor node registry",
		Long:  "Add, remove, list, test and watch the sensor nodes sensorhub talks to.",
	}
	cmd.AddCommand(
		newNodesAddCmd(),
		newNodesRmCmd(),
		newNodesLsCmd(),
		newNodesTestCmd(),
		newNodesWatchCmd(),
	)
	return cmd
}

func newNodesAddCmd() *cobra.Command {
	var name string
	var skipCheck bool
	var retries int

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register a sensor node",
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub nodes add 10.0.0.5
  sensorhub nodes add https://greenhouse.lan:10065 --name greenhouse`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			registry := rt.Registry()
			info, err := registry.Add(args[0], name)
			if err != nil {
				return err
			}

			if !skipCheck {
				client := rt.Client()
				err := health.NewChecker(client, rt.Log).WaitOnline(cmd.Context(), info.Address, time.Second, retries)
				if err != nil {
					pprint.Warn("Node %s registered but not answering: %s", info.Address, err)
					return nil
				}
			}
			if name == "" && !skipCheck {
				coord := rt.Coordinator(rt.Client())
				host := coord.DisplayName(cmd.Context(), netutil.Resolve(info.Address))
				if err := registry.SetDisplayName(info.Address, host); err != nil {
					return err
				}
				info.DisplayName = host
			}

			pprint.Success("Node %s registered as %q", info.Address, info.DisplayName)
			pprint.Info("Run 'sensorhub nodes test %s' to verify login", info.Address)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the node's hostname)")
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "Do not contact the node before registering it")
	cmd.Flags().IntVar(&retries, "retries", 2, "Extra online checks before giving up")
	return cmd
}

func newNodesRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <address>",
		Short: "Remove a node from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			if err := rt.Registry().Remove(args[0]); err != nil {
				return err
			}
			pprint.Success("Node %q removed", args[0])
			return nil
		},
	}
}

func newNodesLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List registered nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			nodes, err := rt.Registry().List()
			if err != nil {
				return err
			}
			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(nodes)
			}
			if len(nodes) == 0 {
				pprint.Info("No nodes registered. Run 'sensorhub nodes add <address>'.")
				return nil
			}

			tbl := pprint.NewTable("ADDRESS", "NAME", "STATUS", "RTT", "LAST SEEN")
			for _, n := range nodes {
				rtt, seen := "-", "never"
				if n.ResponseTime > 0 {
					rtt = n.ResponseTime.Round(time.Millisecond).String()
				}
				if !n.LastSeen.IsZero() {
					seen = humanize.Time(n.LastSeen)
				}
				tbl.AddRow(n.Address, n.DisplayName, pprint.NodeBadge(n.Status), rtt, seen)
			}
			tbl.Render()
			return nil
		},
	}
}

func newNodesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <address>",
		Short: "Diagnose a node: TCP connect, online check, login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			checker := health.NewChecker(rt.Client(), rt.Log)

			d := checker.Diagnose(cmd.Context(), args[0])
			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(diagnosisJSON(d))
			}

			pprint.Header("node " + d.Address.String())
			for i, s := range d.Steps {
				if s.OK {
					pprint.Step(i+1, 3, "%-7s ok (%s)", s.Step, s.Latency.Round(time.Millisecond))
				} else {
					pprint.Step(i+1, 3, "%-7s failed: %v", s.Step, s.Err)
				}
			}
			if d.DisplayName != "" {
				pprint.KV("Hostname", d.DisplayName)
			}
			pprint.KV("Result", pprint.ResultBadge(d.Status()))

			if d.Status() != v1.ResultOK {
				return fmt.Errorf("node %s is not healthy", d.Address)
			}
			return nil
		},
	}
}

func diagnosisJSON(d health.Diagnosis) map[string]any {
	steps := make([]map[string]any, 0, len(d.Steps))
	for _, s := range d.Steps {
		step := map[string]any{"step": s.Step, "ok": s.OK, "latency_ms": s.Latency.Milliseconds()}
		if s.Err != nil {
			step["error"] = s.Err.Error()
		}
		steps = append(steps, step)
	}
	return map[string]any{
		"address":      d.Address.String(),
		"display_name": d.DisplayName,
		"status":       d.Status(),
		"steps":        steps,
	}
}

func newNodesWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll every registered node and print status changes",
		Example: `  sensorhub nodes watch
  sensorhub nodes watch --interval 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			registry := rt.Registry()
			addrs, err := registry.Addresses()
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return fmt.Errorf("no nodes registered; run 'sensorhub nodes add <address>'")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := remote.NewEngine(rt.Client(), registry, rt.Log).WithInterval(interval)
			defer engine.StopAll()
			for _, a := range addrs {
				engine.Watch(ctx, a)
			}

			pprint.Info("Watching %d node(s) every %s (Ctrl+C to stop)", len(addrs), interval)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-engine.Events():
					if rt.Flags.JSONOutput {
						_ = json.NewEncoder(os.Stdout).Encode(ev)
						continue
					}
					fmt.Fprintf(pprint.Out, "%s  %-22s %s  %s\n",
						time.Now().Format("15:04:05"), ev.Address, pprint.NodeBadge(ev.Status),
						ev.ResponseTime.Round(time.Millisecond))
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", remote.HeartbeatInterval, "Probe interval")
	return cmd
}
