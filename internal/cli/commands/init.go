// sensorhub init: scaffold a sensorhub.yaml in the target directory.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/pkg/netutil"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewInitCmd() *cobra.Command {
	var targetPath string
	var nodes []string
	var graph string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new sensorhub.yaml in the current (or specified) directory",
		Example: `  sensorhub init
  sensorhub init --node 10.0.0.5 --node 10.0.0.6 --graph 10.0.0.5`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFile := filepath.Join(targetPath, config.ProjectFile)
			if _, err := os.Stat(outFile); err == nil {
				return fmt.Errorf("%s already exists at %s; delete it first to reinitialise", config.ProjectFile, outFile)
			}

			cfg := config.Default()
			for _, n := range nodes {
				cfg.Remote.Nodes = append(cfg.Remote.Nodes, netutil.Resolve(n).String())
			}
			if graph != "" {
				cfg.Remote.GraphAddress = netutil.Resolve(graph).String()
			}
			if err := config.Save(outFile, cfg); err != nil {
				return err
			}

			pprint.Success("Created %s", outFile)
			pprint.Info("Set remote.password, then run: sensorhub report system")
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "path", ".", "Target directory for sensorhub.yaml")
	cmd.Flags().StringArrayVar(&nodes, "node", nil, "Sensor node address (repeatable)")
	cmd.Flags().StringVar(&graph, "graph", "", "Node polled by live graphs")
	return cmd
}
