// sensorhub logs: download a single node's zipped logs or database.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/netutil"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewLogsCmd() *cobra.Command {
	var output string
	var database bool

	cmd := &cobra.Command{
		Use:   "logs <node>",
		Short: "Download the zipped logs of one node",
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub logs 10.0.0.5
  sensorhub logs pi.local:10065 -o pi-logs.zip
  sensorhub logs 10.0.0.5 --database`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			addr := netutil.Resolve(args[0])

			c, ext := remote.CmdDownloadLogs, ".zip"
			if database {
				c, ext = remote.CmdDownloadDatabase, ".db"
			}
			if output == "" {
				output = strings.NewReplacer(":", "_", ".", "_").Replace(addr.Host) + "-" + c.Name + ext
			}

			sp := pprint.NewSpinner(fmt.Sprintf("Downloading %s from %s", c.Name, addr))
			sp.Start()
			body, err := rt.Client().Send(cmd.Context(), addr, c, nil, 0)
			sp.Stop(err == nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, body, 0644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			pprint.Success("Saved %s (%s)", output, humanize.IBytes(uint64(len(body))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file")
	cmd.Flags().BoolVar(&database, "database", false, "Download the recording database instead")
	return cmd
}
