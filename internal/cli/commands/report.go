// sensorhub report: build a combined HTML report across every node.
package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/report"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func reportKindNames() string {
	names := make([]string, 0, len(v1.ReportKinds)+1)
	for _, k := range v1.ReportKinds {
		names = append(names, string(k))
	}
	return strings.Join(append(names, string(v1.ReportCombo)), " | ")
}

func NewReportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report <kind>",
		Short: "Generate a combined HTML report (" + reportKindNames() + ")",
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub report system -o system.html
  sensorhub report combo --nodes 10.0.0.5,10.0.0.6`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			kind := v1.ReportKind(args[0])
			if !report.Valid(kind) {
				return fmt.Errorf("unknown report kind %q (want %s)", kind, reportKindNames())
			}
			addrs, err := rt.Nodes()
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return fmt.Errorf("no nodes configured; use --nodes, remote.nodes or 'sensorhub nodes add'")
			}

			svc := rt.Services()
			spin := pprint.NewSpinner(fmt.Sprintf("Generating %s report for %d node(s)", kind, len(addrs)))
			if !rt.Flags.JSONOutput {
				spin.Start()
			}
			art, err := svc.Reports.Regenerate(cmd.Context(), kind, addrs)
			spin.Stop(err == nil)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				if rt.Flags.JSONOutput {
					return json.NewEncoder(os.Stdout).Encode(map[string]any{
						"kind": art.Kind, "nodes": art.Nodes, "failed": art.Failed,
						"generated_at": art.GeneratedAt, "html": art.HTML,
					})
				}
				_, err := fmt.Fprintln(os.Stdout, art.HTML)
				return err
			}
			if err := os.WriteFile(out, []byte(art.HTML), 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			pprint.Success("Wrote %s (%s, %d node(s), %d failed)", out, humanize.Bytes(uint64(len(art.HTML))), art.Nodes, art.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the report to a file instead of stdout")
	return cmd
}
