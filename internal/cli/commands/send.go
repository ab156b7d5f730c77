// sensorhub send: fan a control command out to every node.
package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/internal/report"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func controlNames() string {
	var names []string
	for _, c := range remote.ControlCommands() {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

func NewSendCmd() *cobra.Command {
	var fields []string
	var yes bool

	cmd := &cobra.Command{
		Use:   "send <command>",
		Short: "Send a control command to every node",
		Long:  "Send a node control command concurrently to every target node.\nCommands: " + controlNames(),
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub send RestartServices
  sensorhub send SetHostName --set hostname=greenhouse --nodes 10.0.0.5
  sensorhub send RebootSystem --yes`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			c, err := remote.Lookup(args[0])
			if err != nil || c.Method != "PUT" {
				return fmt.Errorf("%q is not a control command (want one of %s)", args[0], controlNames())
			}
			form, err := parseFields(fields)
			if err != nil {
				return err
			}
			addrs, err := rt.Nodes()
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return fmt.Errorf("no nodes configured; use --nodes, remote.nodes or 'sensorhub nodes add'")
			}

			if !yes && !confirm(fmt.Sprintf("Send %s to %d node(s)?", c.Name, len(addrs))) {
				pprint.Info("Aborted.")
				return nil
			}

			coord := rt.Coordinator(rt.Client())
			results := coord.FanOut(cmd.Context(), addrs, c, remote.FanOutOptions{DisplayName: true, Body: form})
			report.SortResults(results)

			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
				}
			}
			result := "success"
			if failed > 0 {
				result = "failure"
			}
			rt.Log.Audit(logger.AuditEntry{
				Op:     "node.command",
				Kind:   c.Name,
				Nodes:  len(results),
				Failed: failed,
				Result: result,
				Meta:   map[string]string{"fields": strings.Join(fields, "&")},
			})

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(results)
			}
			printResults(results)
			if failed > 0 {
				return fmt.Errorf("%s failed on %d of %d node(s)", c.Name, failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "set", nil, "Form field key=value sent with the command (repeatable)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func parseFields(fields []string) (url.Values, error) {
	form := url.Values{}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", f)
		}
		form.Add(k, v)
	}
	return form, nil
}

func confirm(question string) bool {
	fmt.Fprintf(pprint.Out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

func printResults(results []v1.NodeResult) {
	tbl := pprint.NewTable("ADDRESS", "NAME", "RESULT", "TIME", "DETAIL")
	for _, r := range results {
		tbl.AddRow(r.Address, r.DisplayName, pprint.ResultBadge(r.Status),
			r.ResponseTime.Round(time.Millisecond).String(), r.Err)
	}
	tbl.Render()
}
