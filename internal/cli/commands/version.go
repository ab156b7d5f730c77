// sensorhub version: print console build and node protocol information.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/remote"
	"github.com/f9-o/sensorhub/pkg/netutil"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

// Build-time variables injected via -ldflags. Version is also what the agent
// reports in its system and config reports.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// versionNodeTimeout bounds the optional node round trip.
const versionNodeTimeout = 3 * time.Second

// versionInfo describes this build and the node protocol it speaks.
func versionInfo() map[string]string {
	return map[string]string{
		"version":       Version,
		"commit":        Commit,
		"build_date":    BuildDate,
		"go_version":    runtime.Version(),
		"os_arch":       runtime.GOOS + "/" + runtime.GOARCH,
		"user_agent":    remote.UserAgent,
		"node_port":     strconv.Itoa(netutil.DefaultNodePort),
		"node_commands": strconv.Itoa(remote.CatalogSize()),
		"metrics":       strconv.Itoa(len(remote.Metrics)),
	}
}

// nodeInfo asks one node for its online status and hostname. Both commands
// are unauthenticated, so no credentials are needed.
func nodeInfo(ctx context.Context, client remote.Sender, raw string) map[string]string {
	addr := netutil.Resolve(raw)
	info := map[string]string{"node": addr.String(), "node_status": "online"}

	start := time.Now()
	if _, err := client.Send(ctx, addr, remote.CmdCheckOnline, nil, versionNodeTimeout); err != nil {
		info["node_status"] = string(remote.StatusOf(err))
		return info
	}
	info["node_rtt"] = time.Since(start).Round(time.Millisecond).String()
	if body, err := client.Send(ctx, addr, remote.CmdGetHostName, nil, versionNodeTimeout); err == nil {
		info["node_hostname"] = strings.TrimSpace(string(body))
	}
	return info
}

func NewVersionCmd() *cobra.Command {
	var node string
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print sensorhub version information",
		Long:         "Print the console build, the node protocol it speaks and, with --node, whether a node answers.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo()
			if node != "" {
				client := remote.NewClient(config.NewCredentialStore(config.RemoteConfig{}),
					remote.Options{Timeout: versionNodeTimeout}, logger.Discard())
				for k, v := range nodeInfo(cmd.Context(), client, node) {
					info[k] = v
				}
			}

			jsonFlag, _ := cmd.Root().PersistentFlags().GetBool("json")
			if jsonFlag {
				return json.NewEncoder(os.Stdout).Encode(info)
			}

			pprint.PrintBanner(Version, BuildDate)
			pprint.KV("Version", Version)
			pprint.KV("Commit", Commit)
			pprint.KV("Built", BuildDate)
			pprint.KV("Go", runtime.Version())
			pprint.KV("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))

			pprint.Header("Node protocol")
			pprint.KV("User-Agent", info["user_agent"])
			pprint.KV("Default port", info["node_port"])
			pprint.KV("Commands", fmt.Sprintf("%s (%s metrics)", info["node_commands"], info["metrics"]))

			if node != "" {
				pprint.Header("Node " + info["node"])
				pprint.KV("Status", info["node_status"])
				if rtt, ok := info["node_rtt"]; ok {
					pprint.KV("Round trip", rtt)
				}
				if host, ok := info["node_hostname"]; ok {
					pprint.KV("Hostname", host)
				}
			}
			fmt.Fprintln(pprint.Out)
			return nil
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "also check that this node answers (host[:port])")
	return cmd
}
