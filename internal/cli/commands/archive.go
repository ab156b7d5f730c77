// sensorhub archive: bundle node databases, logs and reports into a zip.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/archive"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func archiveKindNames() string {
	names := make([]string, len(v1.ArchiveKinds))
	for i, k := range v1.ArchiveKinds {
		names[i] = string(k)
	}
	return strings.Join(names, " | ")
}

func NewArchiveCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "archive <kind>",
		Short: "Build a combined zip archive (" + archiveKindNames() + ")",
		Args:  cobra.ExactArgs(1),
		Example: `  sensorhub archive databases -o databases.zip
  sensorhub archive bigzip`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			kind := v1.ArchiveKind(args[0])
			if !archive.Valid(kind) {
				return fmt.Errorf("unknown archive kind %q (want %s)", kind, archiveKindNames())
			}
			addrs, err := rt.Nodes()
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return fmt.Errorf("no nodes configured; use --nodes, remote.nodes or 'sensorhub nodes add'")
			}

			svc := rt.Services()
			spin := pprint.NewSpinner(fmt.Sprintf("Building %s archive from %d node(s)", kind, len(addrs)))
			if !rt.Flags.JSONOutput {
				spin.Start()
			}
			job, err := svc.Archives.Regenerate(cmd.Context(), kind, addrs)
			spin.Stop(err == nil)
			if err != nil {
				return err
			}

			dest := job.Path
			if out != "" {
				if err := saveJob(job, out); err != nil {
					return err
				}
				dest = out
			} else if job.InMemory {
				if err := saveJob(job, job.Name); err != nil {
					return err
				}
				dest = job.Name
			}

			if rt.Flags.JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"kind": job.Kind, "path": dest, "size": job.Size, "entries": job.Entries,
					"failed": job.Failed, "estimated_mb": job.EstimatedMB, "in_memory": job.InMemory,
				})
			}
			pprint.Success("Wrote %s", dest)
			pprint.KV("Size", humanize.IBytes(uint64(job.Size)))
			pprint.KV("Estimated", humanize.IBytes(uint64(job.EstimatedMB*(1<<20))))
			pprint.KV("Entries", fmt.Sprintf("%d (%d failed)", job.Entries, job.Failed))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "Copy the archive to this path")
	return cmd
}

// saveJob writes the job's archive to dest, from memory or from its disk path.
func saveJob(job archive.Job, dest string) error {
	if job.InMemory {
		return os.WriteFile(dest, job.Bytes, 0644)
	}
	src, err := os.Open(job.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
