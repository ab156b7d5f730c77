// sensorhub cert: manage the agent TLS certificate.
package commands

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/agent"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewCertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage the self-signed certificate the agent serves",
	}
	cmd.AddCommand(newCertIssueCmd(), newCertStatusCmd())
	return cmd
}

func newCertIssueCmd() *cobra.Command {
	var validFor time.Duration

	cmd := &cobra.Command{
		Use:   "issue <host>...",
		Short: "Issue a new self-signed certificate into the agent data dir",
		Args:  cobra.MinimumNArgs(1),
		Example: `  sensorhub cert issue pi.local 192.168.1.20
  sensorhub cert issue greenhouse --valid-for 8760h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			dir := rt.Config.AgentDataDir()

			certPEM, keyPEM, err := agent.SelfSigned(args, validFor)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			certPath := filepath.Join(dir, agent.GeneratedCertFile)
			if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
				return fmt.Errorf("write cert: %w", err)
			}
			if err := os.WriteFile(filepath.Join(dir, agent.GeneratedKeyFile), keyPEM, 0600); err != nil {
				return fmt.Errorf("write key: %w", err)
			}

			rt.Log.Info("cert.issue", "hosts", args, "valid_for", validFor)
			pprint.Success("Certificate for %s written to %s", strings.Join(args, ", "), certPath)
			return nil
		},
	}

	cmd.Flags().DurationVar(&validFor, "valid-for", 10*365*24*time.Hour, "Certificate lifetime")
	return cmd
}

func newCertStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the certificate the agent will serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			path := rt.Config.Agent.CertFile
			if path == "" {
				path = filepath.Join(rt.Config.AgentDataDir(), agent.GeneratedCertFile)
			}

			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				pprint.Warn("No certificate at %s; one is generated when the agent starts", path)
				return nil
			}
			if err != nil {
				return fmt.Errorf("read cert: %w", err)
			}
			block, _ := pem.Decode(data)
			if block == nil {
				return fmt.Errorf("%s: no PEM block", path)
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("parse cert: %w", err)
			}

			hosts := append([]string{}, cert.DNSNames...)
			for _, ip := range cert.IPAddresses {
				hosts = append(hosts, ip.String())
			}
			pprint.Header("Agent certificate")
			pprint.KV("File", path)
			pprint.KV("Subject", cert.Subject.String())
			pprint.KV("Hosts", strings.Join(hosts, ", "))
			pprint.KV("Not after", fmt.Sprintf("%s (%s)", cert.NotAfter.Format(time.RFC3339), humanize.Time(cert.NotAfter)))
			if time.Now().After(cert.NotAfter) {
				pprint.Error("Certificate has expired")
			}
			return nil
		},
	}
}
