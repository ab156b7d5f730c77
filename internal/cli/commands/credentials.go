// sensorhub credentials: manage node login credentials.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	v1 "github.com/f9-o/sensorhub/api/v1"
	"github.com/f9-o/sensorhub/internal/agent"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

func NewCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the credentials used to log in to nodes",
	}
	cmd.AddCommand(newCredentialsSetCmd(), newCredentialsHashCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var username string
	var global bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the node username and password in the config file",
		Example: `  sensorhub credentials set --username kootnet
  sensorhub credentials set --global`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			if username == "" {
				username = rt.Creds.Get().Username
			}
			password, err := readPassword("Node password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			path := rt.Flags.ConfigFile
			switch {
			case global:
				path = filepath.Join(config.Home(), "config.yaml")
			case path == "":
				path = config.ProjectFile
			}

			rt.Config.Remote.Username = username
			rt.Config.Remote.Password = password
			if err := config.Save(path, rt.Config); err != nil {
				return err
			}
			rt.Creds.Set(v1.Credentials{Username: username, Password: password})
			pprint.Success("Credentials for %q saved to %s", username, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Node login username (defaults to the current one)")
	cmd.Flags().BoolVar(&global, "global", false, "Write to the global config in the sensorhub home")
	return cmd
}

func newCredentialsHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print a bcrypt hash for agent.password_hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword("Agent password: ")
			if err != nil {
				return err
			}
			hash, err := agent.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, hash)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal, or reads a line from a pipe.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
