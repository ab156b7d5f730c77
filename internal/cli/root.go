// Package cli defines the root Cobra command and global flag/context setup.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/f9-o/sensorhub/internal/cli/commands"
	"github.com/f9-o/sensorhub/internal/core/config"
	"github.com/f9-o/sensorhub/internal/core/logger"
	"github.com/f9-o/sensorhub/internal/core/state"
	"github.com/f9-o/sensorhub/pkg/pprint"
)

// globalFlags holds values bound to persistent global flags.
var globalFlags struct {
	configFile string
	nodes      []string
	debug      bool
	jsonOutput bool
}

// active is the runtime built for the running command.
var active *commands.Runtime

// tuiLogBuffer bounds the log lines queued for the dashboard.
const tuiLogBuffer = 256

// rootCmd is the base command for sensorhub.
var rootCmd = &cobra.Command{
	Use:           "sensorhub",
	Short:         "SensorHub: reports, archives and live readings from sensor nodes",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "init" || cmd.Name() == "hash" {
			return nil
		}
		return initRuntime(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if active == nil || active.State == nil {
			return nil
		}
		db := active.State
		active = nil
		return db.Close()
	},
}

// Root returns the root command, for tests and doc generation.
func Root() *cobra.Command { return rootCmd }

// Execute runs the CLI. Called by main().
func Execute() {
	origHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		pprint.PrintBanner(commands.Version, commands.BuildDate)
		origHelp(cmd, args)
	})

	if err := rootCmd.Execute(); err != nil {
		pprint.Error("%s", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.configFile, "config", "c", "", "Path to sensorhub.yaml (defaults to auto-discovery)")
	rootCmd.PersistentFlags().StringSliceVarP(&globalFlags.nodes, "nodes", "n", nil, "Target node addresses, comma separated (overrides config and registry)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.debug, "debug", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.jsonOutput, "json", false, "Output in machine-readable JSON")

	rootCmd.AddCommand(
		commands.NewInitCmd(),
		commands.NewNodesCmd(),
		commands.NewReportCmd(),
		commands.NewArchiveCmd(),
		commands.NewLiveCmd(),
		commands.NewSendCmd(),
		commands.NewLogsCmd(),
		commands.NewCredentialsCmd(),
		commands.NewServeCmd(),
		commands.NewAgentCmd(),
		commands.NewCertCmd(),
		commands.NewUICmd(),
		commands.NewVersionCmd(),
	)
}

// initRuntime loads config, logger, and state before each command runs.
func initRuntime(cmd *cobra.Command) error {
	cfg, err := config.Load(globalFlags.configFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	home := config.Home()
	if err := os.MkdirAll(home, 0750); err != nil {
		return fmt.Errorf("create sensorhub home: %w", err)
	}
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(home, "logs", "sensorhub.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0750); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	// The dashboard owns the terminal, so its logs go to the events panel.
	var logLines chan string
	var stderrOut io.Writer = os.Stderr
	if cmd.Name() == "ui" {
		logLines = make(chan string, tuiLogBuffer)
		logger.SetTUISink(logLines)
		stderrOut = nil
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, logFile, home, globalFlags.debug, stderrOut)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	db, err := state.Open(filepath.Join(home, "state.db"))
	if err != nil {
		return fmt.Errorf("state db: %w", err)
	}

	active = &commands.Runtime{
		Config:   cfg,
		Log:      log,
		State:    db,
		Creds:    config.NewCredentialStore(cfg.Remote),
		LogLines: logLines,
		Flags: commands.GlobalFlags{
			ConfigFile: globalFlags.configFile,
			Nodes:      globalFlags.nodes,
			Debug:      globalFlags.debug,
			JSONOutput: globalFlags.jsonOutput,
		},
	}
	cmd.SetContext(commands.NewContext(cmd.Context(), active))
	return nil
}
