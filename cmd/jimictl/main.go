// jimictl is the operator CLI for the JIMI tracker: it simulates device
// pushes against a running service and talks to ERPNext directly for
// connectivity checks and backfills.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/jimi-tracker/internal/infrastructure/config"
	"github.com/nerrad567/jimi-tracker/internal/infrastructure/logging"
)

const defaultEndpoint = "http://127.0.0.1:8000/jimi/push"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Output goes to out; logs to errOut.
func newRootCmd(out, errOut io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "jimictl",
		Short: "Operator tools for the JIMI tracker",
		Long: `jimictl sends test pushes to a running tracker and talks to ERPNext
directly.

Commands:
  simulate   random points around Nairobi for one or more devices
  push       a single payload
  erp-test   one Vehicle Telemetry record straight to ERPNext
  erp-bulk   upload every logged point from a storage.json image`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "tracker config.yaml; ERP settings default from it and the environment")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newSimulateCmd(g),
		newPushCmd(g),
		newERPTestCmd(g),
		newERPBulkCmd(g),
	)
	return root
}

// logger returns a text logger writing to the command's error stream.
func (g *globalFlags) logger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{
		Level:  g.logLevel,
		Format: "text",
	}, "jimictl", cmd.ErrOrStderr())
}

// loadConfig loads the tracker configuration. Without --config only defaults
// and environment overrides apply.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
