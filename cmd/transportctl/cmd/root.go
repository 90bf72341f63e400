package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Goden-Gun/transport-core/pkg/bootstrap"
	"github.com/Goden-Gun/transport-core/pkg/config"
)

var (
	// Global flags
	cfgFile string
	cfgDir  string

	// Shared state set during PersistentPreRun
	cfg *config.Config
)

// rootCmd is the base command for transportctl.
var rootCmd = &cobra.Command{
	Use:   "transportctl",
	Short: "Run and dial transport-core channels",
	Long: `transportctl serves the WebSocket and gRPC echo endpoints and dials any
channel binding (ws, grpc, redis, kafka, nats) to exchange typed messages
from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.LoadOptions{
			ConfigPath:    cfgDir,
			ConfigFile:    cfgFile,
			EnvPrefix:     config.DefaultEnvPrefix,
			AllowNoConfig: true,
		})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// stdout carries command output, logs go to stderr
		return bootstrap.InitLoggerWithOptions(cfg.Log, bootstrap.LoggerOptions{
			ServiceName:      cfg.App.Name,
			File:             cfg.LogFile,
			Output:           cmd.ErrOrStderr(),
			AddContainerHook: cfg.LogFile.Dir != "",
		})
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <config-dir>/config_<APP_ENV>.yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "./configs", "directory searched for config_<APP_ENV>.yaml")
}
