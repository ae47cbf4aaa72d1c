// Package cli implements the syncagent command-line interface.
package cli

import (
	"fmt"
	"os"

	"offline_sync_agent/internal/infra/config"
	"offline_sync_agent/internal/infra/logger"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "syncagent",
	Short: "Offline cache, sync queue and notification agent for the scouting backend",
	Long: `syncagent mirrors backend datasets into a local cache, buffers scouting
submissions made offline until they can be synced, and relays backend
notifications to a Telegram chat (or the log).`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	logger.Init(cfg)
	return cfg, nil
}
