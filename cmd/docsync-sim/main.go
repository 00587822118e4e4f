// Command docsync-sim exercises the document binding layer: it simulates
// collaborators editing one entry, applies lifecycle actions against a
// management API and watches changes relayed over Redis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunoga/docsync/config"
	"github.com/brunoga/docsync/internal/logger"
)

var (
	configPath string
	logMode    string

	cfg config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docsync-sim",
	Short: "Simulate and inspect collaborative entry editing",
	Long: `docsync-sim drives the document binding layer outside of a UI.

Settings come from DOCSYNC_* environment variables, optionally overlaid by a
YAML file given with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		boot := logger.Nop()
		loaded, err := config.Load(configPath, boot)
		if err != nil {
			return err
		}
		if logMode != "" {
			loaded.LogMode = logMode
		}
		l, err := logger.New(loaded.LogMode)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		cfg, log = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode (development or production)")

	rootCmd.AddCommand(simulateCmd, stateCmd, applyCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
