package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/motionwatch/internal/config"
	"github.com/fakeyudi/motionwatch/internal/logging"
)

// cfg holds the layered configuration, populated in PersistentPreRunE.
var cfg config.Config

// log is the process logger, built from cfg after flag overrides.
var log = zap.NewNop().Sugar()

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "motionwatch",
	Short:         "Watch a camera for motion and record clips of it",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if l == nil {
			return err
		}
		log = l
		if err != nil {
			log.Warnw("invalid log level", "error", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.toml, .yaml or .json); skips the global and project files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetConfig returns the layered configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
