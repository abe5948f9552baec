package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/config"
	"github.com/rovshanmuradov/launchpad/internal/logger"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "launchpad",
		Short: "Reservation, launch and bonding-curve trading engine for social tokens",
		Long: `launchpad runs the social token exchange.

  serve      boot the engine with its indexer, metrics and HTTP API
  quote      price a trade on a bonding curve
  simulate   replay a YAML scenario against an in-memory engine
  export     export indexed trades to CSV or JSON`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the config file (LAUNCHPAD_* env vars override it)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to the console")

	cmd.AddCommand(
		newServeCmd(opts),
		newQuoteCmd(opts),
		newSimulateCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads and validates the process config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.verbose {
		cfg.Logging.Development = true
	}
	return cfg, nil
}

// newLogger builds the process logger. Without a config file only the
// console core is used.
func (o *rootOptions) newLogger(cfg *config.Config) (*logger.Logger, error) {
	var lc logger.Config
	if cfg != nil {
		lc = cfg.Logging
	}
	if cfg == nil || o.configPath == "" {
		lc.LogFile = ""
	}
	if o.verbose {
		lc.Development = true
	}
	return logger.New(&lc)
}

func syncLogger(l *logger.Logger) {
	if err := l.Sync(); err != nil {
		l.Debug("logger sync failed", zap.Error(err))
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "launchpad", Version)
		},
	}
}
