package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/scenario"
	"github.com/rovshanmuradov/launchpad/internal/service"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var scenarioPaths []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange with its indexer, metrics and HTTP API",
		Long: `Run the exchange with its indexer, metrics and HTTP API.

Each --scenario file is replayed into the running engine before the
listeners start, so its operations are indexed and visible through the API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			scenarios, err := parseScenarios(scenarioPaths)
			if err != nil {
				return err
			}
			log, err := root.newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer syncLogger(log)

			ctx, stop := signal.NotifyContext(runContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := service.New(cfg, log.Logger)
			if err != nil {
				log.Error("Failed to initialize service", zap.Error(err))
				return err
			}
			log.Info("Launchpad started",
				zap.String("version", Version),
				zap.String("platform", cfg.Platform),
				zap.Bool("storage", cfg.Storage.Enabled),
				zap.Bool("api", cfg.API.Enabled),
				zap.Bool("metrics", cfg.Metrics.Enabled))

			if err := replayScenarios(ctx, cmd.OutOrStdout(), svc, scenarios); err != nil {
				log.Error("Scenario replay failed", zap.Error(err))
				_ = svc.Close(context.Background())
				return err
			}

			if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("Service stopped with error", zap.Error(err))
				return err
			}
			log.Info("Shutdown completed")
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&scenarioPaths, "scenario", nil, "scenario file to replay into the engine (repeatable)")
	return cmd
}

func parseScenarios(paths []string) ([]*scenario.Scenario, error) {
	scenarios := make([]*scenario.Scenario, 0, len(paths))
	for _, path := range paths {
		sc, err := scenario.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// replayScenarios runs each scenario against the service engine and prints
// its report. Steps that miss their expectation are reported, not fatal.
func replayScenarios(ctx context.Context, out io.Writer, svc *service.Service, scenarios []*scenario.Scenario) error {
	for _, sc := range scenarios {
		report, err := svc.Replay(ctx, sc)
		if err != nil {
			return err
		}
		if err := printReport(out, report); err != nil {
			return err
		}
	}
	return nil
}

// runContext falls back to a background context for commands executed
// without ExecuteContext.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
