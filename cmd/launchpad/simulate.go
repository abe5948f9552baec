package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/config"
	"github.com/rovshanmuradov/launchpad/internal/events"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/export"
	"github.com/rovshanmuradov/launchpad/internal/indexer"
	"github.com/rovshanmuradov/launchpad/internal/scenario"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// ErrScenarioFailed is returned when at least one step missed its expectation.
var ErrScenarioFailed = errors.New("scenario failed")

type simulateOptions struct {
	exportDir string
	format    string
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scenario against an in-memory exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := root.scenarioEnv()
			if err != nil {
				return err
			}
			return runSimulate(cmd, base, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "write the executed trades to this directory")
	cmd.Flags().StringVar(&opts.format, "format", string(export.FormatCSV), "export format: csv or json")
	return cmd
}

// scenarioEnv derives the base environment from the config file, falling
// back to defaults without one. Scenario headers override it.
func (o *rootOptions) scenarioEnv() (scenario.Env, error) {
	env := scenario.Env{
		Admin:             "admin",
		Platform:          config.DefaultPlatform,
		EcosystemTreasury: "ecosystem",
		Params:            exchange.DefaultParams(),
	}
	var cfg *config.Config
	if o.configPath != "" {
		var err error
		if cfg, err = o.loadConfig(); err != nil {
			return scenario.Env{}, err
		}
		env.Admin = cfg.AdminAddress()
		env.Platform = cfg.Platform
		env.EcosystemTreasury = cfg.EcosystemTreasuryAddress()
		env.Params = cfg.ExchangeParams()
	}

	env.Logger = zap.NewNop()
	if o.verbose {
		log, err := o.newLogger(cfg)
		if err != nil {
			return scenario.Env{}, fmt.Errorf("init logger: %w", err)
		}
		env.Logger = log.Logger
	}
	return env, nil
}

func runSimulate(cmd *cobra.Command, base scenario.Env, path string, opts *simulateOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	sc, err := scenario.ParseFile(path)
	if err != nil {
		return err
	}
	env, err := sc.Env(base)
	if err != nil {
		return err
	}
	world, err := scenario.NewWorld(env, sc)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	report := world.Run(runContext(cmd), sc)

	out := cmd.OutOrStdout()
	if err := printReport(out, report); err != nil {
		return err
	}

	if opts.exportDir != "" {
		trades, err := recordedTrades(world.Recorder.OfType(events.TradeExecuted))
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Fprintln(out, "no trades to export")
			return scenarioResult(report)
		}
		file, err := export.NewTradeExporter(env.Logger).ExportTrades(trades, export.ExportOptions{
			Format:    format,
			OutputDir: opts.exportDir,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d trades to %s\n", len(trades), file)
	}

	return scenarioResult(report)
}

func scenarioResult(r *scenario.Report) error {
	if !r.OK() {
		return fmt.Errorf("%w: %d of %d steps", ErrScenarioFailed, r.Failed, len(r.Steps))
	}
	return nil
}

// recordedTrades converts trade events with the indexer's mapping.
func recordedTrades(evs []events.Event) ([]*models.TradeRecord, error) {
	trades := make([]*models.TradeRecord, 0, len(evs))
	for _, e := range evs {
		batch, err := indexer.Convert(e)
		if err != nil {
			return nil, err
		}
		if batch.Trade != nil {
			trades = append(trades, batch.Trade)
		}
	}
	return trades, nil
}

func printReport(out io.Writer, r *scenario.Report) error {
	fmt.Fprintf(out, "Scenario: %s\n", r.Name)

	steps := tablewriter.NewWriter(out)
	steps.Header("#", "Op", "Caller", "Asset", "Expected", "Outcome", "Result", "Detail")
	for _, s := range r.Steps {
		result := "ok"
		if !s.Passed {
			result = "FAIL"
		}
		detail := s.Detail
		if s.Error != "" {
			detail = s.Error
		}
		_ = steps.Append([]string{
			strconv.Itoa(s.Index), s.Op, s.Caller.Short(), string(s.Asset),
			s.Expected, s.Outcome, result, detail,
		})
	}
	if err := steps.Render(); err != nil {
		return fmt.Errorf("render steps: %w", err)
	}

	if len(r.Tokens) > 0 {
		tokens := tablewriter.NewWriter(out)
		tokens.Header("Asset", "Kind", "Symbol", "Supply", "Reserve", "Price", "Holders")
		for _, t := range r.Tokens {
			_ = tokens.Append([]string{
				string(t.Info.Asset.ID), string(t.Info.Asset.Kind), t.Info.Symbol,
				u64(t.Supply), u64(t.Reserve), u64(t.Price), strconv.Itoa(t.Holders),
			})
		}
		if err := tokens.Render(); err != nil {
			return fmt.Errorf("render tokens: %w", err)
		}
	}

	if len(r.Balances) > 0 {
		addrs := make([]types.Address, 0, len(r.Balances))
		for a := range r.Balances {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

		balances := tablewriter.NewWriter(out)
		balances.Header("Account", "Balance")
		for _, a := range addrs {
			_ = balances.Append([]string{string(a), u64(r.Balances[a])})
		}
		if err := balances.Render(); err != nil {
			return fmt.Errorf("render balances: %w", err)
		}
	}

	fmt.Fprintf(out, "steps: %d passed, %d failed; events: %d; platform treasury: %d\n",
		r.Passed, r.Failed, r.Events, r.Treasury)
	return nil
}
