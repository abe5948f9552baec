package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/config"
	"github.com/rovshanmuradov/launchpad/internal/export"
	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/postgres"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

var errStorageDisabled = errors.New("export needs storage.enabled and a postgres_url")

type exportOptions struct {
	format    string
	outputDir string
	asset     string
	side      string
	trader    string
	from      string
	to        string
	limit     int
	daily     string
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export indexed trades to CSV or JSON",
		Long: `Export trades from the configured postgres store. --daily YYYY-MM-DD
writes an hourly report for that UTC day instead of the trade list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Storage.Enabled {
				return errStorageDisabled
			}
			log, err := root.newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer syncLogger(log)

			store, err := openStore(cfg, log.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			return runExport(cmd, store, export.NewTradeExporter(log.Logger), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.format, "format", string(export.FormatCSV), "csv or json")
	f.StringVarP(&opts.outputDir, "output", "o", ".", "output directory")
	f.StringVar(&opts.asset, "asset", "", "only trades of this asset")
	f.StringVar(&opts.side, "side", "", "only buys or sells")
	f.StringVar(&opts.trader, "trader", "", "only trades by this address")
	f.StringVar(&opts.from, "from", "", "RFC3339 lower bound")
	f.StringVar(&opts.to, "to", "", "RFC3339 upper bound")
	f.IntVar(&opts.limit, "limit", 0, "maximum number of trades, 0 for all")
	f.StringVar(&opts.daily, "daily", "", "write the hourly report for this UTC date")
	return cmd
}

func openStore(cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	return postgres.NewStorage(cfg.Storage.PostgresURL, postgres.Options{
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	}, log.Named("storage"))
}

func (o *exportOptions) filter() (storage.TradeFilter, error) {
	f := storage.TradeFilter{Asset: o.asset, Trader: o.trader, Limit: o.limit}
	if o.side != "" {
		side, err := types.ParseSide(o.side)
		if err != nil {
			return f, err
		}
		f.Side = string(side)
	}
	var err error
	if o.from != "" {
		if f.From, err = time.Parse(time.RFC3339, o.from); err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if o.to != "" {
		if f.To, err = time.Parse(time.RFC3339, o.to); err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return f, nil
}

func runExport(cmd *cobra.Command, store storage.Storage, exporter *export.TradeExporter, opts *exportOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	filter, err := opts.filter()
	if err != nil {
		return err
	}

	var day time.Time
	if opts.daily != "" {
		if day, err = time.Parse(time.DateOnly, opts.daily); err != nil {
			return fmt.Errorf("invalid --daily: %w", err)
		}
		filter.From = day
		filter.To = day.Add(24*time.Hour - time.Nanosecond)
	}

	trades, err := store.ListTrades(runContext(cmd), filter)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}

	var file string
	if !day.IsZero() {
		file, err = exporter.ExportDailyReport(trades, day, opts.outputDir)
	} else {
		file, err = exporter.ExportTrades(trades, export.ExportOptions{
			Format:    format,
			Filter:    filter,
			OutputDir: opts.outputDir,
		})
	}
	if err != nil {
		return err
	}
	if file == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "no trades to export")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d trades to %s\n", len(trades), file)
	return nil
}
