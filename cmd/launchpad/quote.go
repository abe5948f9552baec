package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/launchpad/internal/engine"
	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

type quoteOptions struct {
	supply      uint64
	reserve     uint64
	side        string
	amount      uint64
	basePrice   uint64
	coefficient uint64
	asJSON      bool
}

func newQuoteCmd(root *rootOptions) *cobra.Command {
	opts := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a trade on a bonding curve",
		Long: `Price a buy or sell of --amount units at --supply using the configured
curve and fee schedule. --base-price and --coefficient override the curve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := root.exchangeParams()
			if err != nil {
				return err
			}
			return runQuote(cmd, params, opts)
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&opts.supply, "supply", 0, "current token supply")
	f.Uint64Var(&opts.reserve, "reserve", 0, "current reserve; a sell larger than it is reported illiquid")
	f.StringVar(&opts.side, "side", string(types.SideBuy), "buy or sell")
	f.Uint64Var(&opts.amount, "amount", 1, "units to trade")
	f.Uint64Var(&opts.basePrice, "base-price", 0, "override the curve base price")
	f.Uint64Var(&opts.coefficient, "coefficient", 0, "override the curve coefficient")
	f.BoolVar(&opts.asJSON, "json", false, "print the quote as JSON")
	return cmd
}

// exchangeParams returns the configured params, or the defaults when no
// config file is given.
func (o *rootOptions) exchangeParams() (exchange.Params, error) {
	if o.configPath == "" {
		return exchange.DefaultParams(), nil
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return exchange.Params{}, err
	}
	return cfg.ExchangeParams(), nil
}

func runQuote(cmd *cobra.Command, params exchange.Params, opts *quoteOptions) error {
	side, err := types.ParseSide(opts.side)
	if err != nil {
		return err
	}
	c := params.Curve
	if opts.basePrice > 0 {
		c.BasePrice = opts.basePrice
	}
	if opts.coefficient > 0 {
		c.Coefficient = opts.coefficient
	}
	if err := c.Validate(); err != nil {
		return err
	}

	reserve := opts.reserve
	if side == types.SideSell && reserve == 0 {
		// Assume a fully backed curve.
		reserve, _, err = c.BuyCost(0, opts.supply)
		if err != nil {
			return err
		}
	}
	q, err := engine.QuoteCurve(c, params.Fees, opts.supply, reserve, side, opts.amount)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Field", "Value")
	rows := [][]string{
		{"side", string(q.Side)},
		{"amount", u64(q.Amount)},
		{"value", u64(q.Value)},
		{"average price", u64(q.Average)},
		{"fee total", u64(q.Fees.Total)},
		{"fee creator", u64(q.Fees.Creator)},
		{"fee platform", u64(q.Fees.Platform)},
		{"fee treasury", u64(q.Fees.Treasury)},
		{"net", u64(q.Net)},
		{"price before", u64(q.PriceBefore)},
		{"price after", u64(q.PriceAfter)},
		{"liquid", strconv.FormatBool(q.Liquid)},
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render quote: %w", err)
	}
	return nil
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
