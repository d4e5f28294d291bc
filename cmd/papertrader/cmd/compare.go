package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/internal/strategy"
	"github.com/candleworks/papertrader/pkg/types"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Backtest every strategy over the same candles",
	Long: `Compare fetches one candle series and runs every registered strategy
against it concurrently, each with its own ledger, then prints a table
ranked by total return.

Example:
  papertrader compare --days 90`,
	RunE: runCompare,
}

var (
	cmpDays     int
	cmpPair     string
	cmpInterval string
)

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().IntVarP(&cmpDays, "days", "d", 90, "days of history to replay")
	compareCmd.Flags().StringVarP(&cmpPair, "pair", "p", "", "trading pair (default from config)")
	compareCmd.Flags().StringVarP(&cmpInterval, "interval", "i", "", "candle interval (default from config)")
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ec := engineConfig(cfg, cmpPair, cmpInterval)

	candles, err := fetchCandles(cmd.Context(), logger, cfg, ec, cmpDays)
	if err != nil {
		return err
	}

	names := strategy.Names()
	results := make([]*types.RunResult, len(names))

	g, ctx := errgroup.WithContext(cmd.Context())
	for i, name := range names {
		g.Go(func() error {
			strat, err := strategy.New(name, cfg.Strategy(name))
			if err != nil {
				return err
			}
			result, err := backtester.NewEngine(logger, ec).Run(ctx, candles, strat)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Metrics.TotalReturn.GreaterThan(results[j].Metrics.TotalReturn)
	})

	fmt.Printf("\n%s %s, %d candles, %d days\n\n", ec.Pair, ec.Interval, len(candles), cmpDays)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSTRATEGY\tRETURN\tWIN RATE\tSHARPE\tMAX DD\tTRADES")
	for i, r := range results {
		m := r.Metrics
		fmt.Fprintf(w, "%d\t%s\t%s%%\t%s%%\t%s\t%s%%\t%d\n",
			i+1,
			r.Strategy,
			m.TotalReturn.Mul(hundred).StringFixed(2),
			m.WinRate.Mul(hundred).StringFixed(1),
			m.SharpeRatio.StringFixed(2),
			m.MaxDrawdown.Mul(hundred).StringFixed(2),
			m.TotalTrades,
		)
	}
	return w.Flush()
}
