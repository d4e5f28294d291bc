package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/internal/config"
	"github.com/candleworks/papertrader/internal/data"
	"github.com/candleworks/papertrader/internal/store"
	"github.com/candleworks/papertrader/internal/strategy"
	"github.com/candleworks/papertrader/pkg/types"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical candles",
	Long: `Backtest fetches Kraken OHLC history for the configured pair, replays
it through the chosen strategy, and prints a performance summary. The
full run (trades, equity curve, metrics) is saved to the run database.

Example:
  papertrader backtest --strategy v3 --days 90 --interval 30m`,
	RunE: runBacktest,
}

var (
	btStrategy    string
	btDays        int
	btPair        string
	btInterval    string
	btOutput      string
	btWalkForward bool
	btTrainDays   int
	btTestDays    int
	btNoSave      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "v1", "strategy name or alias")
	backtestCmd.Flags().IntVarP(&btDays, "days", "d", 90, "days of history to replay")
	backtestCmd.Flags().StringVarP(&btPair, "pair", "p", "", "trading pair (default from config)")
	backtestCmd.Flags().StringVarP(&btInterval, "interval", "i", "", "candle interval (default from config)")
	backtestCmd.Flags().StringVarP(&btOutput, "output", "o", "", "write the full result as JSON to this file")
	backtestCmd.Flags().BoolVar(&btWalkForward, "walk-forward", false, "run walk-forward analysis instead of a single pass")
	backtestCmd.Flags().IntVar(&btTrainDays, "train-days", 0, "walk-forward training window in days (default from config)")
	backtestCmd.Flags().IntVar(&btTestDays, "test-days", 0, "walk-forward test window in days (default from config)")
	backtestCmd.Flags().BoolVar(&btNoSave, "no-save", false, "skip persisting the run to the database")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	ec := engineConfig(cfg, btPair, btInterval)

	candles, err := fetchCandles(ctx, logger, cfg, ec, btDays)
	if err != nil {
		return err
	}

	strat, err := strategy.New(btStrategy, cfg.Strategy(btStrategy))
	if err != nil {
		return err
	}

	if btWalkForward {
		return runWalkForward(ctx, logger, cfg, ec, candles)
	}

	engine := backtester.NewEngine(logger, ec)
	result, err := engine.Run(ctx, candles, strat)
	if err != nil {
		return err
	}

	if !btNoSave {
		if err := saveRun(ctx, logger, cfg, result); err != nil {
			return err
		}
	}
	if btOutput != "" {
		if err := writeResultJSON(btOutput, result); err != nil {
			return err
		}
	}

	printSummary(result)
	return nil
}

// fetchCandles downloads history through the cache and refuses series
// that fail the quality checks.
func fetchCandles(ctx context.Context, logger *zap.Logger, cfg *config.Config, ec *types.EngineConfig, days int) ([]types.Candle, error) {
	source, err := newCandleSource(logger, cfg)
	if err != nil {
		return nil, err
	}

	candles, err := source.Candles(ctx, ec.Pair, ec.Interval, sinceDays(days))
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}

	report := data.NewQualityValidator(logger).Validate(ec.Pair, ec.Interval, candles)
	if !report.Usable {
		return nil, fmt.Errorf("candle data for %s failed quality checks (score %d, %d issues)",
			ec.Pair, report.Score, len(report.Issues))
	}
	return candles, nil
}

func saveRun(ctx context.Context, logger *zap.Logger, cfg *config.Config, result *types.RunResult) error {
	st, err := store.New(logger, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveRun(ctx, result)
}

func runWalkForward(ctx context.Context, logger *zap.Logger, cfg *config.Config, ec *types.EngineConfig, candles []types.Candle) error {
	wfConfig := cfg.Walk
	if btTrainDays > 0 {
		wfConfig.TrainDays = btTrainDays
	}
	if btTestDays > 0 {
		wfConfig.TestDays = btTestDays
	}

	analyzer := backtester.NewWalkForwardAnalyzer(logger, ec)
	result, err := analyzer.Run(ctx, candles, func() backtester.Strategy {
		s, err := strategy.New(btStrategy, cfg.Strategy(btStrategy))
		if err != nil {
			panic(err) // the same name was already resolved once
		}
		return s
	}, wfConfig)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tTEST START\tTEST END\tRETURN\tSHARPE\tTRADES")
	for i, win := range result.Windows {
		m := win.Result.Metrics
		fmt.Fprintf(w, "%d\t%s\t%s\t%s%%\t%s\t%d\n",
			i+1,
			win.TestStart.Format("2006-01-02"),
			win.TestEnd.Format("2006-01-02"),
			m.TotalReturn.Mul(hundred).StringFixed(2),
			m.SharpeRatio.StringFixed(2),
			m.TotalTrades,
		)
	}
	w.Flush()

	fmt.Printf("\nWindows: %d  Avg return: %s%%  Avg Sharpe: %s  Consistency: %s%%\n",
		len(result.Windows),
		result.AvgReturn.Mul(hundred).StringFixed(2),
		result.AvgSharpe.StringFixed(2),
		result.Consistency.Mul(hundred).StringFixed(0),
	)
	return nil
}

func writeResultJSON(path string, result *types.RunResult) error {
	buf, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func printSummary(result *types.RunResult) {
	m := result.Metrics

	fmt.Printf("\n%s on %s %s (%d candles replayed)\n\n",
		result.Strategy, result.Pair, result.Interval, len(result.EquityCurve))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Total return\t%s%%\n", m.TotalReturn.Mul(hundred).StringFixed(2))
	fmt.Fprintf(w, "Final equity\t%s\n", m.FinalEquity.StringFixed(2))
	fmt.Fprintf(w, "Trades\t%d (%d won, %d lost)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%s%%\n", m.WinRate.Mul(hundred).StringFixed(1))
	if m.InfiniteProfitFactor {
		fmt.Fprintf(w, "Profit factor\tinf (gross profit %s)\n", m.ProfitFactor.StringFixed(2))
	} else {
		fmt.Fprintf(w, "Profit factor\t%s\n", m.ProfitFactor.StringFixed(2))
	}
	fmt.Fprintf(w, "Sharpe ratio\t%s\n", m.SharpeRatio.StringFixed(2))
	fmt.Fprintf(w, "Max drawdown\t%s%%\n", m.MaxDrawdown.Mul(hundred).StringFixed(2))
	fmt.Fprintf(w, "Avg win / loss\t%s / %s\n", m.AvgWin.StringFixed(2), m.AvgLoss.StringFixed(2))
	if result.DroppedSignals > 0 {
		fmt.Fprintf(w, "Dropped signals\t%d\n", result.DroppedSignals)
	}
	w.Flush()
}
