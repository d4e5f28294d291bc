package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/api"
	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/internal/data"
	"github.com/candleworks/papertrader/internal/store"
	"github.com/candleworks/papertrader/internal/strategy"
)

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Run the live paper-trading loop",
	Long: `Paper polls Kraken for closed candles and feeds them to the chosen
strategy, tracking a simulated ledger. Progress is checkpointed after
every candle so a restart resumes where it left off. A status API with
a websocket stream runs alongside the loop.

Example:
  papertrader paper --strategy v1`,
	RunE: runPaper,
}

var (
	paperStrategy string
	paperPair     string
	paperInterval string
)

func init() {
	rootCmd.AddCommand(paperCmd)

	paperCmd.Flags().StringVarP(&paperStrategy, "strategy", "s", "v1", "strategy name or alias")
	paperCmd.Flags().StringVarP(&paperPair, "pair", "p", "", "trading pair (default from config)")
	paperCmd.Flags().StringVarP(&paperInterval, "interval", "i", "", "candle interval (default from config)")
}

func runPaper(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ec := engineConfig(cfg, paperPair, paperInterval)

	strat, err := strategy.New(paperStrategy, cfg.Strategy(paperStrategy))
	if err != nil {
		return err
	}

	st, err := store.New(logger, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	source := data.NewKrakenClient(logger, data.KrakenConfig{})
	trader := backtester.NewPaperTrader(logger, ec, strat, source, st, cfg.Paper.PollInterval)

	server := api.NewServer(logger, &cfg.Server, trader)
	trader.SetHooks(server.OnTrade, server.OnEquity, server.OnDroppedSignal)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	err = trader.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := server.Stop(shutdownCtx); stopErr != nil {
		logger.Error("Error during server shutdown", zap.Error(stopErr))
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
