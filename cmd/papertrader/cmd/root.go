// Package cmd implements the papertrader command-line interface.
package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/candleworks/papertrader/internal/config"
	"github.com/candleworks/papertrader/internal/data"
	"github.com/candleworks/papertrader/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Backtest and paper-trade candle strategies against Kraken data",
	Long: `Papertrader replays Kraken OHLC candles through trading strategies,
either over a historical range (backtest) or as a live polling loop
(paper trading) with a websocket status API.

Available strategies are listed with "papertrader strategies".`,
	SilenceUsage: true,
}

var (
	cfgFile      string
	logLevelFlag string
)

var hundred = decimal.NewFromInt(100)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and builds the logger. The
// --log-level flag overrides the configured level.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return cfg, setupLogger(level), nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

// newCandleSource builds a cached Kraken client rooted at the
// configured data directory.
func newCandleSource(logger *zap.Logger, cfg *config.Config) (*data.Cache, error) {
	client := data.NewKrakenClient(logger, data.KrakenConfig{})
	return data.NewCache(logger, cfg.DataDir, client)
}

// engineConfig copies the configured engine settings with optional
// pair and interval overrides from command flags.
func engineConfig(cfg *config.Config, pair string, interval string) *types.EngineConfig {
	ec := cfg.Engine
	if pair != "" {
		ec.Pair = pair
	}
	if interval != "" {
		ec.Interval = types.Interval(interval)
	}
	return &ec
}

func sinceDays(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}
