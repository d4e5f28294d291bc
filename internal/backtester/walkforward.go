// Package backtester provides walk-forward analysis for strategy validation.
package backtester

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// WalkForwardAnalyzer splits a candle series into sequential train/test
// windows and backtests each test window with a fresh strategy. Training
// data is replayed through the strategy first so its indicators are warm
// when the test window starts.
type WalkForwardAnalyzer struct {
	logger *zap.Logger
	config *types.EngineConfig
}

// NewWalkForwardAnalyzer creates a new walk-forward analyzer.
func NewWalkForwardAnalyzer(logger *zap.Logger, config *types.EngineConfig) *WalkForwardAnalyzer {
	return &WalkForwardAnalyzer{
		logger: logger,
		config: config,
	}
}

// Run performs walk-forward analysis. newStrategy must return a fresh
// strategy instance per window.
func (wf *WalkForwardAnalyzer) Run(
	ctx context.Context,
	candles []types.Candle,
	newStrategy func() Strategy,
	wfConfig types.WalkForwardConfig,
) (*types.WalkForwardResult, error) {
	if err := ValidateCandles(candles); err != nil {
		return nil, err
	}

	trainDays := wfConfig.TrainDays
	testDays := wfConfig.TestDays
	if trainDays <= 0 {
		trainDays = 30
	}
	if testDays <= 0 {
		testDays = 7
	}

	candlesPerDay := 24 * 60 / wf.config.Interval.Minutes()
	trainLen := trainDays * candlesPerDay
	testLen := testDays * candlesPerDay

	if len(candles) < trainLen+testLen {
		return nil, fmt.Errorf("walk-forward needs at least %d candles, have %d", trainLen+testLen, len(candles))
	}

	wf.logger.Info("Starting walk-forward analysis",
		zap.Int("trainDays", trainDays),
		zap.Int("testDays", testDays),
		zap.Int("candles", len(candles)),
	)

	var windows []types.WalkForwardWindow
	var sumReturn, sumSharpe decimal.Decimal
	profitable := 0

	for start := 0; start+trainLen+testLen <= len(candles); start += testLen {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		train := candles[start : start+trainLen]
		test := candles[start+trainLen : start+trainLen+testLen]

		strat := newStrategy()
		strat.Reset()
		// Warm the strategy on training candles; signals are discarded.
		for _, c := range train {
			if _, err := strat.OnBar(c); err != nil {
				wf.logger.Debug("Strategy error during warmup", zap.Error(err))
			}
		}

		engine := NewEngine(wf.logger, wf.config)
		result, err := engine.runWarm(ctx, test, strat)
		if err != nil {
			return nil, fmt.Errorf("window starting at %s: %w", test[0].Timestamp, err)
		}

		windows = append(windows, types.WalkForwardWindow{
			TrainStart: train[0].Timestamp,
			TrainEnd:   train[len(train)-1].Timestamp,
			TestStart:  test[0].Timestamp,
			TestEnd:    test[len(test)-1].Timestamp,
			Result:     result,
		})

		sumReturn = sumReturn.Add(result.Metrics.TotalReturn)
		sumSharpe = sumSharpe.Add(result.Metrics.SharpeRatio)
		if result.Metrics.TotalReturn.GreaterThan(decimal.Zero) {
			profitable++
		}

		wf.logger.Debug("Window completed",
			zap.Time("testStart", test[0].Timestamp),
			zap.String("return", result.Metrics.TotalReturn.String()),
		)
	}

	n := decimal.NewFromInt(int64(len(windows)))
	result := &types.WalkForwardResult{
		Windows:     windows,
		AvgReturn:   sumReturn.Div(n),
		AvgSharpe:   sumSharpe.Div(n),
		Consistency: decimal.NewFromInt(int64(profitable)).Div(n),
	}

	wf.logger.Info("Walk-forward analysis complete",
		zap.Int("windows", len(windows)),
		zap.String("avgReturn", result.AvgReturn.String()),
		zap.String("consistency", result.Consistency.String()),
	)

	return result, nil
}
