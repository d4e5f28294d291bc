// Package backtester_test provides tests for walk-forward analysis.
package backtester_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

func TestWalkForwardWindows(t *testing.T) {
	// Four days of 30m candles: one train day plus one test day per
	// window, stepped by the test span, gives three windows.
	var candles []types.Candle
	for i := 0; i < 4*48; i++ {
		base := 100 + float64(i%7)
		candles = append(candles, candle(i, base, base+2, base-2, base+1))
	}

	wf := backtester.NewWalkForwardAnalyzer(zap.NewNop(), testConfig())
	result, err := wf.Run(context.Background(), candles, func() backtester.Strategy {
		return &scriptStrategy{}
	}, types.WalkForwardConfig{TrainDays: 1, TestDays: 1})
	if err != nil {
		t.Fatalf("Walk-forward failed: %v", err)
	}

	if len(result.Windows) != 3 {
		t.Fatalf("Expected 3 windows, got %d", len(result.Windows))
	}

	for i, w := range result.Windows {
		if !w.TestStart.After(w.TrainEnd) {
			t.Errorf("Window %d test must start after training ends", i)
		}
		if w.Result == nil || len(w.Result.EquityCurve) != 48 {
			t.Errorf("Window %d should cover one test day of candles", i)
		}
	}

	// A strategy that never signals is flat in every window.
	if result.AvgReturn.Sign() != 0 {
		t.Errorf("Flat strategy should have zero average return: %s", result.AvgReturn)
	}
	if result.Consistency.Sign() != 0 {
		t.Errorf("No window is profitable: %s", result.Consistency)
	}
}

func TestWalkForwardTooFewCandles(t *testing.T) {
	candles := []types.Candle{candle(0, 99, 101, 98.5, 100)}

	wf := backtester.NewWalkForwardAnalyzer(zap.NewNop(), testConfig())
	_, err := wf.Run(context.Background(), candles, func() backtester.Strategy {
		return &scriptStrategy{}
	}, types.WalkForwardConfig{TrainDays: 1, TestDays: 1})
	if err == nil {
		t.Fatal("Too few candles should fail")
	}
}
