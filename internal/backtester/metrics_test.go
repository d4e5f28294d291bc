// Package backtester_test provides tests for metrics calculation.
package backtester_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

func equityCurve(values ...int64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(values))
	for i, v := range values {
		points[i] = types.EquityPoint{
			Timestamp: testStart.Add(time.Duration(i) * 30 * time.Minute),
			Equity:    decimal.NewFromInt(v),
		}
	}
	return points
}

func TestMetricsBasic(t *testing.T) {
	calc := backtester.NewMetricsCalculator()

	trades := []types.Trade{
		{PnL: decimal.NewFromInt(100)},
		{PnL: decimal.NewFromInt(50)},
		{PnL: decimal.NewFromInt(-30)},
		{PnL: decimal.NewFromInt(80)},
		{PnL: decimal.NewFromInt(-20)},
	}
	curve := equityCurve(10000, 10100, 10150, 10120, 10200, 10180)

	metrics := calc.Calculate(trades, curve, decimal.NewFromInt(10000), types.Interval30m)

	if metrics.TotalTrades != 5 || metrics.WinningTrades != 3 || metrics.LosingTrades != 2 {
		t.Errorf("Trade counts incorrect: %d/%d/%d",
			metrics.TotalTrades, metrics.WinningTrades, metrics.LosingTrades)
	}

	expectedWinRate := decimal.NewFromFloat(0.6)
	if !metrics.WinRate.Equal(expectedWinRate) {
		t.Errorf("Win rate incorrect: expected %s, got %s", expectedWinRate, metrics.WinRate)
	}

	// Gross profit 230 over gross loss 50.
	expectedPF := decimal.NewFromFloat(4.6)
	if !metrics.ProfitFactor.Equal(expectedPF) {
		t.Errorf("Profit factor incorrect: expected %s, got %s", expectedPF, metrics.ProfitFactor)
	}
	if metrics.InfiniteProfitFactor {
		t.Error("Profit factor is finite here")
	}

	expectedReturn := decimal.NewFromFloat(0.018)
	if !metrics.TotalReturn.Equal(expectedReturn) {
		t.Errorf("Total return incorrect: expected %s, got %s", expectedReturn, metrics.TotalReturn)
	}

	if !metrics.AvgWin.Sub(decimal.NewFromFloat(76.67)).Abs().LessThan(decimal.NewFromFloat(0.01)) {
		t.Errorf("Avg win incorrect: %s", metrics.AvgWin)
	}
	if !metrics.AvgLoss.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Avg loss incorrect: %s", metrics.AvgLoss)
	}

	if metrics.SharpeRatio.Sign() <= 0 {
		t.Errorf("Rising curve should have positive Sharpe: %s", metrics.SharpeRatio)
	}
}

func TestMetricsNoTrades(t *testing.T) {
	calc := backtester.NewMetricsCalculator()
	curve := equityCurve(10000, 10000, 10000)

	metrics := calc.Calculate(nil, curve, decimal.NewFromInt(10000), types.Interval30m)

	if metrics.WinRate.Sign() != 0 {
		t.Errorf("Win rate with no trades should be zero: %s", metrics.WinRate)
	}
	if metrics.ProfitFactor.Sign() != 0 || metrics.InfiniteProfitFactor {
		t.Errorf("Profit factor with no trades should be zero: %s", metrics.ProfitFactor)
	}
	if metrics.TotalReturn.Sign() != 0 {
		t.Errorf("Flat curve should return zero: %s", metrics.TotalReturn)
	}
	// Constant equity has zero variance, so Sharpe is defined to zero.
	if metrics.SharpeRatio.Sign() != 0 {
		t.Errorf("Zero-variance Sharpe should be zero: %s", metrics.SharpeRatio)
	}
	if !metrics.FinalEquity.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Final equity incorrect: %s", metrics.FinalEquity)
	}
}

func TestMetricsAllWinners(t *testing.T) {
	calc := backtester.NewMetricsCalculator()

	trades := []types.Trade{
		{PnL: decimal.NewFromInt(100)},
		{PnL: decimal.NewFromInt(40)},
	}
	curve := equityCurve(10000, 10100, 10140)

	metrics := calc.Calculate(trades, curve, decimal.NewFromInt(10000), types.Interval30m)

	if !metrics.InfiniteProfitFactor {
		t.Error("All winners should flag an infinite profit factor")
	}
	if !metrics.ProfitFactor.Equal(decimal.NewFromInt(140)) {
		t.Errorf("Profit factor should carry gross profit: %s", metrics.ProfitFactor)
	}
	if !metrics.WinRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Win rate should be 1: %s", metrics.WinRate)
	}
}

func TestMetricsMaxDrawdown(t *testing.T) {
	calc := backtester.NewMetricsCalculator()

	// Peak 12000, trough 9000: drawdown 25%.
	curve := equityCurve(10000, 12000, 9000, 11000)
	metrics := calc.Calculate(nil, curve, decimal.NewFromInt(10000), types.Interval30m)

	expected := decimal.NewFromFloat(0.25)
	if !metrics.MaxDrawdown.Equal(expected) {
		t.Errorf("Max drawdown incorrect: expected %s, got %s", expected, metrics.MaxDrawdown)
	}
}
