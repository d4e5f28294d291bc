// Package backtester provides performance metrics calculation.
package backtester

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// MetricsCalculator derives performance metrics from a completed run.
// The derivation is pure: same trades and curve, same metrics.
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator.
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Calculate computes all metrics. A run with no trades yields zero trade
// statistics but still reports return, drawdown, and final equity from
// the curve. No field is ever NaN or infinite.
func (mc *MetricsCalculator) Calculate(
	trades []types.Trade,
	equityCurve []types.EquityPoint,
	initialCapital decimal.Decimal,
	interval types.Interval,
) *types.Metrics {
	metrics := &types.Metrics{}

	var winningTrades, losingTrades int
	var totalWins, totalLosses decimal.Decimal

	for _, trade := range trades {
		if trade.PnL.GreaterThan(decimal.Zero) {
			winningTrades++
			totalWins = totalWins.Add(trade.PnL)
		} else if trade.PnL.LessThan(decimal.Zero) {
			losingTrades++
			totalLosses = totalLosses.Add(trade.PnL.Abs())
		}
	}

	metrics.TotalTrades = len(trades)
	metrics.WinningTrades = winningTrades
	metrics.LosingTrades = losingTrades

	if metrics.TotalTrades > 0 {
		metrics.WinRate = decimal.NewFromInt(int64(winningTrades)).Div(decimal.NewFromInt(int64(metrics.TotalTrades)))
	}

	if winningTrades > 0 {
		metrics.AvgWin = totalWins.Div(decimal.NewFromInt(int64(winningTrades)))
	}
	if losingTrades > 0 {
		metrics.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(losingTrades)))
	}

	// Profit factor: gross profit over gross loss. All winners and no
	// losers has no finite value; the flag marks it and ProfitFactor
	// carries the gross profit.
	if !totalLosses.IsZero() {
		metrics.ProfitFactor = totalWins.Div(totalLosses)
	} else if winningTrades > 0 {
		metrics.ProfitFactor = totalWins
		metrics.InfiniteProfitFactor = true
	}

	if len(equityCurve) > 0 {
		finalEquity := equityCurve[len(equityCurve)-1].Equity
		metrics.FinalEquity = finalEquity
		if !initialCapital.IsZero() {
			metrics.TotalReturn = finalEquity.Sub(initialCapital).Div(initialCapital)
		}
	}

	// Per-candle returns drive the Sharpe ratio, annualized by how many
	// candles of this interval fit in a year.
	returns := mc.calculateReturns(equityCurve)
	if len(returns) > 1 {
		avgReturn := mc.mean(returns)
		stdDev := mc.stdDev(returns)
		if stdDev > 0 {
			sharpe := avgReturn / stdDev * math.Sqrt(interval.PeriodsPerYear())
			metrics.SharpeRatio = decimal.NewFromFloat(sharpe)
		}
	}

	metrics.MaxDrawdown = mc.calculateMaxDrawdown(equityCurve)

	return metrics
}

// calculateReturns calculates per-candle returns from the equity curve.
func (mc *MetricsCalculator) calculateReturns(equityCurve []types.EquityPoint) []float64 {
	if len(equityCurve) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equityCurve)-1)

	for i := 1; i < len(equityCurve); i++ {
		prevEquity := equityCurve[i-1].Equity
		currEquity := equityCurve[i].Equity

		if prevEquity.IsZero() {
			continue
		}

		ret := currEquity.Sub(prevEquity).Div(prevEquity)
		retFloat, _ := ret.Float64()
		returns = append(returns, retFloat)
	}

	return returns
}

// calculateMaxDrawdown calculates maximum peak-to-trough drawdown.
func (mc *MetricsCalculator) calculateMaxDrawdown(equityCurve []types.EquityPoint) decimal.Decimal {
	if len(equityCurve) == 0 {
		return decimal.Zero
	}

	var maxDD decimal.Decimal
	peak := equityCurve[0].Equity

	for _, point := range equityCurve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}

		if !peak.IsZero() {
			dd := peak.Sub(point.Equity).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// mean calculates arithmetic mean
func (mc *MetricsCalculator) mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev calculates sample standard deviation
func (mc *MetricsCalculator) stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := mc.mean(values)
	var sumSquares float64

	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}

	return math.Sqrt(sumSquares / float64(len(values)-1))
}
