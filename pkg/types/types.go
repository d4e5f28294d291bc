// Package types provides shared type definitions for the paper trader.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of a signal or position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// ExitReason records why a position was closed
type ExitReason string

const (
	ExitReasonStop           ExitReason = "stop"
	ExitReasonTarget         ExitReason = "target"
	ExitReasonSignalReversal ExitReason = "signal_reversal"
	ExitReasonEndOfData      ExitReason = "end_of_data"
)

// Interval represents candle timeframes
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Minutes returns the candle duration in minutes, or 0 for an unknown interval.
func (i Interval) Minutes() int {
	switch i {
	case Interval1m:
		return 1
	case Interval5m:
		return 5
	case Interval15m:
		return 15
	case Interval30m:
		return 30
	case Interval1h:
		return 60
	case Interval4h:
		return 240
	case Interval1d:
		return 1440
	}
	return 0
}

// PeriodsPerYear returns how many candles of this interval fit in a year.
// Used to annualize per-candle return statistics.
func (i Interval) PeriodsPerYear() float64 {
	m := i.Minutes()
	if m == 0 {
		return 0
	}
	return 365 * 24 * 60 / float64(m)
}

// Candle represents a single OHLCV candlestick
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Signal represents a strategy's intent to open a position
type Signal struct {
	Side        Side            `json:"side"`
	Confidence  decimal.Decimal `json:"confidence"`
	Size        decimal.Decimal `json:"size"`
	StopLoss    decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit  decimal.Decimal `json:"takeProfit,omitempty"`
	Reason      string          `json:"reason"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// Position represents the single open position of a ledger
type Position struct {
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	EntryNotional decimal.Decimal `json:"entryNotional"`
	StopLoss      decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit    decimal.Decimal `json:"takeProfit,omitempty"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// UnrealizedPnL returns the open profit at the given mark price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// Trade represents a completed round trip. Trades are append-only.
type Trade struct {
	ID         string          `json:"id"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPct     decimal.Decimal `json:"pnlPct"`
	RMultiple  decimal.Decimal `json:"rMultiple"`
	Commission decimal.Decimal `json:"commission"`
	ExitReason ExitReason      `json:"exitReason"`
	Reason     string          `json:"reason,omitempty"`
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// Metrics represents performance metrics derived from a completed run
type Metrics struct {
	TotalReturn  decimal.Decimal `json:"totalReturn"`
	WinRate      decimal.Decimal `json:"winRate"`
	ProfitFactor decimal.Decimal `json:"profitFactor"`

	// InfiniteProfitFactor is set when there are winners but no losers;
	// ProfitFactor then holds the gross profit.
	InfiniteProfitFactor bool `json:"infiniteProfitFactor,omitempty"`

	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`
	SharpeRatio   decimal.Decimal `json:"sharpeRatio"`
	AvgWin        decimal.Decimal `json:"avgWin"`
	AvgLoss       decimal.Decimal `json:"avgLoss"`
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	FinalEquity   decimal.Decimal `json:"finalEquity"`
}

// RunResult represents the complete output of a backtest or paper run
type RunResult struct {
	ID          string        `json:"id"`
	Strategy    string        `json:"strategy"`
	Pair        string        `json:"pair"`
	Interval    Interval      `json:"interval"`
	Config      *EngineConfig `json:"config"`
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equityCurve"`
	Metrics     *Metrics      `json:"metrics"`
	// DroppedSignals counts malformed strategy signals that were
	// logged and skipped rather than executed.
	DroppedSignals int       `json:"droppedSignals"`
	StartedAt      time.Time `json:"startedAt"`
	CompletedAt    time.Time `json:"completedAt"`
}

// WalkForwardWindow represents a single walk-forward test window
type WalkForwardWindow struct {
	TrainStart time.Time `json:"trainStart"`
	TrainEnd   time.Time `json:"trainEnd"`
	TestStart  time.Time `json:"testStart"`
	TestEnd    time.Time `json:"testEnd"`
	Result     *RunResult `json:"result"`
}

// WalkForwardResult represents walk-forward analysis results
type WalkForwardResult struct {
	Windows     []WalkForwardWindow `json:"windows"`
	AvgReturn   decimal.Decimal     `json:"avgReturn"`
	AvgSharpe   decimal.Decimal     `json:"avgSharpe"`
	Consistency decimal.Decimal     `json:"consistency"` // fraction of profitable windows
}
