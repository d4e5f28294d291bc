// Package backtester provides the core candle-replay backtesting engine.
package backtester

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// Strategy is the contract the engine drives. OnBar is called once per
// candle in order; a nil signal means no action. Implementations manage
// their own warmup and must not read the wall clock.
type Strategy interface {
	Name() string
	WarmupBars() int
	MinConfidence() decimal.Decimal
	MaxTradesPerDay() int
	OnBar(candle types.Candle) (*types.Signal, error)
	Reset()
}

var one = decimal.NewFromInt(1)

// Engine replays a candle series through a strategy against a simulated
// ledger. Engines are cheap; create one per run.
type Engine struct {
	logger *zap.Logger
	config *types.EngineConfig

	// OnTrade, OnEquity and OnDropped, when set, are invoked
	// synchronously as the replay produces trades, equity points and
	// dropped signals. Used by the paper loop to feed the status API.
	OnTrade   func(types.Trade)
	OnEquity  func(types.EquityPoint)
	OnDropped func()
}

// NewEngine creates a new backtesting engine.
func NewEngine(logger *zap.Logger, config *types.EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		config: config,
	}
}

// Run replays the candle series through the strategy and returns the
// completed result. The input series is validated up front; a malformed
// series fails the run before any candle is processed.
func (e *Engine) Run(ctx context.Context, candles []types.Candle, strat Strategy) (*types.RunResult, error) {
	strat.Reset()
	return e.runWarm(ctx, candles, strat)
}

// runWarm replays without resetting the strategy first, so indicators
// seeded on earlier candles carry over. Walk-forward analysis uses this
// after warming a strategy on its training window.
func (e *Engine) runWarm(ctx context.Context, candles []types.Candle, strat Strategy) (*types.RunResult, error) {
	if err := ValidateConfig(e.config); err != nil {
		return nil, err
	}
	if err := ValidateCandles(candles); err != nil {
		return nil, err
	}

	startTime := time.Now()

	sess := newSession(e.logger, e.config, strat)
	sess.onTrade = e.OnTrade
	sess.onEquity = e.OnEquity
	sess.onDropped = e.OnDropped

	e.logger.Info("Starting backtest",
		zap.String("strategy", strat.Name()),
		zap.Int("candles", len(candles)),
		zap.String("initialCapital", e.config.InitialCapital.String()),
	)

	for i := range candles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := sess.step(candles[i], i == len(candles)-1); err != nil {
			return nil, err
		}
	}

	if err := sess.finish(candles[len(candles)-1]); err != nil {
		return nil, err
	}

	trades := sess.ledger.Trades()
	calc := NewMetricsCalculator()
	metrics := calc.Calculate(trades, sess.equityCurve, e.config.InitialCapital, e.config.Interval)

	result := &types.RunResult{
		ID:             uuid.New().String(),
		Strategy:       strat.Name(),
		Pair:           e.config.Pair,
		Interval:       e.config.Interval,
		Config:         e.config,
		Trades:         trades,
		EquityCurve:    sess.equityCurve,
		Metrics:        metrics,
		DroppedSignals: sess.droppedSignals,
		StartedAt:      startTime,
		CompletedAt:    time.Now(),
	}

	e.logger.Info("Backtest completed",
		zap.String("strategy", strat.Name()),
		zap.Int("trades", len(trades)),
		zap.String("totalReturn", metrics.TotalReturn.String()),
		zap.Int("droppedSignals", sess.droppedSignals),
	)

	return result, nil
}

// session holds the mutable state of one replay. The paper-trading loop
// drives a session candle by candle; Run drives one over a full series.
type session struct {
	logger *zap.Logger
	config *types.EngineConfig
	strat  Strategy
	ledger *Ledger

	equityCurve    []types.EquityPoint
	droppedSignals int

	// daily entry cap bookkeeping, keyed by the candle's UTC date
	day        string
	opensToday int

	onTrade   func(types.Trade)
	onEquity  func(types.EquityPoint)
	onDropped func()
}

func newSession(logger *zap.Logger, config *types.EngineConfig, strat Strategy) *session {
	return &session{
		logger:      logger,
		config:      config,
		strat:       strat,
		ledger:      NewLedger(config.InitialCapital, config.CommissionRate),
		equityCurve: make([]types.EquityPoint, 0),
	}
}

// step processes a single candle: protective exits first, then the
// strategy, then the equity point. Exactly one equity point is appended
// per candle. final suppresses new entries, since a position opened on
// the last candle would be force-closed at the same close and produce a
// trade whose exit does not follow its entry.
func (s *session) step(candle types.Candle, final bool) error {
	openAtStart := s.ledger.Position() != nil

	if openAtStart {
		if err := s.checkProtectiveExits(candle); err != nil {
			return err
		}
	}

	signal, err := s.strat.OnBar(candle)
	if err != nil {
		s.dropSignal()
		s.logger.Warn("Strategy error, treating as no signal",
			zap.String("strategy", s.strat.Name()),
			zap.Time("candle", candle.Timestamp),
			zap.Error(err),
		)
		signal = nil
	}

	if signal != nil {
		if verr := s.validateSignal(signal); verr != nil {
			s.dropSignal()
			s.logger.Warn("Dropping malformed signal", zap.Error(verr))
			signal = nil
		}
	}

	if signal != nil && signal.Confidence.GreaterThanOrEqual(s.strat.MinConfidence()) {
		if pos := s.ledger.Position(); pos != nil {
			// An opposite signal closes the position. No re-entry on
			// the same candle.
			if signal.Side == pos.Side.Opposite() {
				fill := s.applySlippage(candle.Close, pos.Side.Opposite())
				if err := s.closePosition(fill, candle.Timestamp, types.ExitReasonSignalReversal, signal.Reason); err != nil {
					return err
				}
			}
		} else if !openAtStart && !final {
			if err := s.tryOpen(signal, candle); err != nil {
				return err
			}
		}
	}

	s.recordEquity(candle)
	return nil
}

// finish force-closes any open position at the last close.
func (s *session) finish(last types.Candle) error {
	pos := s.ledger.Position()
	if pos == nil {
		return nil
	}
	if err := s.closePosition(last.Close, last.Timestamp, types.ExitReasonEndOfData, ""); err != nil {
		return err
	}
	// Refresh the final equity point so the curve ends on settled cash.
	if n := len(s.equityCurve); n > 0 && s.equityCurve[n-1].Timestamp.Equal(last.Timestamp) {
		s.equityCurve = s.equityCurve[:n-1]
	}
	s.recordEquity(last)
	return nil
}

// checkProtectiveExits fills stop and target breaches against the candle
// range. When both levels are inside the range the stop wins. Protective
// fills happen at the exact level, without slippage.
func (s *session) checkProtectiveExits(candle types.Candle) error {
	pos := s.ledger.Position()
	if pos == nil {
		return nil
	}

	var stopHit, targetHit bool
	if pos.Side == types.SideLong {
		stopHit = !pos.StopLoss.IsZero() && candle.Low.LessThanOrEqual(pos.StopLoss)
		targetHit = !pos.TakeProfit.IsZero() && candle.High.GreaterThanOrEqual(pos.TakeProfit)
	} else {
		stopHit = !pos.StopLoss.IsZero() && candle.High.GreaterThanOrEqual(pos.StopLoss)
		targetHit = !pos.TakeProfit.IsZero() && candle.Low.LessThanOrEqual(pos.TakeProfit)
	}

	switch {
	case stopHit:
		return s.closePosition(pos.StopLoss, candle.Timestamp, types.ExitReasonStop, "")
	case targetHit:
		return s.closePosition(pos.TakeProfit, candle.Timestamp, types.ExitReasonTarget, "")
	}
	return nil
}

// tryOpen opens a position from a validated signal, subject to the daily
// entry cap. Entries fill at the close adjusted by slippage and are sized
// as a fraction of current equity.
func (s *session) tryOpen(signal *types.Signal, candle types.Candle) error {
	limit := s.strat.MaxTradesPerDay()
	if limit == 0 {
		limit = s.config.MaxTradesPerDay
	}
	day := candle.Timestamp.UTC().Format("2006-01-02")
	if day != s.day {
		s.day = day
		s.opensToday = 0
	}
	if limit > 0 && s.opensToday >= limit {
		s.logger.Debug("Daily trade cap reached, skipping signal",
			zap.String("day", day),
			zap.Int("limit", limit),
		)
		return nil
	}

	fill := s.applySlippage(candle.Close, signal.Side)

	size := signal.Size
	if size.IsZero() {
		size = s.config.PositionSize
	}
	notional := s.ledger.Equity(candle.Close).Mul(size)
	if notional.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	if err := s.ledger.Open(signal.Side, fill, notional, signal.StopLoss, signal.TakeProfit, candle.Timestamp); err != nil {
		return err
	}
	s.opensToday++

	s.logger.Debug("Opened position",
		zap.String("side", string(signal.Side)),
		zap.String("fill", fill.String()),
		zap.String("notional", notional.String()),
		zap.String("reason", signal.Reason),
	)
	return nil
}

func (s *session) closePosition(fill decimal.Decimal, at time.Time, reason types.ExitReason, note string) error {
	trade, err := s.ledger.Close(fill, at, reason, note)
	if err != nil {
		return err
	}
	s.logger.Debug("Closed position",
		zap.String("exitReason", string(reason)),
		zap.String("fill", fill.String()),
		zap.String("pnl", trade.PnL.String()),
	)
	if s.onTrade != nil {
		s.onTrade(trade)
	}
	return nil
}

func (s *session) dropSignal() {
	s.droppedSignals++
	if s.onDropped != nil {
		s.onDropped()
	}
}

func (s *session) recordEquity(candle types.Candle) {
	equity, drawdown := s.ledger.Mark(candle.Close)
	point := types.EquityPoint{
		Timestamp: candle.Timestamp,
		Equity:    equity,
		Cash:      s.ledger.Cash(),
		Drawdown:  drawdown,
	}
	s.equityCurve = append(s.equityCurve, point)
	if s.onEquity != nil {
		s.onEquity(point)
	}
}

// applySlippage worsens the fill in the direction of the taker: entries
// pay up, exits give back. side is the side of the executed leg.
func (s *session) applySlippage(price decimal.Decimal, side types.Side) decimal.Decimal {
	if side == types.SideLong {
		return price.Mul(one.Add(s.config.SlippageRate))
	}
	return price.Mul(one.Sub(s.config.SlippageRate))
}

// validateSignal rejects signals that violate the contract. Rejected
// signals are dropped and counted, never executed.
func (s *session) validateSignal(signal *types.Signal) error {
	if signal.Side != types.SideLong && signal.Side != types.SideShort {
		return &SignalError{Strategy: s.strat.Name(), Msg: "invalid side " + string(signal.Side)}
	}
	if signal.Confidence.LessThan(decimal.Zero) || signal.Confidence.GreaterThan(one) {
		return &SignalError{Strategy: s.strat.Name(), Msg: "confidence outside [0,1]"}
	}
	if signal.Size.LessThan(decimal.Zero) || signal.Size.GreaterThan(one) {
		return &SignalError{Strategy: s.strat.Name(), Msg: "size outside [0,1]"}
	}
	if signal.StopLoss.LessThan(decimal.Zero) || signal.TakeProfit.LessThan(decimal.Zero) {
		return &SignalError{Strategy: s.strat.Name(), Msg: "negative protective level"}
	}
	return nil
}

// ValidateConfig checks an engine configuration. Returned errors are
// *ConfigError values naming the offending field.
func ValidateConfig(config *types.EngineConfig) error {
	if config == nil {
		return &ConfigError{Field: "config", Msg: "missing"}
	}
	if config.InitialCapital.LessThanOrEqual(decimal.Zero) {
		return &ConfigError{Field: "initialCapital", Msg: "must be positive"}
	}
	if config.CommissionRate.LessThan(decimal.Zero) || config.CommissionRate.GreaterThanOrEqual(one) {
		return &ConfigError{Field: "commissionRate", Msg: "must be in [0,1)"}
	}
	if config.SlippageRate.LessThan(decimal.Zero) || config.SlippageRate.GreaterThanOrEqual(one) {
		return &ConfigError{Field: "slippageRate", Msg: "must be in [0,1)"}
	}
	if config.PositionSize.LessThanOrEqual(decimal.Zero) || config.PositionSize.GreaterThan(one) {
		return &ConfigError{Field: "positionSize", Msg: "must be in (0,1]"}
	}
	if config.MaxTradesPerDay < 0 {
		return &ConfigError{Field: "maxTradesPerDay", Msg: "must not be negative"}
	}
	if config.Interval.Minutes() == 0 {
		return &ConfigError{Field: "interval", Msg: "unknown interval " + string(config.Interval)}
	}
	return nil
}

// ValidateCandles checks a candle series for replay: non-empty, strictly
// increasing timestamps, and internally consistent OHLC ranges.
func ValidateCandles(candles []types.Candle) error {
	if len(candles) == 0 {
		return &DataError{Index: 0, Msg: "empty candle series"}
	}
	for i, c := range candles {
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return &DataError{Index: i, Msg: "timestamp not increasing"}
		}
		if c.High.LessThan(c.Low) {
			return &DataError{Index: i, Msg: "high below low"}
		}
		if c.Open.GreaterThan(c.High) || c.Open.LessThan(c.Low) {
			return &DataError{Index: i, Msg: "open outside high/low range"}
		}
		if c.Close.GreaterThan(c.High) || c.Close.LessThan(c.Low) {
			return &DataError{Index: i, Msg: "close outside high/low range"}
		}
		if c.Low.LessThanOrEqual(decimal.Zero) {
			return &DataError{Index: i, Msg: "non-positive price"}
		}
		if c.Volume.LessThan(decimal.Zero) {
			return &DataError{Index: i, Msg: "negative volume"}
		}
	}
	return nil
}

// IsFatal reports whether an error from a run indicates a bug or bad
// input rather than an environmental failure.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	var dataErr *DataError
	return errors.Is(err, ErrPositionOpen) ||
		errors.Is(err, ErrNoOpenPosition) ||
		errors.As(err, &cfgErr) ||
		errors.As(err, &dataErr)
}
