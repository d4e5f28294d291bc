// Package backtester provides the paper-trading loop.
package backtester

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// CandleSource feeds the paper-trading loop with live candles.
type CandleSource interface {
	// Candles returns historical candles from since onward, oldest first.
	Candles(ctx context.Context, pair string, interval types.Interval, since time.Time) ([]types.Candle, error)
	// Latest returns the most recent closed candle.
	Latest(ctx context.Context, pair string, interval types.Interval) (types.Candle, error)
}

// Checkpoint is the persisted state of a paper-trading run. Saved after
// every processed candle so a restart resumes where it left off.
type Checkpoint struct {
	RunID      string       `json:"runId"`
	Ledger     *LedgerState `json:"ledger"`
	LastCandle time.Time    `json:"lastCandle"`
	Day        string       `json:"day"`
	OpensToday int          `json:"opensToday"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// CheckpointStore persists paper-trading checkpoints.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
	// LoadCheckpoint returns nil with no error when no checkpoint exists.
	LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)
}

// PaperStatus is a point-in-time view of a running paper trader.
type PaperStatus struct {
	RunID      string          `json:"runId"`
	Strategy   string          `json:"strategy"`
	Pair       string          `json:"pair"`
	Interval   types.Interval  `json:"interval"`
	Cash       decimal.Decimal `json:"cash"`
	Equity     decimal.Decimal `json:"equity"`
	Position   *types.Position `json:"position,omitempty"`
	Trades     int             `json:"trades"`
	LastCandle time.Time       `json:"lastCandle"`
}

// PaperTrader drives a session from polled live candles instead of a
// replayed series. One candle is processed per wake-up; duplicates are
// skipped. Cancellation finishes the in-flight candle before returning.
type PaperTrader struct {
	logger *zap.Logger
	config *types.EngineConfig
	source CandleSource
	store  CheckpointStore

	sess       *session
	runID      string
	lastCandle time.Time
	lastClose  decimal.Decimal
	poll       time.Duration
}

// NewPaperTrader creates a paper trader. store may be nil to disable
// checkpointing.
func NewPaperTrader(
	logger *zap.Logger,
	config *types.EngineConfig,
	strat Strategy,
	source CandleSource,
	store CheckpointStore,
	poll time.Duration,
) *PaperTrader {
	if poll <= 0 {
		poll = time.Minute
	}
	return &PaperTrader{
		logger: logger,
		config: config,
		source: source,
		store:  store,
		sess:   newSession(logger, config, strat),
		runID:  fmt.Sprintf("paper-%s-%s-%s", strat.Name(), config.Pair, config.Interval),
		poll:   poll,
	}
}

// SetHooks installs trade, equity and dropped-signal callbacks. Must be
// called before Run.
func (pt *PaperTrader) SetHooks(onTrade func(types.Trade), onEquity func(types.EquityPoint), onDropped func()) {
	pt.sess.onTrade = onTrade
	pt.sess.onEquity = onEquity
	pt.sess.onDropped = onDropped
}

// RunID returns the deterministic checkpoint key for this trader.
func (pt *PaperTrader) RunID() string { return pt.runID }

// Run polls for candles until the context is cancelled. On start it
// restores any saved checkpoint and replays recent history through the
// strategy so its indicators are warm.
func (pt *PaperTrader) Run(ctx context.Context) error {
	if err := ValidateConfig(pt.config); err != nil {
		return err
	}

	if err := pt.restore(ctx); err != nil {
		return err
	}
	if err := pt.warmup(ctx); err != nil {
		return err
	}

	pt.logger.Info("Paper trading started",
		zap.String("runId", pt.runID),
		zap.Duration("poll", pt.poll),
	)

	ticker := time.NewTicker(pt.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pt.logger.Info("Paper trading stopped",
				zap.String("runId", pt.runID),
				zap.Int("trades", len(pt.sess.ledger.Trades())),
			)
			return ctx.Err()
		case <-ticker.C:
			if err := pt.pollOnce(ctx); err != nil {
				if IsFatal(err) {
					return err
				}
				// Transient fetch or store failures retry on the next tick.
				pt.logger.Warn("Poll failed", zap.Error(err))
			}
		}
	}
}

// pollOnce fetches the latest candle and, if it is new, runs one engine
// step and checkpoints the result.
func (pt *PaperTrader) pollOnce(ctx context.Context) error {
	candle, err := pt.source.Latest(ctx, pt.config.Pair, pt.config.Interval)
	if err != nil {
		return fmt.Errorf("fetch latest candle: %w", err)
	}

	if !candle.Timestamp.After(pt.lastCandle) {
		return nil
	}

	if err := pt.sess.step(candle, false); err != nil {
		return err
	}
	pt.lastCandle = candle.Timestamp
	pt.lastClose = candle.Close

	if pt.store != nil {
		cp := &Checkpoint{
			RunID:      pt.runID,
			Ledger:     pt.sess.ledger.Snapshot(),
			LastCandle: pt.lastCandle,
			Day:        pt.sess.day,
			OpensToday: pt.sess.opensToday,
			UpdatedAt:  candle.Timestamp,
		}
		if err := pt.store.SaveCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

// Status returns a snapshot for the status API.
func (pt *PaperTrader) Status() *PaperStatus {
	equity := pt.sess.ledger.Cash()
	if !pt.lastClose.IsZero() {
		equity = pt.sess.ledger.Equity(pt.lastClose)
	}
	return &PaperStatus{
		RunID:      pt.runID,
		Strategy:   pt.sess.strat.Name(),
		Pair:       pt.config.Pair,
		Interval:   pt.config.Interval,
		Cash:       pt.sess.ledger.Cash(),
		Equity:     equity,
		Position:   pt.sess.ledger.Position(),
		Trades:     len(pt.sess.ledger.Trades()),
		LastCandle: pt.lastCandle,
	}
}

// Trades returns the trade log so far.
func (pt *PaperTrader) Trades() []types.Trade {
	return pt.sess.ledger.Trades()
}

// EquityCurve returns the equity points recorded so far.
func (pt *PaperTrader) EquityCurve() []types.EquityPoint {
	out := make([]types.EquityPoint, len(pt.sess.equityCurve))
	copy(out, pt.sess.equityCurve)
	return out
}

// restore loads the saved checkpoint, if any.
func (pt *PaperTrader) restore(ctx context.Context) error {
	if pt.store == nil {
		return nil
	}
	cp, err := pt.store.LoadCheckpoint(ctx, pt.runID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return nil
	}

	pt.sess.ledger.Restore(cp.Ledger)
	pt.sess.day = cp.Day
	pt.sess.opensToday = cp.OpensToday
	pt.lastCandle = cp.LastCandle

	pt.logger.Info("Resumed from checkpoint",
		zap.String("runId", pt.runID),
		zap.Time("lastCandle", cp.LastCandle),
		zap.Int("trades", len(cp.Ledger.Trades)),
	)
	return nil
}

// warmup replays recent history through the strategy so indicator
// buffers are populated before live candles arrive. Candles at or before
// the checkpointed timestamp only feed indicators, never the ledger.
func (pt *PaperTrader) warmup(ctx context.Context) error {
	bars := pt.sess.strat.WarmupBars()
	if bars <= 0 {
		return nil
	}

	span := time.Duration(bars+1) * time.Duration(pt.config.Interval.Minutes()) * time.Minute
	since := time.Now().Add(-span)
	candles, err := pt.source.Candles(ctx, pt.config.Pair, pt.config.Interval, since)
	if err != nil {
		return fmt.Errorf("fetch warmup candles: %w", err)
	}

	for _, c := range candles {
		if _, err := pt.sess.strat.OnBar(c); err != nil {
			pt.logger.Debug("Strategy error during warmup", zap.Error(err))
		}
		if c.Timestamp.After(pt.lastCandle) {
			pt.lastCandle = c.Timestamp
			pt.lastClose = c.Close
		}
	}

	pt.logger.Info("Strategy warmed up", zap.Int("candles", len(candles)))
	return nil
}
