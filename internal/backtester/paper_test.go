// Package backtester_test provides tests for the paper-trading loop.
package backtester_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

// fakeSource hands out a scripted candle sequence, one per Latest call,
// repeating the last one once exhausted.
type fakeSource struct {
	candles []types.Candle
	next    int
	history []types.Candle
}

func (f *fakeSource) Candles(ctx context.Context, pair string, interval types.Interval, since time.Time) ([]types.Candle, error) {
	return f.history, nil
}

func (f *fakeSource) Latest(ctx context.Context, pair string, interval types.Interval) (types.Candle, error) {
	i := f.next
	if i >= len(f.candles) {
		i = len(f.candles) - 1
	} else {
		f.next++
	}
	return f.candles[i], nil
}

// memStore keeps checkpoints in memory.
type memStore struct {
	saved map[string]*backtester.Checkpoint
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*backtester.Checkpoint)}
}

func (m *memStore) SaveCheckpoint(ctx context.Context, cp *backtester.Checkpoint) error {
	m.saved[cp.RunID] = cp
	return nil
}

func (m *memStore) LoadCheckpoint(ctx context.Context, runID string) (*backtester.Checkpoint, error) {
	return m.saved[runID], nil
}

func TestPaperTraderProcessesNewCandles(t *testing.T) {
	source := &fakeSource{
		candles: []types.Candle{
			candle(0, 99, 101, 98.5, 100),
			candle(1, 100, 103, 99.5, 102),
			candle(2, 102, 104, 101, 103),
		},
	}
	store := newMemStore()
	strat := &scriptStrategy{
		signals: map[int]*types.Signal{0: longSignal(0.9, 0.25, 0, 0)},
	}

	pt := backtester.NewPaperTrader(zap.NewNop(), testConfig(), strat, source, store, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := pt.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run should stop on context: %v", err)
	}

	status := pt.Status()
	if status.Position == nil {
		t.Fatal("Paper trader should hold the long")
	}
	if !status.LastCandle.Equal(source.candles[2].Timestamp) {
		t.Errorf("Last candle incorrect: %s", status.LastCandle)
	}

	// Duplicate candles after exhaustion must not add equity points.
	if got := len(pt.EquityCurve()); got != 3 {
		t.Errorf("Expected 3 equity points, got %d", got)
	}

	cp := store.saved[pt.RunID()]
	if cp == nil {
		t.Fatal("Checkpoint not saved")
	}
	if !cp.LastCandle.Equal(source.candles[2].Timestamp) {
		t.Errorf("Checkpoint candle incorrect: %s", cp.LastCandle)
	}
	if cp.Ledger.Position == nil {
		t.Error("Checkpoint should carry the open position")
	}
}

func TestPaperTraderResumesFromCheckpoint(t *testing.T) {
	store := newMemStore()
	first := &fakeSource{
		candles: []types.Candle{
			candle(0, 99, 101, 98.5, 100),
			candle(1, 100, 103, 99.5, 102),
		},
	}
	strat := &scriptStrategy{
		signals: map[int]*types.Signal{0: longSignal(0.9, 0.25, 0, 0)},
	}

	pt := backtester.NewPaperTrader(zap.NewNop(), testConfig(), strat, first, store, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	pt.Run(ctx)
	cancel()

	// Restart with a fresh trader; the source now serves a later candle.
	second := &fakeSource{
		candles: []types.Candle{candle(2, 102, 104, 101, 103)},
	}
	resumed := backtester.NewPaperTrader(zap.NewNop(), testConfig(), &scriptStrategy{}, second, store, time.Millisecond)
	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	resumed.Run(ctx)
	cancel()

	status := resumed.Status()
	if status.Position == nil {
		t.Fatal("Resumed trader should still hold the position")
	}
	if !status.Position.EntryPrice.Equal(decimal.NewFromFloat(100.05)) {
		t.Errorf("Resumed entry price incorrect: %s", status.Position.EntryPrice)
	}
	if !status.LastCandle.Equal(second.candles[0].Timestamp) {
		t.Errorf("Resumed trader should advance past the checkpoint: %s", status.LastCandle)
	}
}

func TestPaperTraderSkipsStaleCandles(t *testing.T) {
	// The source repeats the same candle forever; only one step happens.
	source := &fakeSource{
		candles: []types.Candle{candle(0, 99, 101, 98.5, 100)},
	}
	pt := backtester.NewPaperTrader(zap.NewNop(), testConfig(), &scriptStrategy{}, source, nil, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pt.Run(ctx)

	if got := len(pt.EquityCurve()); got != 1 {
		t.Errorf("Stale candles should be skipped: %d equity points", got)
	}
}
