package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/internal/store"
	"github.com/candleworks/papertrader/pkg/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(zap.NewNop(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string) *types.RunResult {
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &types.RunResult{
		ID:       id,
		Strategy: "v4",
		Pair:     "XBTUSD",
		Interval: types.Interval30m,
		Config: &types.EngineConfig{
			Pair:           "XBTUSD",
			Interval:       types.Interval30m,
			InitialCapital: decimal.NewFromInt(10000),
			CommissionRate: decimal.NewFromFloat(0.001),
			SlippageRate:   decimal.NewFromFloat(0.0005),
			PositionSize:   decimal.NewFromFloat(0.25),
		},
		Trades: []types.Trade{{
			ID:         id + "-t1",
			Side:       types.SideLong,
			Quantity:   decimal.NewFromInt(25),
			EntryPrice: decimal.NewFromFloat(100.05),
			ExitPrice:  decimal.NewFromInt(106),
			EntryTime:  started,
			ExitTime:   started.Add(time.Hour),
			PnL:        decimal.NewFromFloat(143.5),
			PnLPct:     decimal.NewFromFloat(5.74),
			RMultiple:  decimal.NewFromFloat(2.8),
			Commission: decimal.NewFromFloat(5.15),
			ExitReason: types.ExitReasonTarget,
			Reason:     "trend cross up",
		}},
		EquityCurve: []types.EquityPoint{
			{
				Timestamp: started,
				Equity:    decimal.NewFromInt(10000),
				Cash:      decimal.NewFromInt(10000),
				Drawdown:  decimal.Zero,
			},
			{
				Timestamp: started.Add(30 * time.Minute),
				Equity:    decimal.NewFromFloat(10143.5),
				Cash:      decimal.NewFromFloat(10143.5),
				Drawdown:  decimal.Zero,
			},
		},
		Metrics: &types.Metrics{
			TotalReturn: decimal.NewFromFloat(0.01435),
			WinRate:     decimal.NewFromInt(1),
			MaxDrawdown: decimal.Zero,
			TotalTrades: 1,
			FinalEquity: decimal.NewFromFloat(10143.5),
		},
		DroppedSignals: 2,
		StartedAt:      started,
		CompletedAt:    started.Add(2 * time.Hour),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRun(ctx, sampleRun("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if got.Strategy != "v4" || got.Pair != "XBTUSD" || got.Interval != types.Interval30m {
		t.Errorf("Run identity incorrect: %+v", got)
	}
	if got.DroppedSignals != 2 {
		t.Errorf("DroppedSignals incorrect: %d", got.DroppedSignals)
	}
	if !got.Config.InitialCapital.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Config incorrect: %+v", got.Config)
	}
	if !got.Metrics.FinalEquity.Equal(decimal.NewFromFloat(10143.5)) {
		t.Errorf("Metrics incorrect: %+v", got.Metrics)
	}

	if len(got.Trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(got.Trades))
	}
	trade := got.Trades[0]
	if !trade.EntryPrice.Equal(decimal.NewFromFloat(100.05)) ||
		!trade.PnL.Equal(decimal.NewFromFloat(143.5)) {
		t.Errorf("Trade values incorrect: %+v", trade)
	}
	if trade.ExitReason != types.ExitReasonTarget {
		t.Errorf("ExitReason incorrect: %s", trade.ExitReason)
	}
	if !trade.EntryTime.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("EntryTime incorrect: %v", trade.EntryTime)
	}

	if len(got.EquityCurve) != 2 {
		t.Fatalf("Expected 2 equity points, got %d", len(got.EquityCurve))
	}
	if !got.EquityCurve[1].Equity.Equal(decimal.NewFromFloat(10143.5)) {
		t.Errorf("Equity point incorrect: %+v", got.EquityCurve[1])
	}
}

func TestStoreListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRun("run-1")
	second := sampleRun("run-2")
	second.StartedAt = first.StartedAt.Add(time.Hour)

	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" {
		t.Errorf("Newest run should come first: %s", runs[0].ID)
	}
	if runs[0].TotalTrades != 1 || !runs[0].WinRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Summary incorrect: %+v", runs[0])
	}
}

func TestStoreGetRunMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun(context.Background(), "nope"); err == nil {
		t.Fatal("Missing run should error")
	}
}

func TestStoreCheckpointLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No checkpoint yet.
	cp, err := s.LoadCheckpoint(ctx, "paper-v4-XBTUSD-30m")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if cp != nil {
		t.Fatal("Fresh store should have no checkpoint")
	}

	saved := &backtester.Checkpoint{
		RunID: "paper-v4-XBTUSD-30m",
		Ledger: &backtester.LedgerState{
			Cash:       decimal.NewFromInt(10000),
			PeakEquity: decimal.NewFromFloat(10100.5),
			Position: &types.Position{
				Side:          types.SideLong,
				Quantity:      decimal.NewFromInt(25),
				EntryPrice:    decimal.NewFromFloat(100.05),
				EntryNotional: decimal.NewFromFloat(2501.25),
				OpenedAt:      time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC),
			},
		},
		LastCandle: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Day:        "2024-03-01",
		OpensToday: 1,
		UpdatedAt:  time.Date(2024, 3, 1, 6, 0, 5, 0, time.UTC),
	}
	if err := s.SaveCheckpoint(ctx, saved); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := s.LoadCheckpoint(ctx, "paper-v4-XBTUSD-30m")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Checkpoint should exist")
	}
	if loaded.Day != "2024-03-01" || loaded.OpensToday != 1 {
		t.Errorf("Checkpoint fields incorrect: %+v", loaded)
	}
	if loaded.Ledger.Position == nil ||
		!loaded.Ledger.Position.EntryPrice.Equal(decimal.NewFromFloat(100.05)) {
		t.Errorf("Position did not survive: %+v", loaded.Ledger)
	}

	// Saving again overwrites.
	saved.OpensToday = 2
	if err := s.SaveCheckpoint(ctx, saved); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	loaded, err = s.LoadCheckpoint(ctx, "paper-v4-XBTUSD-30m")
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.OpensToday != 2 {
		t.Errorf("Upsert did not overwrite: %d", loaded.OpensToday)
	}
}
