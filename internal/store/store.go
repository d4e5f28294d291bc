// Package store persists backtest results and paper-trading checkpoints
// in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/candleworks/papertrader/internal/backtester"
	"github.com/candleworks/papertrader/pkg/types"
)

// Store wraps the runs database. Prices and quantities are stored as
// TEXT so decimal values survive the round trip exactly.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
	path   string
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID          string          `json:"id"`
	Strategy    string          `json:"strategy"`
	Pair        string          `json:"pair"`
	Interval    types.Interval  `json:"interval"`
	TotalReturn decimal.Decimal `json:"totalReturn"`
	WinRate     decimal.Decimal `json:"winRate"`
	MaxDrawdown decimal.Decimal `json:"maxDrawdown"`
	TotalTrades int             `json:"totalTrades"`
	FinalEquity decimal.Decimal `json:"finalEquity"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
}

// New opens (creating if needed) the database at path.
func New(logger *zap.Logger, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{logger: logger, db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			strategy TEXT NOT NULL,
			pair TEXT NOT NULL,
			interval TEXT NOT NULL,
			total_return TEXT NOT NULL,
			win_rate TEXT NOT NULL,
			max_drawdown TEXT NOT NULL,
			total_trades INTEGER NOT NULL,
			final_equity TEXT NOT NULL,
			dropped_signals INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			metrics_json TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			exit_price TEXT NOT NULL,
			entry_time INTEGER NOT NULL,
			exit_time INTEGER NOT NULL,
			pnl TEXT NOT NULL,
			pnl_pct TEXT NOT NULL,
			r_multiple TEXT NOT NULL,
			commission TEXT NOT NULL,
			exit_reason TEXT NOT NULL,
			reason TEXT,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS equity_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			equity TEXT NOT NULL,
			cash TEXT NOT NULL,
			drawdown TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON equity_points(run_id, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun persists a completed run with its trades and equity curve.
func (s *Store) SaveRun(ctx context.Context, run *types.RunResult) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
			(id, strategy, pair, interval, total_return, win_rate, max_drawdown,
			total_trades, final_equity, dropped_signals, config_json, metrics_json,
			started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.Pair, string(run.Interval),
		run.Metrics.TotalReturn.String(), run.Metrics.WinRate.String(),
		run.Metrics.MaxDrawdown.String(), run.Metrics.TotalTrades,
		run.Metrics.FinalEquity.String(), run.DroppedSignals,
		string(configJSON), string(metricsJSON),
		run.StartedAt.UnixMilli(), run.CompletedAt.UnixMilli())
	if err != nil {
		return err
	}

	for _, trade := range run.Trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trades
				(id, run_id, side, quantity, entry_price, exit_price, entry_time,
				exit_time, pnl, pnl_pct, r_multiple, commission, exit_reason, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trade.ID, run.ID, string(trade.Side), trade.Quantity.String(),
			trade.EntryPrice.String(), trade.ExitPrice.String(),
			trade.EntryTime.UnixMilli(), trade.ExitTime.UnixMilli(),
			trade.PnL.String(), trade.PnLPct.String(), trade.RMultiple.String(),
			trade.Commission.String(), string(trade.ExitReason), trade.Reason)
		if err != nil {
			return err
		}
	}

	for _, point := range run.EquityCurve {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO equity_points (run_id, ts, equity, cash, drawdown)
			VALUES (?, ?, ?, ?, ?)`,
			run.ID, point.Timestamp.UnixMilli(),
			point.Equity.String(), point.Cash.String(), point.Drawdown.String())
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("Saved run",
		zap.String("id", run.ID),
		zap.String("strategy", run.Strategy),
		zap.Int("trades", len(run.Trades)))
	return nil
}

// GetRun loads a full run, including trades and equity curve.
func (s *Store) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, pair, interval, dropped_signals, config_json,
			metrics_json, started_at, completed_at
		FROM runs WHERE id = ?`, id)

	var run types.RunResult
	var interval, configJSON, metricsJSON string
	var startedAt, completedAt int64
	err := row.Scan(&run.ID, &run.Strategy, &run.Pair, &interval,
		&run.DroppedSignals, &configJSON, &metricsJSON, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	run.Interval = types.Interval(interval)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	run.CompletedAt = time.UnixMilli(completedAt).UTC()
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("corrupt config for run %s: %w", id, err)
	}
	run.Metrics = &types.Metrics{}
	if err := json.Unmarshal([]byte(metricsJSON), run.Metrics); err != nil {
		return nil, fmt.Errorf("corrupt metrics for run %s: %w", id, err)
	}

	if run.Trades, err = s.Trades(ctx, id); err != nil {
		return nil, err
	}
	if run.EquityCurve, err = s.EquityCurve(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns summaries of all stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, pair, interval, total_return, win_rate,
			max_drawdown, total_trades, final_equity, started_at, completed_at
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		var interval, totalReturn, winRate, maxDrawdown, finalEquity string
		var startedAt, completedAt int64
		err := rows.Scan(&sum.ID, &sum.Strategy, &sum.Pair, &interval,
			&totalReturn, &winRate, &maxDrawdown, &sum.TotalTrades,
			&finalEquity, &startedAt, &completedAt)
		if err != nil {
			return nil, err
		}

		sum.Interval = types.Interval(interval)
		sum.StartedAt = time.UnixMilli(startedAt).UTC()
		sum.CompletedAt = time.UnixMilli(completedAt).UTC()
		if sum.TotalReturn, err = decimal.NewFromString(totalReturn); err != nil {
			return nil, err
		}
		if sum.WinRate, err = decimal.NewFromString(winRate); err != nil {
			return nil, err
		}
		if sum.MaxDrawdown, err = decimal.NewFromString(maxDrawdown); err != nil {
			return nil, err
		}
		if sum.FinalEquity, err = decimal.NewFromString(finalEquity); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Trades returns the trades of a run in entry order.
func (s *Store) Trades(ctx context.Context, runID string) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, side, quantity, entry_price, exit_price, entry_time,
			exit_time, pnl, pnl_pct, r_multiple, commission, exit_reason, reason
		FROM trades WHERE run_id = ? ORDER BY entry_time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var trade types.Trade
		var side, exitReason string
		var quantity, entryPrice, exitPrice, pnl, pnlPct, rMultiple, commission string
		var entryTime, exitTime int64
		err := rows.Scan(&trade.ID, &side, &quantity, &entryPrice, &exitPrice,
			&entryTime, &exitTime, &pnl, &pnlPct, &rMultiple, &commission,
			&exitReason, &trade.Reason)
		if err != nil {
			return nil, err
		}

		trade.Side = types.Side(side)
		trade.ExitReason = types.ExitReason(exitReason)
		trade.EntryTime = time.UnixMilli(entryTime).UTC()
		trade.ExitTime = time.UnixMilli(exitTime).UTC()
		for _, field := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&trade.Quantity, quantity}, {&trade.EntryPrice, entryPrice},
			{&trade.ExitPrice, exitPrice}, {&trade.PnL, pnl},
			{&trade.PnLPct, pnlPct}, {&trade.RMultiple, rMultiple},
			{&trade.Commission, commission},
		} {
			if *field.dst, err = decimal.NewFromString(field.src); err != nil {
				return nil, err
			}
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// EquityCurve returns a run's equity points in time order.
func (s *Store) EquityCurve(ctx context.Context, runID string) ([]types.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, equity, cash, drawdown FROM equity_points
		WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []types.EquityPoint
	for rows.Next() {
		var point types.EquityPoint
		var ts int64
		var equity, cash, drawdown string
		if err := rows.Scan(&ts, &equity, &cash, &drawdown); err != nil {
			return nil, err
		}
		point.Timestamp = time.UnixMilli(ts).UTC()
		if point.Equity, err = decimal.NewFromString(equity); err != nil {
			return nil, err
		}
		if point.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, err
		}
		if point.Drawdown, err = decimal.NewFromString(drawdown); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// SaveCheckpoint upserts a paper-trading checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *backtester.Checkpoint) error {
	stateJSON, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET state_json=excluded.state_json,
			updated_at=excluded.updated_at`,
		cp.RunID, string(stateJSON), time.Now().UnixMilli())
	return err
}

// LoadCheckpoint returns the stored checkpoint for a run, or nil when
// none exists.
func (s *Store) LoadCheckpoint(ctx context.Context, runID string) (*backtester.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM checkpoints WHERE run_id = ?`, runID)

	var stateJSON string
	err := row.Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cp backtester.Checkpoint
	if err := json.Unmarshal([]byte(stateJSON), &cp); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for %s: %w", runID, err)
	}
	return &cp, nil
}
