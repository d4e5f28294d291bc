// Package backtester provides simulated ledger state for candle replay.
package backtester

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// Ledger manages simulated cash, the single open position, and the trade
// log. Accounting is notional: opening a position does not move cash, and
// closing credits the realized PnL net of commission on both legs.
type Ledger struct {
	mu             sync.RWMutex
	cash           decimal.Decimal
	initialCash    decimal.Decimal
	commissionRate decimal.Decimal
	peakEquity     decimal.Decimal
	position       *types.Position
	trades         []types.Trade
}

// LedgerState is the serializable snapshot of a ledger, used for
// paper-trading checkpoints.
type LedgerState struct {
	Cash       decimal.Decimal `json:"cash"`
	PeakEquity decimal.Decimal `json:"peakEquity"`
	Position   *types.Position `json:"position,omitempty"`
	Trades     []types.Trade   `json:"trades"`
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(initialCash, commissionRate decimal.Decimal) *Ledger {
	return &Ledger{
		cash:           initialCash,
		initialCash:    initialCash,
		commissionRate: commissionRate,
		peakEquity:     initialCash,
		trades:         make([]types.Trade, 0),
	}
}

// Open opens a position at the given fill price. The notional determines
// quantity (notional / price). Returns ErrPositionOpen if a position is
// already held.
func (l *Ledger) Open(side types.Side, price, notional, stop, target decimal.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position != nil {
		return ErrPositionOpen
	}

	l.position = &types.Position{
		Side:          side,
		Quantity:      notional.Div(price),
		EntryPrice:    price,
		EntryNotional: notional,
		StopLoss:      stop,
		TakeProfit:    target,
		OpenedAt:      at,
	}
	return nil
}

// Close closes the open position at the given fill price and appends the
// completed trade. Commission is charged on both the entry and exit
// notionals. Returns ErrNoOpenPosition if no position is held.
func (l *Ledger) Close(price decimal.Decimal, at time.Time, reason types.ExitReason, note string) (types.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position
	if pos == nil {
		return types.Trade{}, ErrNoOpenPosition
	}

	exitNotional := pos.Quantity.Mul(price)
	commission := pos.EntryNotional.Add(exitNotional).Mul(l.commissionRate)
	pnl := pos.UnrealizedPnL(price).Sub(commission)

	var pnlPct decimal.Decimal
	if !pos.EntryNotional.IsZero() {
		pnlPct = pnl.Div(pos.EntryNotional).Mul(decimal.NewFromInt(100))
	}

	var rMultiple decimal.Decimal
	if !pos.StopLoss.IsZero() {
		risk := pos.EntryPrice.Sub(pos.StopLoss).Abs().Mul(pos.Quantity)
		if !risk.IsZero() {
			rMultiple = pnl.Div(risk)
		}
	}

	trade := types.Trade{
		ID:         uuid.New().String(),
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		EntryTime:  pos.OpenedAt,
		ExitTime:   at,
		PnL:        pnl,
		PnLPct:     pnlPct,
		RMultiple:  rMultiple,
		Commission: commission,
		ExitReason: reason,
		Reason:     note,
	}

	l.cash = l.cash.Add(pnl)
	l.position = nil
	l.trades = append(l.trades, trade)

	if l.cash.GreaterThan(l.peakEquity) {
		l.peakEquity = l.cash
	}

	return trade, nil
}

// Position returns a copy of the open position, or nil when flat.
func (l *Ledger) Position() *types.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.position == nil {
		return nil
	}
	pos := *l.position
	return &pos
}

// Cash returns the settled cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Equity returns cash plus unrealized PnL at the given mark price.
func (l *Ledger) Equity(price decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityAt(price)
}

// Mark updates the equity peak at the given mark price and returns the
// current equity and drawdown from peak.
func (l *Ledger) Mark(price decimal.Decimal) (equity, drawdown decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity = l.equityAt(price)
	if equity.GreaterThan(l.peakEquity) {
		l.peakEquity = equity
	}
	if !l.peakEquity.IsZero() {
		drawdown = l.peakEquity.Sub(equity).Div(l.peakEquity)
	}
	return equity, drawdown
}

// Trades returns a copy of the trade log.
func (l *Ledger) Trades() []types.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// Snapshot returns a serializable copy of the ledger state.
func (l *Ledger) Snapshot() *LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := &LedgerState{
		Cash:       l.cash,
		PeakEquity: l.peakEquity,
		Trades:     make([]types.Trade, len(l.trades)),
	}
	copy(state.Trades, l.trades)
	if l.position != nil {
		pos := *l.position
		state.Position = &pos
	}
	return state
}

// Restore replaces the ledger state with a previously taken snapshot.
func (l *Ledger) Restore(state *LedgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = state.Cash
	l.peakEquity = state.PeakEquity
	l.trades = make([]types.Trade, len(state.Trades))
	copy(l.trades, state.Trades)
	l.position = nil
	if state.Position != nil {
		pos := *state.Position
		l.position = &pos
	}
}

// equityAt calculates equity at a mark price (must hold lock).
func (l *Ledger) equityAt(price decimal.Decimal) decimal.Decimal {
	equity := l.cash
	if l.position != nil {
		equity = equity.Add(l.position.UnrealizedPnL(price))
	}
	return equity
}
