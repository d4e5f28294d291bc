// Package backtester provides the candle-replay simulation engine.
package backtester

import (
	"errors"
	"fmt"
)

// Ledger invariant violations. These indicate a bug in the engine, not bad
// input, and abort the run.
var (
	// ErrPositionOpen is returned by Open when a position is already held.
	ErrPositionOpen = errors.New("ledger: position already open")
	// ErrNoOpenPosition is returned by Close when no position is held.
	ErrNoOpenPosition = errors.New("ledger: no open position")
)

// ConfigError reports an invalid engine configuration value. Configuration
// is validated before any candle is processed.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// DataError reports a malformed candle in the input series. The index
// identifies the offending candle. Data errors are fatal to the run.
type DataError struct {
	Index int
	Msg   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data: candle %d: %s", e.Index, e.Msg)
}

// SignalError reports a malformed signal returned by a strategy. Signal
// errors are recovered: the signal is dropped and counted, and the run
// continues.
type SignalError struct {
	Strategy string
	Msg      string
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("signal from %s rejected: %s", e.Strategy, e.Msg)
}
