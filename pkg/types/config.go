// Package types provides configuration types for the paper trader.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig represents the configuration for a backtest or paper run
type EngineConfig struct {
	Pair            string          `json:"pair"`
	Interval        Interval        `json:"interval"`
	InitialCapital  decimal.Decimal `json:"initialCapital"`
	CommissionRate  decimal.Decimal `json:"commissionRate"`
	SlippageRate    decimal.Decimal `json:"slippageRate"`
	MaxTradesPerDay int             `json:"maxTradesPerDay"`
	PositionSize    decimal.Decimal `json:"positionSize"`
}

// StrategyConfig represents per-strategy tunable parameters
type StrategyConfig struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Float returns a float64 parameter, falling back to def when absent.
func (c StrategyConfig) Float(key string, def float64) float64 {
	if v, ok := c.Parameters[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return def
}

// Int returns an int parameter, falling back to def when absent.
func (c StrategyConfig) Int(key string, def int) int {
	if v, ok := c.Parameters[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// WalkForwardConfig represents walk-forward analysis configuration
type WalkForwardConfig struct {
	TrainDays int `json:"trainDays"`
	TestDays  int `json:"testDays"`
}

// ServerConfig represents the status API server configuration
type ServerConfig struct {
	ListenAddr    string        `json:"listenAddr"`
	ReadTimeout   time.Duration `json:"readTimeout"`
	WriteTimeout  time.Duration `json:"writeTimeout"`
	EnableMetrics bool          `json:"enableMetrics"`
}

// PaperConfig represents paper-trading loop configuration
type PaperConfig struct {
	PollInterval   time.Duration `json:"pollInterval"`
	CheckpointPath string        `json:"checkpointPath"`
}
