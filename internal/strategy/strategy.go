// Package strategy provides the built-in trading strategies and their
// registry. Strategies consume candles one at a time, maintain their own
// indicator buffers, and emit signals once warm.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// Strategy is the interface all strategies implement. OnBar is called
// once per candle in order; a nil signal means no action. Strategies
// must be deterministic: signals derive from the candles seen, never
// from the wall clock.
type Strategy interface {
	Name() string
	WarmupBars() int
	MinConfidence() decimal.Decimal
	MaxTradesPerDay() int
	OnBar(candle types.Candle) (*types.Signal, error)
	Reset()
}

// maxBufferBars caps the indicator buffers. Long enough for every
// indicator period in use with plenty of room.
const maxBufferBars = 500

// buffers holds the rolling float64 series the indicator library works
// on. Prices stay decimal everywhere else; the conversion happens once,
// here, at the buffer boundary.
type buffers struct {
	times   []time.Time
	highs   []float64
	lows    []float64
	closes  []float64
	volumes []float64
}

func (b *buffers) push(c types.Candle) {
	b.times = append(b.times, c.Timestamp)
	b.highs = append(b.highs, c.High.InexactFloat64())
	b.lows = append(b.lows, c.Low.InexactFloat64())
	b.closes = append(b.closes, c.Close.InexactFloat64())
	b.volumes = append(b.volumes, c.Volume.InexactFloat64())

	if len(b.closes) > maxBufferBars {
		trim := len(b.closes) - maxBufferBars
		b.times = b.times[trim:]
		b.highs = b.highs[trim:]
		b.lows = b.lows[trim:]
		b.closes = b.closes[trim:]
		b.volumes = b.volumes[trim:]
	}
}

func (b *buffers) len() int { return len(b.closes) }

func (b *buffers) reset() {
	b.times = nil
	b.highs = nil
	b.lows = nil
	b.closes = nil
	b.volumes = nil
}

// last returns the final value of a series, or 0 for an empty one.
func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// beforeLast returns the next-to-last value of a series, or 0.
func beforeLast(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	return series[len(series)-2]
}

// crossedAbove reports whether a crossed above b on the latest bar.
func crossedAbove(a, b []float64) bool {
	return beforeLast(a) <= beforeLast(b) && last(a) > last(b)
}

// crossedBelow reports whether a crossed below b on the latest bar.
func crossedBelow(a, b []float64) bool {
	return beforeLast(a) >= beforeLast(b) && last(a) < last(b)
}

// newSignal builds a signal from indicator-space floats. Zero stop or
// target means none. The timestamp comes from the candle, keeping
// signal generation deterministic.
func newSignal(side types.Side, confidence, size, stop, target float64, reason string, at time.Time) *types.Signal {
	sig := &types.Signal{
		Side:        side,
		Confidence:  decimal.NewFromFloat(confidence),
		Size:        decimal.NewFromFloat(size),
		Reason:      reason,
		GeneratedAt: at,
	}
	if stop > 0 {
		sig.StopLoss = decimal.NewFromFloat(stop)
	}
	if target > 0 {
		sig.TakeProfit = decimal.NewFromFloat(target)
	}
	return sig
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Builder constructs a strategy from its configuration.
type Builder func(cfg types.StrategyConfig) Strategy

var (
	registry = map[string]Builder{}
	aliases  = map[string]string{}
)

func register(name, alias string, builder Builder) {
	registry[name] = builder
	aliases[alias] = name
}

// New builds a registered strategy by name or alias.
func New(name string, cfg types.StrategyConfig) (Strategy, error) {
	key := name
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	builder, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return builder(cfg), nil
}

// Names returns the canonical strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the long name for a canonical strategy name, if any.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for long, short := range aliases {
		out[short] = long
	}
	return out
}

func init() {
	register("v1", "v1_legacy", newLegacy)
	register("v2", "v2_profit_max", newProfitMax)
	register("v3", "v3_aggressive", newAggressive)
	register("v4", "v4_fixed_stop", newFixedStop)
	register("v5", "v5_vwap", newVWAPReversion)
	register("v6", "v6_breakout", newBreakout)
}
