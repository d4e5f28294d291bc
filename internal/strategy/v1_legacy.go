package strategy

import (
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// legacy is the original EMA crossover system: EMA(9) crossing EMA(21)
// with an RSI(14) filter against chasing exhausted moves. It sets no
// protective levels; positions close on the opposite cross.
type legacy struct {
	buf     buffers
	fast    int
	slow    int
	rsiLen  int
	minConf decimal.Decimal
}

func newLegacy(cfg types.StrategyConfig) Strategy {
	return &legacy{
		fast:    cfg.Int("fast_period", 9),
		slow:    cfg.Int("slow_period", 21),
		rsiLen:  cfg.Int("rsi_period", 14),
		minConf: decimal.NewFromFloat(cfg.Float("min_confidence", 0.5)),
	}
}

func (s *legacy) Name() string                   { return "v1" }
func (s *legacy) MinConfidence() decimal.Decimal { return s.minConf }
func (s *legacy) MaxTradesPerDay() int           { return 0 }
func (s *legacy) Reset()                         { s.buf.reset() }

func (s *legacy) WarmupBars() int {
	return s.slow + s.rsiLen
}

func (s *legacy) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	fast := talib.Ema(s.buf.closes, s.fast)
	slow := talib.Ema(s.buf.closes, s.slow)
	rsi := last(talib.Rsi(s.buf.closes, s.rsiLen))

	switch {
	case crossedAbove(fast, slow) && rsi < 70:
		return newSignal(types.SideLong, 0.7, 0, 0, 0, "ema cross up", candle.Timestamp), nil
	case crossedBelow(fast, slow) && rsi > 30:
		return newSignal(types.SideShort, 0.7, 0, 0, 0, "ema cross down", candle.Timestamp), nil
	}
	return nil, nil
}
