package strategy

import (
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// fixedStop is the simplest stop-carrying variant: EMA(12)/EMA(26)
// crossover filtered by trend strength (ADX above 25), always with a
// fixed 2% stop and 4% target.
type fixedStop struct {
	buf        buffers
	fast       int
	slow       int
	adxLen     int
	adxMin     float64
	stopLoss   float64
	takeProfit float64
	minConf    decimal.Decimal
}

func newFixedStop(cfg types.StrategyConfig) Strategy {
	return &fixedStop{
		fast:       cfg.Int("fast_period", 12),
		slow:       cfg.Int("slow_period", 26),
		adxLen:     cfg.Int("adx_period", 14),
		adxMin:     cfg.Float("adx_min", 25),
		stopLoss:   cfg.Float("stop_loss", 0.02),
		takeProfit: cfg.Float("take_profit", 0.04),
		minConf:    decimal.NewFromFloat(cfg.Float("min_confidence", 0.6)),
	}
}

func (s *fixedStop) Name() string                   { return "v4" }
func (s *fixedStop) MinConfidence() decimal.Decimal { return s.minConf }
func (s *fixedStop) MaxTradesPerDay() int           { return 0 }
func (s *fixedStop) Reset()                         { s.buf.reset() }

func (s *fixedStop) WarmupBars() int {
	return s.slow + 2*s.adxLen
}

func (s *fixedStop) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	fast := talib.Ema(s.buf.closes, s.fast)
	slow := talib.Ema(s.buf.closes, s.slow)
	adx := last(talib.Adx(s.buf.highs, s.buf.lows, s.buf.closes, s.adxLen))
	price := last(s.buf.closes)

	if adx < s.adxMin {
		return nil, nil
	}

	switch {
	case crossedAbove(fast, slow):
		return newSignal(types.SideLong, 0.7, 0,
			price*(1-s.stopLoss), price*(1+s.takeProfit),
			"trend cross up", candle.Timestamp), nil
	case crossedBelow(fast, slow):
		return newSignal(types.SideShort, 0.7, 0,
			price*(1+s.stopLoss), price*(1-s.takeProfit),
			"trend cross down", candle.Timestamp), nil
	}
	return nil, nil
}
