package strategy

import (
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// profitMax trades aligned EMA(8)/EMA(20) trends with a momentum gate,
// taking profit quickly at 3% against a 1.5% stop. A volume spike over
// the 20-bar average lifts confidence.
type profitMax struct {
	buf        buffers
	fast       int
	slow       int
	volLen     int
	takeProfit float64
	stopLoss   float64
	minConf    decimal.Decimal
}

func newProfitMax(cfg types.StrategyConfig) Strategy {
	return &profitMax{
		fast:       cfg.Int("fast_period", 8),
		slow:       cfg.Int("slow_period", 20),
		volLen:     cfg.Int("volume_period", 20),
		takeProfit: cfg.Float("take_profit", 0.03),
		stopLoss:   cfg.Float("stop_loss", 0.015),
		minConf:    decimal.NewFromFloat(cfg.Float("min_confidence", 0.6)),
	}
}

func (s *profitMax) Name() string                   { return "v2" }
func (s *profitMax) MinConfidence() decimal.Decimal { return s.minConf }
func (s *profitMax) MaxTradesPerDay() int           { return 0 }
func (s *profitMax) Reset()                         { s.buf.reset() }

func (s *profitMax) WarmupBars() int {
	return s.slow + s.volLen
}

func (s *profitMax) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	fast := last(talib.Ema(s.buf.closes, s.fast))
	slow := last(talib.Ema(s.buf.closes, s.slow))
	price := last(s.buf.closes)
	mom := momentum(s.buf.closes, 3)
	avgVol := averageVolume(s.buf.volumes, s.volLen)
	volSpike := avgVol > 0 && last(s.buf.volumes) > 1.5*avgVol

	confidence := 0.65
	if volSpike {
		confidence += 0.1
	}

	if fast > slow && price > fast && mom > 0.002 {
		return newSignal(types.SideLong, confidence, 0,
			price*(1-s.stopLoss), price*(1+s.takeProfit),
			"bullish ema alignment", candle.Timestamp), nil
	}
	if fast < slow && price < fast && mom < -0.002 {
		return newSignal(types.SideShort, confidence, 0,
			price*(1+s.stopLoss), price*(1-s.takeProfit),
			"bearish ema alignment", candle.Timestamp), nil
	}
	return nil, nil
}
