package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// breakout buys closes through the prior N-bar high (and shorts closes
// through the prior low) when volume confirms. The stop sits at the
// broken level and the target is twice the risk.
type breakout struct {
	buf      buffers
	lookback int
	volMult  float64
	rewardR  float64
	minConf  decimal.Decimal
}

func newBreakout(cfg types.StrategyConfig) Strategy {
	return &breakout{
		lookback: cfg.Int("lookback", 20),
		volMult:  cfg.Float("volume_mult", 1.2),
		rewardR:  cfg.Float("reward_ratio", 2),
		minConf:  decimal.NewFromFloat(cfg.Float("min_confidence", 0.6)),
	}
}

func (s *breakout) Name() string                   { return "v6" }
func (s *breakout) MinConfidence() decimal.Decimal { return s.minConf }
func (s *breakout) MaxTradesPerDay() int           { return 0 }
func (s *breakout) Reset()                         { s.buf.reset() }

func (s *breakout) WarmupBars() int {
	return s.lookback + 1
}

func (s *breakout) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	price := last(s.buf.closes)
	priorHigh := rollingHigh(s.buf.highs, s.lookback)
	priorLow := rollingLow(s.buf.lows, s.lookback)
	avgVol := averageVolume(s.buf.volumes, s.lookback)
	volConfirm := avgVol > 0 && last(s.buf.volumes) > s.volMult*avgVol

	if !volConfirm {
		return nil, nil
	}

	if price > priorHigh {
		risk := price - priorHigh
		if risk <= 0 {
			return nil, nil
		}
		return newSignal(types.SideLong, 0.75, 0,
			priorHigh, price+s.rewardR*risk,
			"range breakout", candle.Timestamp), nil
	}
	if price < priorLow {
		risk := priorLow - price
		if risk <= 0 {
			return nil, nil
		}
		return newSignal(types.SideShort, 0.75, 0,
			priorLow, price-s.rewardR*risk,
			"range breakdown", candle.Timestamp), nil
	}
	return nil, nil
}
