package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// vwapReversion fades stretches away from the rolling VWAP: a close far
// enough below it is bought with the VWAP itself as the target, and
// symmetrically for shorts. Confidence grows with the deviation.
type vwapReversion struct {
	buf      buffers
	window   int
	entryDev float64
	stopLoss float64
	minConf  decimal.Decimal
}

func newVWAPReversion(cfg types.StrategyConfig) Strategy {
	return &vwapReversion{
		window:   cfg.Int("vwap_period", 20),
		entryDev: cfg.Float("entry_deviation", 0.01),
		stopLoss: cfg.Float("stop_loss", 0.015),
		minConf:  decimal.NewFromFloat(cfg.Float("min_confidence", 0.6)),
	}
}

func (s *vwapReversion) Name() string                   { return "v5" }
func (s *vwapReversion) MinConfidence() decimal.Decimal { return s.minConf }
func (s *vwapReversion) MaxTradesPerDay() int           { return 0 }
func (s *vwapReversion) Reset()                         { s.buf.reset() }

func (s *vwapReversion) WarmupBars() int {
	return s.window + 1
}

func (s *vwapReversion) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	vwap := rollingVWAP(s.buf.highs, s.buf.lows, s.buf.closes, s.buf.volumes, s.window)
	if vwap <= 0 {
		return nil, nil
	}

	price := last(s.buf.closes)
	dev := (price - vwap) / vwap
	confidence := clamp(0.6+10*(abs(dev)-s.entryDev), 0.6, 0.9)

	if dev <= -s.entryDev {
		return newSignal(types.SideLong, confidence, 0,
			price*(1-s.stopLoss), vwap,
			"stretched below vwap", candle.Timestamp), nil
	}
	if dev >= s.entryDev {
		return newSignal(types.SideShort, confidence, 0,
			price*(1+s.stopLoss), vwap,
			"stretched above vwap", candle.Timestamp), nil
	}
	return nil, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
