package strategy

import (
	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"github.com/candleworks/papertrader/pkg/types"
)

// aggressive scores five independent conditions and trades only when
// enough of them line up. Stops are ATR-based (1.5x stop, 3x target)
// and position size shrinks as volatility rises. It caps itself at two
// entries per day and will not flip direction within six bars of its
// last signal.
type aggressive struct {
	buf       buffers
	emaFast   int
	emaSlow   int
	rsiLen    int
	adxLen    int
	atrLen    int
	bbLen     int
	baseSize  float64
	minHold   int
	minConf   decimal.Decimal
	maxPerDay int

	barsSeen      int
	lastSignalBar int
	lastSide      types.Side
}

func newAggressive(cfg types.StrategyConfig) Strategy {
	return &aggressive{
		emaFast:       cfg.Int("ema_fast", 9),
		emaSlow:       cfg.Int("ema_slow", 21),
		rsiLen:        cfg.Int("rsi_period", 14),
		adxLen:        cfg.Int("adx_period", 14),
		atrLen:        cfg.Int("atr_period", 14),
		bbLen:         cfg.Int("bb_period", 20),
		baseSize:      cfg.Float("base_size", 0.25),
		minHold:       cfg.Int("min_hold_bars", 6),
		minConf:       decimal.NewFromFloat(cfg.Float("min_confidence", 0.65)),
		maxPerDay:     cfg.Int("max_trades_per_day", 2),
		lastSignalBar: -1,
	}
}

func (s *aggressive) Name() string                   { return "v3" }
func (s *aggressive) MinConfidence() decimal.Decimal { return s.minConf }
func (s *aggressive) MaxTradesPerDay() int           { return s.maxPerDay }

func (s *aggressive) WarmupBars() int {
	// ADX needs roughly twice its period to stabilize.
	return s.emaSlow + 2*s.adxLen
}

func (s *aggressive) Reset() {
	s.buf.reset()
	s.barsSeen = 0
	s.lastSignalBar = -1
	s.lastSide = ""
}

func (s *aggressive) OnBar(candle types.Candle) (*types.Signal, error) {
	s.buf.push(candle)
	s.barsSeen++
	if s.buf.len() < s.WarmupBars() {
		return nil, nil
	}

	price := last(s.buf.closes)
	fast := last(talib.Ema(s.buf.closes, s.emaFast))
	slow := last(talib.Ema(s.buf.closes, s.emaSlow))
	rsi := last(talib.Rsi(s.buf.closes, s.rsiLen))
	adx := last(talib.Adx(s.buf.highs, s.buf.lows, s.buf.closes, s.adxLen))
	atr := last(talib.Atr(s.buf.highs, s.buf.lows, s.buf.closes, s.atrLen))
	_, bbMid, _ := talib.BBands(s.buf.closes, s.bbLen, 2, 2, talib.SMA)
	mid := last(bbMid)
	mom := momentum(s.buf.closes, 5)
	avgVol := averageVolume(s.buf.volumes, 20)

	if atr <= 0 {
		return nil, nil
	}

	var bullish, bearish int
	if fast > slow && adx > 20 {
		bullish++
	}
	if fast < slow && adx > 20 {
		bearish++
	}
	if rsi > 50 && rsi < 70 {
		bullish++
	}
	if rsi < 50 && rsi > 30 {
		bearish++
	}
	if avgVol > 0 && last(s.buf.volumes) > 1.3*avgVol {
		bullish++
		bearish++
	}
	if price > mid {
		bullish++
	} else if price < mid {
		bearish++
	}
	if mom > 0 {
		bullish++
	} else if mom < 0 {
		bearish++
	}

	var side types.Side
	var score int
	switch {
	case bullish >= 4 && bullish > bearish:
		side, score = types.SideLong, bullish
	case bearish >= 4 && bearish > bullish:
		side, score = types.SideShort, bearish
	default:
		return nil, nil
	}

	// Cooling-off period after any signal, long enough to avoid
	// flip-flopping in chop.
	if s.lastSignalBar >= 0 && s.barsSeen-s.lastSignalBar < s.minHold {
		return nil, nil
	}

	// Volatility-adjusted sizing: target about 2% per-trade risk,
	// scaled down when ATR is wide relative to price.
	atrPct := atr / price
	size := clamp(s.baseSize*0.02/atrPct, 0.1, 0.4)

	var stop, target float64
	if side == types.SideLong {
		stop = price - 1.5*atr
		target = price + 3*atr
	} else {
		stop = price + 1.5*atr
		target = price - 3*atr
	}
	if stop <= 0 || target <= 0 {
		return nil, nil
	}

	s.lastSignalBar = s.barsSeen
	s.lastSide = side

	confidence := clamp(0.45+0.1*float64(score), 0, 0.95)
	return newSignal(side, confidence, size, stop, target, "scored confluence", candle.Timestamp), nil
}
