// Package strategy provides small indicator helpers the library lacks.
package strategy

// rollingVWAP computes the volume-weighted average price over the last
// period bars using the typical price (H+L+C)/3. Returns 0 until enough
// bars exist or when the window has no volume.
func rollingVWAP(highs, lows, closes, volumes []float64, period int) float64 {
	n := len(closes)
	if n < period {
		return 0
	}

	var pv, vol float64
	for i := n - period; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		pv += typical * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// rollingHigh returns the highest high of the period bars ending just
// before the latest bar, so a breakout compares against prior history.
func rollingHigh(highs []float64, period int) float64 {
	n := len(highs)
	if n < period+1 {
		return 0
	}

	max := highs[n-period-1]
	for i := n - period; i < n-1; i++ {
		if highs[i] > max {
			max = highs[i]
		}
	}
	return max
}

// rollingLow returns the lowest low of the period bars ending just
// before the latest bar.
func rollingLow(lows []float64, period int) float64 {
	n := len(lows)
	if n < period+1 {
		return 0
	}

	min := lows[n-period-1]
	for i := n - period; i < n-1; i++ {
		if lows[i] < min {
			min = lows[i]
		}
	}
	return min
}

// averageVolume returns the mean volume of the period bars ending just
// before the latest bar.
func averageVolume(volumes []float64, period int) float64 {
	n := len(volumes)
	if n < period+1 {
		return 0
	}

	var sum float64
	for i := n - period - 1; i < n-1; i++ {
		sum += volumes[i]
	}
	return sum / float64(period)
}

// momentum returns the fractional price change over lookback bars.
func momentum(closes []float64, lookback int) float64 {
	n := len(closes)
	if n < lookback+1 {
		return 0
	}
	past := closes[n-lookback-1]
	if past == 0 {
		return 0
	}
	return (closes[n-1] - past) / past
}
