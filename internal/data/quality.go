package data

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// QualityValidator checks fetched candle series before they reach the
// engine. Bad data ruins a backtest silently, so the CLI runs this on
// every download and warns on a low score.
type QualityValidator struct {
	logger *zap.Logger

	MaxBarMove        float64 // max high-to-low range within one candle
	MaxGapMove        float64 // max close-to-open move between candles
	MaxVolumeMultiple float64 // spike threshold over the running average
}

// QualityIssue describes a single data problem.
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // "critical", "high", "medium"
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"`
	Message   string    `json:"message"`
}

// QualityReport summarizes a validated candle series.
type QualityReport struct {
	Pair      string         `json:"pair"`
	TotalBars int            `json:"totalBars"`
	Issues    []QualityIssue `json:"issues"`
	Score     int            `json:"score"` // 0-100
	Usable    bool           `json:"usable"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
}

// NewQualityValidator creates a validator with crypto-market defaults.
func NewQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:            logger,
		MaxBarMove:        0.30,
		MaxGapMove:        0.20,
		MaxVolumeMultiple: 20,
	}
}

// Validate runs all checks and scores the series.
func (v *QualityValidator) Validate(pair string, interval types.Interval, candles []types.Candle) *QualityReport {
	report := &QualityReport{Pair: pair, TotalBars: len(candles)}
	if len(candles) == 0 {
		report.Issues = append(report.Issues, QualityIssue{
			Type: "NO_DATA", Severity: "critical", Message: "no candles",
		})
		return report
	}

	report.Start = candles[0].Timestamp
	report.End = candles[len(candles)-1].Timestamp

	report.Issues = append(report.Issues, v.checkGaps(interval, candles)...)
	report.Issues = append(report.Issues, v.checkPrices(candles)...)
	report.Issues = append(report.Issues, v.checkVolumes(candles)...)

	report.Score = scoreIssues(len(candles), report.Issues)
	report.Usable = report.Score >= 60 && !hasCritical(report.Issues)

	if !report.Usable {
		v.logger.Warn("Candle series failed quality checks",
			zap.String("pair", pair),
			zap.Int("score", report.Score),
			zap.Int("issues", len(report.Issues)))
	}
	return report
}

// checkGaps flags missing candles and out-of-order timestamps.
func (v *QualityValidator) checkGaps(interval types.Interval, candles []types.Candle) []QualityIssue {
	var issues []QualityIssue
	expected := time.Duration(interval.Minutes()) * time.Minute

	for i := 1; i < len(candles); i++ {
		gap := candles[i].Timestamp.Sub(candles[i-1].Timestamp)
		switch {
		case gap <= 0:
			issues = append(issues, QualityIssue{
				Type: "OUT_OF_ORDER", Severity: "critical",
				Timestamp: candles[i].Timestamp, Index: i,
				Message: "timestamp not after previous candle",
			})
		case expected > 0 && gap > 3*expected:
			severity := "medium"
			if gap > 24*expected {
				severity = "high"
			}
			issues = append(issues, QualityIssue{
				Type: "GAP_DETECTED", Severity: severity,
				Timestamp: candles[i-1].Timestamp, Index: i - 1,
				Message: fmt.Sprintf("gap of %s (expected %s)", gap, expected),
			})
		}
	}
	return issues
}

// checkPrices flags inconsistent OHLC relations and extreme moves.
func (v *QualityValidator) checkPrices(candles []types.Candle) []QualityIssue {
	var issues []QualityIssue

	for i, c := range candles {
		if !c.Open.IsPositive() || !c.High.IsPositive() || !c.Low.IsPositive() || !c.Close.IsPositive() {
			issues = append(issues, QualityIssue{
				Type: "NON_POSITIVE_PRICE", Severity: "critical",
				Timestamp: c.Timestamp, Index: i,
				Message: "price not positive",
			})
			continue
		}

		if c.High.LessThan(c.Low) ||
			c.Open.GreaterThan(c.High) || c.Open.LessThan(c.Low) ||
			c.Close.GreaterThan(c.High) || c.Close.LessThan(c.Low) {
			issues = append(issues, QualityIssue{
				Type: "OHLC_INCONSISTENT", Severity: "critical",
				Timestamp: c.Timestamp, Index: i,
				Message: "open/close outside high/low range",
			})
			continue
		}

		barMove, _ := c.High.Sub(c.Low).Div(c.Low).Float64()
		if barMove > v.MaxBarMove {
			issues = append(issues, QualityIssue{
				Type: "EXTREME_MOVE", Severity: "high",
				Timestamp: c.Timestamp, Index: i,
				Message: fmt.Sprintf("%.1f%% range within one candle", barMove*100),
			})
		}

		if i > 0 {
			prev := candles[i-1].Close
			if prev.IsPositive() {
				gapMove, _ := c.Open.Sub(prev).Div(prev).Abs().Float64()
				if gapMove > v.MaxGapMove {
					issues = append(issues, QualityIssue{
						Type: "GAP_MOVE", Severity: "high",
						Timestamp: c.Timestamp, Index: i,
						Message: fmt.Sprintf("%.1f%% move between candles", gapMove*100),
					})
				}
			}
		}
	}
	return issues
}

// checkVolumes flags negative volume and extreme spikes.
func (v *QualityValidator) checkVolumes(candles []types.Candle) []QualityIssue {
	var issues []QualityIssue

	running := decimal.Zero
	for i, c := range candles {
		if c.Volume.IsNegative() {
			issues = append(issues, QualityIssue{
				Type: "NEGATIVE_VOLUME", Severity: "critical",
				Timestamp: c.Timestamp, Index: i,
				Message: "negative volume",
			})
			continue
		}

		if i >= 20 {
			avg := running.Div(decimal.NewFromInt(int64(i)))
			if avg.IsPositive() {
				mult, _ := c.Volume.Div(avg).Float64()
				if mult > v.MaxVolumeMultiple {
					issues = append(issues, QualityIssue{
						Type: "VOLUME_SPIKE", Severity: "medium",
						Timestamp: c.Timestamp, Index: i,
						Message: fmt.Sprintf("volume %.0fx the running average", mult),
					})
				}
			}
		}
		running = running.Add(c.Volume)
	}
	return issues
}

// scoreIssues deducts from 100 by severity, weighted by series length.
func scoreIssues(total int, issues []QualityIssue) int {
	if total == 0 {
		return 0
	}

	var penalty float64
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penalty += 10
		case "high":
			penalty += 3
		default:
			penalty += 1
		}
	}

	// Scale the penalty so sparse issues in a long series matter less.
	scaled := penalty * 100 / float64(total)
	score := 100 - int(scaled)
	if score < 0 {
		score = 0
	}
	return score
}

func hasCritical(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}
