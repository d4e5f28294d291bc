package data_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/data"
	"github.com/candleworks/papertrader/pkg/types"
)

func hasIssue(report *data.QualityReport, issueType string) bool {
	for _, issue := range report.Issues {
		if issue.Type == issueType {
			return true
		}
	}
	return false
}

func TestQualityCleanSeries(t *testing.T) {
	v := data.NewQualityValidator(zap.NewNop())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	report := v.Validate("XBTUSD", types.Interval30m, testCandles(start, 100))
	if !report.Usable {
		t.Fatalf("Clean series should be usable, score %d, issues %v", report.Score, report.Issues)
	}
	if report.Score != 100 {
		t.Errorf("Clean series should score 100, got %d", report.Score)
	}
	if report.TotalBars != 100 {
		t.Errorf("TotalBars incorrect: %d", report.TotalBars)
	}
}

func TestQualityEmptySeries(t *testing.T) {
	v := data.NewQualityValidator(zap.NewNop())

	report := v.Validate("XBTUSD", types.Interval30m, nil)
	if report.Usable {
		t.Error("Empty series should not be usable")
	}
	if !hasIssue(report, "NO_DATA") {
		t.Error("Empty series should report NO_DATA")
	}
}

func TestQualityDetectsGapsAndBadBars(t *testing.T) {
	v := data.NewQualityValidator(zap.NewNop())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles(start, 30)

	// Tear a 6-hour hole in the series.
	for i := 20; i < len(candles); i++ {
		candles[i].Timestamp = candles[i].Timestamp.Add(6 * time.Hour)
	}
	// Break one bar's OHLC relation.
	candles[10].High = candles[10].Low.Sub(decimal.NewFromInt(1))

	report := v.Validate("XBTUSD", types.Interval30m, candles)
	if !hasIssue(report, "GAP_DETECTED") {
		t.Error("Gap should be detected")
	}
	if !hasIssue(report, "OHLC_INCONSISTENT") {
		t.Error("Broken OHLC bar should be detected")
	}
	if report.Usable {
		t.Error("Series with a critical issue should not be usable")
	}
}

func TestQualityExtremeMove(t *testing.T) {
	v := data.NewQualityValidator(zap.NewNop())
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles(start, 30)

	// One candle spanning half its own low.
	candles[15].High = candles[15].Low.Mul(decimal.NewFromFloat(1.5))

	report := v.Validate("XBTUSD", types.Interval30m, candles)
	if !hasIssue(report, "EXTREME_MOVE") {
		t.Error("Extreme intrabar move should be detected")
	}
}
