package data_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/candleworks/papertrader/internal/data"
	"github.com/candleworks/papertrader/pkg/types"
)

// ohlcRow renders one Kraken OHLC entry: numeric timestamp, string
// prices, numeric trade count.
func ohlcRow(ts int64, o, h, l, c, vol string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s","%s",10]`, ts, o, h, l, c, o, vol)
}

func krakenBody(rows []string, last int64) string {
	body := `{"error":[],"result":{"XXBTZUSD":[`
	for i, row := range rows {
		if i > 0 {
			body += ","
		}
		body += row
	}
	return body + fmt.Sprintf(`],"last":%d}}`, last)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*data.KrakenClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := data.NewKrakenClient(zap.NewNop(), data.KrakenConfig{
		BaseURL:   server.URL,
		PageDelay: time.Millisecond,
	})
	return client, server
}

func TestKrakenCandles(t *testing.T) {
	start := int64(1709251200) // 2024-03-01 00:00 UTC
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pair"); got != "XBTUSD" {
			t.Errorf("Pair incorrect: %s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "30" {
			t.Errorf("Interval incorrect: %s", got)
		}
		rows := []string{
			ohlcRow(start, "100.0", "101.5", "99.5", "101.0", "12.5"),
			ohlcRow(start+1800, "101.0", "102.0", "100.5", "101.5", "8.0"),
			ohlcRow(start+3600, "101.5", "101.6", "101.0", "101.2", "3.0"),
		}
		fmt.Fprint(w, krakenBody(rows, start+3600))
	})

	candles, err := client.Candles(context.Background(), "XBTUSD", types.Interval30m, time.Unix(start, 0))
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}

	// The forming candle at the head is dropped.
	if len(candles) != 2 {
		t.Fatalf("Expected 2 closed candles, got %d", len(candles))
	}

	first := candles[0]
	if !first.Timestamp.Equal(time.Unix(start, 0).UTC()) {
		t.Errorf("Timestamp incorrect: %v", first.Timestamp)
	}
	if first.Open.String() != "100" || first.High.String() != "101.5" {
		t.Errorf("Prices incorrect: open %s high %s", first.Open, first.High)
	}
	if first.Volume.String() != "12.5" {
		t.Errorf("Volume incorrect: %s", first.Volume)
	}
}

func TestKrakenPagination(t *testing.T) {
	start := int64(1709251200)
	step := int64(1800)

	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		since := r.URL.Query().Get("since")

		if requests == 1 {
			if since != fmt.Sprint(start) {
				t.Errorf("First page since incorrect: %s", since)
			}
			// A full page forces a second request.
			rows := make([]string, 720)
			for i := range rows {
				rows[i] = ohlcRow(start+int64(i)*step, "100.0", "101.0", "99.0", "100.5", "1.0")
			}
			fmt.Fprint(w, krakenBody(rows, start+719*step))
			return
		}

		if since != fmt.Sprint(start+719*step) {
			t.Errorf("Second page should resume from the cursor: %s", since)
		}
		rows := []string{
			ohlcRow(start+719*step, "100.5", "101.0", "100.0", "100.8", "1.0"),
			ohlcRow(start+720*step, "100.8", "101.2", "100.5", "101.0", "1.0"),
		}
		fmt.Fprint(w, krakenBody(rows, start+720*step))
	})

	candles, err := client.Candles(context.Background(), "XBTUSD", types.Interval30m, time.Unix(start, 0))
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if requests != 2 {
		t.Fatalf("Expected 2 requests, got %d", requests)
	}
	// 721 unique after deduping the cursor overlap, minus the forming one.
	if len(candles) != 720 {
		t.Fatalf("Expected 720 candles, got %d", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].Timestamp.After(candles[i-1].Timestamp) {
			t.Fatalf("Candles out of order at %d", i)
		}
	}
}

func TestKrakenLatest(t *testing.T) {
	now := time.Now().Unix() / 1800 * 1800
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rows := []string{
			ohlcRow(now-3600, "100.0", "101.0", "99.0", "100.5", "1.0"),
			ohlcRow(now-1800, "100.5", "101.5", "100.0", "101.0", "2.0"),
			ohlcRow(now, "101.0", "101.2", "100.8", "101.1", "0.5"),
		}
		fmt.Fprint(w, krakenBody(rows, now))
	})

	candle, err := client.Latest(context.Background(), "XBTUSD", types.Interval30m)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	// The newest entry is still forming; the one before it is returned.
	if !candle.Timestamp.Equal(time.Unix(now-1800, 0).UTC()) {
		t.Errorf("Latest returned the wrong candle: %v", candle.Timestamp)
	}
	if candle.Close.String() != "101" {
		t.Errorf("Close incorrect: %s", candle.Close)
	}
}

func TestKrakenAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EQuery:Unknown asset pair"],"result":{}}`)
	})

	if _, err := client.Candles(context.Background(), "NOPE", types.Interval30m, time.Unix(0, 0)); err == nil {
		t.Fatal("API error should propagate")
	}
}

func TestKrakenUnknownInterval(t *testing.T) {
	client := data.NewKrakenClient(zap.NewNop(), data.KrakenConfig{})
	if _, err := client.Candles(context.Background(), "XBTUSD", types.Interval("2h"), time.Unix(0, 0)); err == nil {
		t.Fatal("Unknown interval should fail")
	}
}
