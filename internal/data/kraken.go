// Package data fetches market candles from the Kraken public REST API
// and caches them locally for repeated backtests.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// DefaultBaseURL is the Kraken public REST endpoint.
const DefaultBaseURL = "https://api.kraken.com/0/public"

// krakenPageSize is the maximum candles Kraken returns per OHLC request.
const krakenPageSize = 720

// KrakenClient fetches OHLC candles from Kraken. The zero-value config
// talks to the production API; BaseURL and PageDelay exist for tests.
type KrakenClient struct {
	logger    *zap.Logger
	http      *http.Client
	baseURL   string
	pageDelay time.Duration
}

// KrakenConfig configures the Kraken client.
type KrakenConfig struct {
	BaseURL   string
	Timeout   time.Duration
	PageDelay time.Duration
}

// NewKrakenClient creates a Kraken OHLC client.
func NewKrakenClient(logger *zap.Logger, config KrakenConfig) *KrakenClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageDelay <= 0 {
		config.PageDelay = 500 * time.Millisecond
	}
	return &KrakenClient{
		logger:    logger,
		http:      &http.Client{Timeout: config.Timeout},
		baseURL:   config.BaseURL,
		pageDelay: config.PageDelay,
	}
}

// Candles returns closed candles for the pair from since onward, oldest
// first. Kraken pages at 720 candles, so long ranges take multiple
// requests with a polite delay between them. The still-forming candle
// at the head of the feed is dropped.
func (c *KrakenClient) Candles(ctx context.Context, pair string, interval types.Interval, since time.Time) ([]types.Candle, error) {
	if interval.Minutes() == 0 {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}

	var all []types.Candle
	cursor := since.Unix()
	for {
		page, next, err := c.fetchPage(ctx, pair, interval, cursor)
		if err != nil {
			return nil, err
		}
		for _, candle := range page {
			// Pages can overlap at the cursor boundary.
			if len(all) > 0 && !candle.Timestamp.After(all[len(all)-1].Timestamp) {
				continue
			}
			all = append(all, candle)
		}

		if len(page) < krakenPageSize || next <= cursor {
			break
		}
		cursor = next

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pageDelay):
		}
	}

	// Kraken's final entry is the current, unconfirmed candle.
	if len(all) > 0 {
		all = all[:len(all)-1]
	}

	c.logger.Debug("Fetched candles",
		zap.String("pair", pair),
		zap.String("interval", string(interval)),
		zap.Int("count", len(all)))

	return all, nil
}

// Latest returns the most recent closed candle for the pair.
func (c *KrakenClient) Latest(ctx context.Context, pair string, interval types.Interval) (types.Candle, error) {
	if interval.Minutes() == 0 {
		return types.Candle{}, fmt.Errorf("unsupported interval %q", interval)
	}

	// Ask for the last few candles only.
	span := time.Duration(interval.Minutes()) * time.Minute
	since := time.Now().Add(-3 * span).Unix()

	page, _, err := c.fetchPage(ctx, pair, interval, since)
	if err != nil {
		return types.Candle{}, err
	}
	if len(page) < 2 {
		return types.Candle{}, fmt.Errorf("no closed candle for %s %s", pair, interval)
	}
	// Last entry is still forming; the one before it is closed.
	return page[len(page)-2], nil
}

// krakenResponse is the common envelope of Kraken public endpoints.
type krakenResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

func (c *KrakenClient) fetchPage(ctx context.Context, pair string, interval types.Interval, since int64) ([]types.Candle, int64, error) {
	params := url.Values{}
	params.Set("pair", pair)
	params.Set("interval", strconv.Itoa(interval.Minutes()))
	if since > 0 {
		params.Set("since", strconv.FormatInt(since, 10))
	}

	endpoint := c.baseURL + "/OHLC?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("kraken request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("kraken returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	var envelope krakenResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, fmt.Errorf("failed to parse kraken response: %w", err)
	}
	if len(envelope.Error) > 0 {
		return nil, 0, fmt.Errorf("kraken API error: %v", envelope.Error)
	}

	var next int64
	var rows [][]any
	for key, raw := range envelope.Result {
		if key == "last" {
			var cursor json.Number
			if err := json.Unmarshal(raw, &cursor); err != nil {
				return nil, 0, fmt.Errorf("failed to parse cursor: %w", err)
			}
			next, _ = cursor.Int64()
			continue
		}
		// The remaining key is the pair's candle array.
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, 0, fmt.Errorf("failed to parse candles: %w", err)
		}
	}

	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKrakenCandle(row)
		if err != nil {
			return nil, 0, fmt.Errorf("bad candle at index %d: %w", i, err)
		}
		candles = append(candles, candle)
	}
	return candles, next, nil
}

// parseKrakenCandle converts a Kraken OHLC row. The row layout is
// [time, open, high, low, close, vwap, volume, count], with the
// timestamp as a number and the prices as strings.
func parseKrakenCandle(row []any) (types.Candle, error) {
	if len(row) < 7 {
		return types.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}

	ts, ok := row[0].(float64)
	if !ok {
		return types.Candle{}, fmt.Errorf("bad timestamp %v", row[0])
	}

	fields := make([]decimal.Decimal, 5)
	for i, idx := range []int{1, 2, 3, 4, 6} {
		d, err := parseKrakenField(row[idx])
		if err != nil {
			return types.Candle{}, fmt.Errorf("bad field %d: %w", idx, err)
		}
		fields[i] = d
	}

	return types.Candle{
		Timestamp: time.Unix(int64(ts), 0).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

func parseKrakenField(v any) (decimal.Decimal, error) {
	switch f := v.(type) {
	case string:
		return decimal.NewFromString(f)
	case float64:
		return decimal.NewFromFloat(f), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected type %T", v)
	}
}
