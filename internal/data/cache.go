package data

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/candleworks/papertrader/pkg/types"
)

// Cache persists fetched candles as JSON files, one per pair and
// interval, so repeated backtests over the same range skip the network.
// It satisfies the same interface as the client it wraps.
type Cache struct {
	mu     sync.Mutex
	logger *zap.Logger
	dir    string
	source CandleFetcher
}

// CandleFetcher is the upstream the cache falls back to.
type CandleFetcher interface {
	Candles(ctx context.Context, pair string, interval types.Interval, since time.Time) ([]types.Candle, error)
	Latest(ctx context.Context, pair string, interval types.Interval) (types.Candle, error)
}

// NewCache creates a candle cache rooted at dir.
func NewCache(logger *zap.Logger, dir string, source CandleFetcher) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{logger: logger, dir: dir, source: source}, nil
}

// Candles returns cached candles when the cached range covers since,
// fetching and persisting otherwise.
func (c *Cache) Candles(ctx context.Context, pair string, interval types.Interval, since time.Time) ([]types.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached, err := c.load(pair, interval)
	if err == nil && len(cached) > 0 && !cached[0].Timestamp.After(since) {
		c.logger.Debug("Serving candles from cache",
			zap.String("pair", pair),
			zap.String("interval", string(interval)),
			zap.Int("count", len(cached)))
		return filterSince(cached, since), nil
	}

	candles, err := c.source.Candles(ctx, pair, interval, since)
	if err != nil {
		return nil, err
	}
	if err := c.save(pair, interval, candles); err != nil {
		c.logger.Warn("Failed to persist candle cache", zap.Error(err))
	}
	return candles, nil
}

// Latest always goes to the upstream; the newest candle is never cached.
func (c *Cache) Latest(ctx context.Context, pair string, interval types.Interval) (types.Candle, error) {
	return c.source.Latest(ctx, pair, interval)
}

// Invalidate removes the cached file for a pair and interval.
func (c *Cache) Invalidate(pair string, interval types.Interval) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(pair, interval))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *Cache) path(pair string, interval types.Interval) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s_%s.json", pair, interval))
}

func (c *Cache) load(pair string, interval types.Interval) ([]types.Candle, error) {
	raw, err := os.ReadFile(c.path(pair, interval))
	if err != nil {
		return nil, err
	}

	var candles []types.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, fmt.Errorf("corrupt cache file: %w", err)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

func (c *Cache) save(pair string, interval types.Interval, candles []types.Candle) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path(pair, interval), raw, 0644)
}

func filterSince(candles []types.Candle, since time.Time) []types.Candle {
	idx := sort.Search(len(candles), func(i int) bool {
		return !candles[i].Timestamp.Before(since)
	})
	return candles[idx:]
}
