package candlecache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
	applogger "FinSignal/pkg/logger"
)

var _ repository.CandleCache = (*Cache)(nil)

const keyPrefix = "candles"

// Option configures Cache.
type Option func(*Cache)

// WithShortTTL sets the TTL used for timeframes up to one hour.
func WithShortTTL(d time.Duration) Option {
	return func(c *Cache) { c.shortTTL = d }
}

// WithLongTTL sets the TTL used for timeframes above one hour.
func WithLongTTL(d time.Duration) Option {
	return func(c *Cache) { c.longTTL = d }
}

// Cache memoizes candle windows on top of a cache.Service.
type Cache struct {
	store    cache.Service
	shortTTL time.Duration
	longTTL  time.Duration
	hits     atomic.Int64
	misses   atomic.Int64
	log      *applogger.Logger
}

// New wraps store. Failures of the underlying store count as misses.
func New(store cache.Service, log *applogger.Logger, opts ...Option) *Cache {
	if log == nil {
		log = applogger.NewNop()
	}
	c := &Cache{
		store:    store,
		shortTTL: time.Minute,
		longTTL:  5 * time.Minute,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) Get(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, bool) {
	var window []models.Candle
	if err := c.store.Get(ctx, key(symbol, tf, limit), &window); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("candle cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return window, true
}

func (c *Cache) Set(ctx context.Context, symbol string, tf repository.Timeframe, limit int, window []models.Candle) {
	if err := c.store.Set(ctx, key(symbol, tf, limit), window, c.ttlFor(tf)); err != nil {
		c.log.Warn("candle cache write failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
}

// Stats reports hit rate as a percentage and the number of provider calls avoided.
func (c *Cache) Stats() models.CacheStats {
	h, m := c.hits.Load(), c.misses.Load()
	st := models.CacheStats{Hits: h, Misses: m, CallsSaved: h}
	if total := h + m; total > 0 {
		st.HitRate = float64(h) / float64(total) * 100
	}
	return st
}

func (c *Cache) ttlFor(tf repository.Timeframe) time.Duration {
	if d := tf.Duration(); d > 0 && d <= time.Hour {
		return c.shortTTL
	}
	return c.longTTL
}

func key(symbol string, tf repository.Timeframe, limit int) string {
	return cache.GenerateKeyWithParams(keyPrefix, symbol, string(tf), limit)
}

// Fetch returns the cached window or loads it from md and caches it.
func Fetch(ctx context.Context, cc repository.CandleCache, md repository.MarketData, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	if w, ok := cc.Get(ctx, symbol, tf, limit); ok {
		return w, nil
	}
	w, err := md.GetCandles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	cc.Set(ctx, symbol, tf, limit, w)
	return w, nil
}
