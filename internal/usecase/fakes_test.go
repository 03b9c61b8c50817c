package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// series builds n bars whose close grows by step per bar (geometric).
func series(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, n)
	prev := start
	for i := range out {
		c := start * math.Pow(1+step, float64(i))
		out[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     prev,
			High:     math.Max(prev, c) * 1.002,
			Low:      math.Min(prev, c) * 0.998,
			Close:    c,
			Volume:   1000,
		}
		prev = c
	}
	return out
}

// bars builds candles from closes and volumes of equal length.
func bars(closes, volumes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i := range closes {
		out[i] = models.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     closes[i],
			High:     closes[i] * 1.001,
			Low:      closes[i] * 0.999,
			Close:    closes[i],
			Volume:   volumes[i],
		}
	}
	return out
}

type fakeMarket struct {
	mu            sync.Mutex
	candles       map[string][]models.Candle
	byTimeframe   map[repository.Timeframe]map[string][]models.Candle
	candleErr     map[string]error
	panicOn       string
	stats         map[string]models.TickerStats
	statsErr      error
	meta          []models.Instrument
	metaErr       error
	leverage      map[string]int
	leverageCalls int
	candleCalls   int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		candles:   make(map[string][]models.Candle),
		candleErr: make(map[string]error),
		stats:     make(map[string]models.TickerStats),
		leverage:  make(map[string]int),
	}
}

func (f *fakeMarket) GetCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candleCalls++
	if symbol == f.panicOn {
		panic("boom")
	}
	if err := f.candleErr[symbol]; err != nil {
		return nil, err
	}
	c, ok := f.byTimeframe[tf][symbol]
	if !ok {
		c = f.candles[symbol]
	}
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	return append([]models.Candle(nil), c...), nil
}

func (f *fakeMarket) Get24hStats(ctx context.Context, symbols []string) (map[string]models.TickerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	out := make(map[string]models.TickerStats)
	if len(symbols) == 0 {
		for k, v := range f.stats {
			out[k] = v
		}
		return out, nil
	}
	for _, s := range symbols {
		if st, ok := f.stats[s]; ok {
			out[s] = st
		}
	}
	return out, nil
}

func (f *fakeMarket) GetExchangeMetadata(ctx context.Context) ([]models.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return append([]models.Instrument(nil), f.meta...), nil
}

func (f *fakeMarket) GetLeverageTiers(ctx context.Context, symbol string) (models.LeverageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls++
	lev, ok := f.leverage[symbol]
	if !ok {
		return models.LeverageInfo{}, errors.New("no brackets")
	}
	return models.LeverageInfo{Symbol: symbol, MaxLeverage: lev}, nil
}

func (f *fakeMarket) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stats[symbol]
	st.Symbol = symbol
	st.LastPrice = price
	f.stats[symbol] = st
}

type fakeCorr struct {
	ref    models.ReferenceTrend
	refErr error
	score  float64
	filter map[string]bool
}

func (f *fakeCorr) GetReferenceTrend(ctx context.Context) (models.ReferenceTrend, error) {
	return f.ref, f.refErr
}

func (f *fakeCorr) GetCorrelationScore(ctx context.Context, symbol string, d models.Direction) float64 {
	return f.score
}

func (f *fakeCorr) ShouldFilter(ctx context.Context, symbol string, d models.Direction) bool {
	return f.filter[symbol]
}

type mapCandleCache struct {
	mu     sync.Mutex
	m      map[string][]models.Candle
	hits   int64
	misses int64
}

func newMapCandleCache() *mapCandleCache {
	return &mapCandleCache{m: make(map[string][]models.Candle)}
}

func cacheKey(symbol string, tf repository.Timeframe, limit int) string {
	return fmt.Sprintf("%s|%s|%d", symbol, tf, limit)
}

func (c *mapCandleCache) Get(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.m[cacheKey(symbol, tf, limit)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return w, ok
}

func (c *mapCandleCache) Set(ctx context.Context, symbol string, tf repository.Timeframe, limit int, window []models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[cacheKey(symbol, tf, limit)] = window
}

func (c *mapCandleCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := models.CacheStats{Hits: c.hits, Misses: c.misses, CallsSaved: c.hits}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total) * 100
	}
	return st
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.ConfirmedSignal
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, s models.ConfirmedSignal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type recordingMetrics struct {
	mu        sync.Mutex
	scans     int
	decisions map[models.Status]int
	errors    map[string]int
	pending   int
	universe  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{decisions: make(map[models.Status]int), errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordScan(instruments, candidates int, seconds float64) {
	m.mu.Lock()
	m.scans++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordCandidate(models.Tier) {}
func (m *recordingMetrics) RecordDecision(s models.Status) {
	m.mu.Lock()
	m.decisions[s]++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordLatency(string, float64) {}
func (m *recordingMetrics) SetUniverseSize(n int) {
	m.mu.Lock()
	m.universe = n
	m.mu.Unlock()
}
func (m *recordingMetrics) SetPending(n int) {
	m.mu.Lock()
	m.pending = n
	m.mu.Unlock()
}
func (m *recordingMetrics) SetCacheHitRate(float64) {}
