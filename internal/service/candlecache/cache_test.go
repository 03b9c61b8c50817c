package candlecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
)

type countingMarket struct {
	calls int
}

func (m *countingMarket) GetCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	m.calls++
	return []models.Candle{{Close: 1}, {Close: 2}}, nil
}

func (m *countingMarket) Get24hStats(ctx context.Context, symbols []string) (map[string]models.TickerStats, error) {
	return nil, nil
}

func (m *countingMarket) GetExchangeMetadata(ctx context.Context) ([]models.Instrument, error) {
	return nil, nil
}

func (m *countingMarket) GetLeverageTiers(ctx context.Context, symbol string) (models.LeverageInfo, error) {
	return models.LeverageInfo{}, nil
}

func newCache(now *time.Time) *Cache {
	store := cache.NewMemoryCache(cache.WithMemoryCleanup(0), cache.WithMemoryClock(func() time.Time { return *now }))
	return New(store, nil)
}

func TestFetchUsesCache(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	cc := newCache(&now)
	md := &countingMarket{}

	w, err := Fetch(ctx, cc, md, "AAAUSDT", repository.TF1h, 2)
	require.NoError(t, err)
	assert.Len(t, w, 2)

	w, err = Fetch(ctx, cc, md, "AAAUSDT", repository.TF1h, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, w[1].Close)
	assert.Equal(t, 1, md.calls)

	// limit is part of the key
	_, err = Fetch(ctx, cc, md, "AAAUSDT", repository.TF1h, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, md.calls)

	st := cc.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Misses)
	assert.Equal(t, int64(1), st.CallsSaved)
	assert.InDelta(t, 33.333, st.HitRate, 0.01)
}

func TestTTLDependsOnTimeframe(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	cc := newCache(&now)
	w := []models.Candle{{Close: 1}}

	cc.Set(ctx, "AAAUSDT", repository.TF1h, 1, w)
	cc.Set(ctx, "AAAUSDT", repository.TF4h, 1, w)

	now = now.Add(90 * time.Second)
	_, ok := cc.Get(ctx, "AAAUSDT", repository.TF1h, 1)
	assert.False(t, ok)
	_, ok = cc.Get(ctx, "AAAUSDT", repository.TF4h, 1)
	assert.True(t, ok)

	now = now.Add(5 * time.Minute)
	_, ok = cc.Get(ctx, "AAAUSDT", repository.TF4h, 1)
	assert.False(t, ok)
}

func TestStatsEmpty(t *testing.T) {
	now := time.Now()
	assert.Equal(t, models.CacheStats{}, newCache(&now).Stats())
}
