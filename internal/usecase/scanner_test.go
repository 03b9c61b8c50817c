package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

type scannerFixture struct {
	s       *MarketScanner
	md      *fakeMarket
	corr    *fakeCorr
	cache   *mapCandleCache
	metrics *recordingMetrics
}

func newScannerFixture(minScore float64) *scannerFixture {
	f := &scannerFixture{
		md:      newFakeMarket(),
		corr:    &fakeCorr{ref: bullish, score: 25, filter: map[string]bool{}},
		cache:   newMapCandleCache(),
		metrics: newRecordingMetrics(),
	}
	f.s = NewMarketScanner(DefaultScannerConfig(), f.md, f.cache, f.corr, NewQualityScorer(minScore), f.metrics, nil)
	f.s.now = func() time.Time { return t0 }
	return f
}

func instruments(symbols ...string) []models.Instrument {
	out := make([]models.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = models.Instrument{Symbol: s, QuoteAsset: "USDT", ContractType: "PERPETUAL", Status: "TRADING"}
	}
	return out
}

func TestScanEmitsCandidatesAndSkipsFailures(t *testing.T) {
	f := newScannerFixture(0)
	f.md.candles["AAAUSDT"] = series(100, 100, 0.01)
	f.md.candles["BBBUSDT"] = series(10, 100, 0.01)
	f.md.candleErr["CCCUSDT"] = errors.New("exchange down")
	f.md.candles["DDDUSDT"] = series(100, 50, 0.01)
	f.md.panicOn = "EEEUSDT"
	f.corr.filter["DDDUSDT"] = true

	out, err := f.s.Scan(context.Background(), instruments("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, "AAAUSDT", c.Symbol)
	assert.Equal(t, models.Long, c.Direction)
	assert.InDelta(t, c.Breakdown.Total(), c.QualityScore, 1e-9)
	assert.Equal(t, ClassifyTier(c.QualityScore), c.Tier)
	assert.Equal(t, f.md.candles["AAAUSDT"][99].Close, c.EntryPrice)
	assert.Greater(t, c.TargetPrice, c.EntryPrice)
	assert.GreaterOrEqual(t, c.ProjectionPct, BaseProjectionPct)
	assert.Equal(t, models.TrendBullish, c.ReferenceTrend)
	assert.Equal(t, 25.0, c.Breakdown.Correlation)
	assert.Equal(t, "4h", c.TrendTimeframe)
	assert.Equal(t, "1h", c.EntryTimeframe)
	assert.Equal(t, t0, c.CreatedAt)

	assert.Equal(t, 1, f.metrics.scans)
	assert.Equal(t, 1, f.metrics.errors["scan"])
	assert.Equal(t, 1, f.metrics.errors["scan_panic"])
}

// Higher timeframe about 2% above a rising EMA20; lower timeframe pulled back
// to an RSI near 40 with the last five bars at 1.3x the 20-bar volume.
func TestScanStrongLongSetupIsTopTier(t *testing.T) {
	f := newScannerFixture(0)

	closes := []float64{100}
	for i := 0; i < 69; i++ {
		closes = append(closes, closes[len(closes)-1]*1.004)
	}
	for i := 0; i < 28; i++ {
		step := 1.002
		if i%2 == 0 {
			step = 0.995
		}
		closes = append(closes, closes[len(closes)-1]*step)
	}
	for i := 0; i < 2; i++ {
		closes = append(closes, closes[len(closes)-1]*1.001)
	}
	volumes := make([]float64, len(closes))
	for i := range volumes {
		switch {
		case i >= 95:
			volumes[i] = 1300
		case i >= 80:
			volumes[i] = 900
		default:
			volumes[i] = 1000
		}
	}
	f.md.byTimeframe = map[repository.Timeframe]map[string][]models.Candle{
		repository.TF4h: {"AAAUSDT": series(100, 100, 0.0021)},
		repository.TF1h: {"AAAUSDT": bars(closes, volumes)},
	}

	out, err := f.s.Scan(context.Background(), instruments("AAAUSDT"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	c := out[0]
	assert.Equal(t, models.Long, c.Direction)
	assert.InDelta(t, 40, c.RSI, 5)
	assert.Contains(t, []models.Tier{models.TierElite, models.TierElitePlus}, c.Tier, "score %.2f", c.QualityScore)
	assert.GreaterOrEqual(t, c.TargetPrice, c.EntryPrice*1.06)
	assert.Equal(t, closes[len(closes)-1], c.EntryPrice)
	assert.Equal(t, 25.0, c.Breakdown.Entry)
	assert.Equal(t, 20.0, c.Breakdown.Oscillator)
}

func TestScanUsesCandleCache(t *testing.T) {
	f := newScannerFixture(0)
	f.md.candles["AAAUSDT"] = series(100, 100, 0.01)
	ctx := context.Background()

	_, err := f.s.Scan(ctx, instruments("AAAUSDT"))
	require.NoError(t, err)
	calls := f.md.candleCalls

	_, err = f.s.Scan(ctx, instruments("AAAUSDT"))
	require.NoError(t, err)
	assert.Equal(t, calls, f.md.candleCalls)
	assert.Equal(t, int64(2), f.cache.Stats().Hits)
}

func TestScanThresholdAndOrdering(t *testing.T) {
	f := newScannerFixture(0)
	f.md.candles["AAAUSDT"] = series(100, 100, 0.01)
	f.md.candles["BBBUSDT"] = series(100, 100, -0.01)
	f.md.candles["CCCUSDT"] = series(100, 100, 0.005)

	out, err := f.s.Scan(context.Background(), instruments("AAAUSDT", "BBBUSDT", "CCCUSDT"))
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].QualityScore, out[i].QualityScore)
	}

	strict := newScannerFixture(MaxQualityScore + 1)
	strict.md.candles = f.md.candles
	out, err = strict.s.Scan(context.Background(), instruments("AAAUSDT", "BBBUSDT", "CCCUSDT"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScanReferenceFailureFallsBackToNeutral(t *testing.T) {
	f := newScannerFixture(0)
	f.corr.refErr = errors.New("no reference")
	f.md.candles["AAAUSDT"] = series(100, 100, 0.01)

	out, err := f.s.Scan(context.Background(), instruments("AAAUSDT"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.TrendNeutral, out[0].ReferenceTrend)
}

func TestScanCancelled(t *testing.T) {
	f := newScannerFixture(0)
	f.md.candles["AAAUSDT"] = series(100, 100, 0.01)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.s.Scan(ctx, instruments("AAAUSDT"))
	assert.ErrorIs(t, err, context.Canceled)
}
