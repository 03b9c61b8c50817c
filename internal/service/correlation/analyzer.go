package correlation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/candlecache"
	"FinSignal/internal/services/features"
	applogger "FinSignal/pkg/logger"
)

var _ repository.CorrelationAnalyzer = (*Analyzer)(nil)

// Config controls the reference asset analysis.
type Config struct {
	ReferenceSymbol   string
	TrendTimeframe    repository.Timeframe
	TrendBars         int
	ReturnsTimeframe  repository.Timeframe
	ReturnsBars       int
	ReferenceTTL      time.Duration
	NeutralBand       float64
	FilterStrength    float64
	FilterCorrelation float64
}

func DefaultConfig() Config {
	return Config{
		ReferenceSymbol:   "BTCUSDT",
		TrendTimeframe:    repository.TF4h,
		TrendBars:         100,
		ReturnsTimeframe:  repository.TF1h,
		ReturnsBars:       100,
		ReferenceTTL:      5 * time.Minute,
		NeutralBand:       0.002,
		FilterStrength:    0.7,
		FilterCorrelation: 0.7,
	}
}

// Analyzer relates instruments to a reference asset.
type Analyzer struct {
	cfg     Config
	md      repository.MarketData
	candles repository.CandleCache
	log     *applogger.Logger
	now     func() time.Time

	mu       sync.Mutex
	ref      models.ReferenceTrend
	refValid bool
}

func New(cfg Config, md repository.MarketData, candles repository.CandleCache, log *applogger.Logger) *Analyzer {
	if log == nil {
		log = applogger.NewNop()
	}
	return &Analyzer{
		cfg:     cfg,
		md:      md,
		candles: candles,
		log:     log.With(applogger.String("component", "correlation")),
		now:     time.Now,
	}
}

// GetReferenceTrend returns the memoized reference trend, recomputing it after ReferenceTTL.
func (a *Analyzer) GetReferenceTrend(ctx context.Context) (models.ReferenceTrend, error) {
	a.mu.Lock()
	if a.refValid && a.now().Sub(a.ref.UpdatedAt) < a.cfg.ReferenceTTL {
		ref := a.ref
		a.mu.Unlock()
		return ref, nil
	}
	a.mu.Unlock()

	window, err := candlecache.Fetch(ctx, a.candles, a.md, a.cfg.ReferenceSymbol, a.cfg.TrendTimeframe, a.cfg.TrendBars)
	if err != nil {
		return models.ReferenceTrend{}, fmt.Errorf("reference candles: %w", err)
	}
	ref, err := ClassifyTrend(features.Closes(window), a.cfg.NeutralBand)
	if err != nil {
		return models.ReferenceTrend{}, err
	}
	ref.Symbol = a.cfg.ReferenceSymbol
	ref.UpdatedAt = a.now()

	a.mu.Lock()
	a.ref, a.refValid = ref, true
	a.mu.Unlock()
	a.log.Debug("reference trend updated",
		applogger.String("trend", string(ref.Trend)),
		applogger.Float64("strength", ref.Strength))
	return ref, nil
}

// ClassifyTrend labels closes by the relative separation of EMA20 and EMA50.
func ClassifyTrend(closes []float64, neutralBand float64) (models.ReferenceTrend, error) {
	if len(closes) < 50 {
		return models.ReferenceTrend{}, fmt.Errorf("reference: %d bars: %w", len(closes), repository.ErrInsufficientData)
	}
	ema20 := talib.Ema(closes, 20)
	ema50 := talib.Ema(closes, 50)
	short, long := ema20[len(ema20)-1], ema50[len(ema50)-1]
	if long == 0 {
		return models.ReferenceTrend{Trend: models.TrendNeutral}, nil
	}
	sep := (short - long) / long
	ref := models.ReferenceTrend{
		Trend:    models.TrendNeutral,
		Strength: math.Min(math.Abs(sep)*50, 1),
	}
	switch {
	case sep > neutralBand:
		ref.Trend = models.TrendBullish
	case sep < -neutralBand:
		ref.Trend = models.TrendBearish
	}
	return ref, nil
}

// Correlation is the Pearson coefficient of log returns of symbol and the reference.
func (a *Analyzer) Correlation(ctx context.Context, symbol string) (float64, error) {
	if symbol == a.cfg.ReferenceSymbol {
		return 1, nil
	}
	sym, err := candlecache.Fetch(ctx, a.candles, a.md, symbol, a.cfg.ReturnsTimeframe, a.cfg.ReturnsBars)
	if err != nil {
		return 0, err
	}
	ref, err := candlecache.Fetch(ctx, a.candles, a.md, a.cfg.ReferenceSymbol, a.cfg.ReturnsTimeframe, a.cfg.ReturnsBars)
	if err != nil {
		return 0, err
	}
	xs, ys := features.AlignCloses(sym, ref)
	return Pearson(features.ComputeLogReturns(xs), features.ComputeLogReturns(ys)), nil
}

// Pearson returns the correlation of equally long series, 0 when undefined.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 3 {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

// GetCorrelationScore returns the 0..30 correlation sub-score for d.
// Data failures yield the neutral score.
func (a *Analyzer) GetCorrelationScore(ctx context.Context, symbol string, d models.Direction) float64 {
	ref, err := a.GetReferenceTrend(ctx)
	if err != nil {
		a.log.Debug("reference unavailable, neutral correlation score", applogger.Error(err))
		ref = models.ReferenceTrend{Trend: models.TrendNeutral}
	}
	corr, err := a.Correlation(ctx, symbol)
	if err != nil {
		a.log.Debug("correlation unavailable", applogger.String("symbol", symbol), applogger.Error(err))
		corr = 0
	}
	return Score(ref, corr, d)
}

// Score combines reference direction, strength and correlation.
func Score(ref models.ReferenceTrend, corr float64, d models.Direction) float64 {
	c := math.Min(math.Abs(corr), 1)
	s := math.Min(math.Max(ref.Strength, 0), 1)
	switch {
	case ref.Supports(d):
		return 10 + 10*s + 10*c
	case ref.Opposes(d):
		return 10 * (1 - c) * (1 - s)
	default:
		return 10 + 5*(1-c)
	}
}

// ShouldFilter drops setups that fight a strong reference trend they are highly correlated with.
func (a *Analyzer) ShouldFilter(ctx context.Context, symbol string, d models.Direction) bool {
	ref, err := a.GetReferenceTrend(ctx)
	if err != nil || !ref.Opposes(d) || ref.Strength < a.cfg.FilterStrength {
		return false
	}
	corr, err := a.Correlation(ctx, symbol)
	if err != nil {
		return false
	}
	return corr >= a.cfg.FilterCorrelation
}
