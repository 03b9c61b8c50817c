package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/candlecache"
	applogger "FinSignal/pkg/logger"
)

// ScannerConfig controls timeframes, window sizes and parallelism.
type ScannerConfig struct {
	TrendTimeframe repository.Timeframe
	EntryTimeframe repository.Timeframe
	TrendBars      int
	EntryBars      int
	MaxWorkers     int
	Analysis       AnalysisConfig
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		TrendTimeframe: repository.TF4h,
		EntryTimeframe: repository.TF1h,
		TrendBars:      100,
		EntryBars:      100,
		MaxWorkers:     10,
		Analysis:       DefaultAnalysisConfig(),
	}
}

// correlationReporter is implemented by analyzers that expose the raw coefficient.
type correlationReporter interface {
	Correlation(ctx context.Context, symbol string) (float64, error)
}

// MarketScanner evaluates every instrument of the universe and emits scored candidates.
type MarketScanner struct {
	cfg     ScannerConfig
	md      repository.MarketData
	candles repository.CandleCache
	corr    repository.CorrelationAnalyzer
	scorer  *QualityScorer
	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

func NewMarketScanner(cfg ScannerConfig, md repository.MarketData, candles repository.CandleCache, corr repository.CorrelationAnalyzer, scorer *QualityScorer, metrics repository.Metrics, log *applogger.Logger) *MarketScanner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if log == nil {
		log = applogger.NewNop()
	}
	return &MarketScanner{
		cfg:     cfg,
		md:      md,
		candles: candles,
		corr:    corr,
		scorer:  scorer,
		metrics: metrics,
		log:     log.With(applogger.String("component", "scanner")),
		now:     time.Now,
	}
}

// Scan evaluates instruments concurrently. Per-instrument failures are logged and
// skipped; only cancellation of ctx is returned as an error. Candidates are
// ordered by quality score, best first.
func (s *MarketScanner) Scan(ctx context.Context, universe []models.Instrument) ([]models.CandidateSignal, error) {
	start := time.Now()
	ref, err := s.corr.GetReferenceTrend(ctx)
	if err != nil {
		s.log.Warn("reference trend unavailable", applogger.Error(err))
		ref = models.ReferenceTrend{Trend: models.TrendNeutral}
	}

	var (
		mu  sync.Mutex
		out []models.CandidateSignal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.cfg.MaxWorkers, max(len(universe), 1)))
	for _, inst := range universe {
		inst := inst
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			c, ok := s.scanOne(gctx, inst.Symbol, ref)
			if ok {
				mu.Lock()
				out = append(out, c)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return out, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].QualityScore > out[j].QualityScore })

	if s.metrics != nil {
		s.metrics.RecordScan(len(universe), len(out), time.Since(start).Seconds())
		for _, c := range out {
			s.metrics.RecordCandidate(c.Tier)
		}
		s.metrics.SetCacheHitRate(s.candles.Stats().HitRate)
	}
	st := s.candles.Stats()
	s.log.Info("scan completed",
		applogger.Int("instruments", len(universe)),
		applogger.Int("candidates", len(out)),
		applogger.Duration("elapsed", time.Since(start)),
		applogger.Float64("cache_hit_rate", st.HitRate),
		applogger.Int64("calls_saved", st.CallsSaved))
	return out, nil
}

// scanOne never panics; a panic is converted into a logged skip.
func (s *MarketScanner) scanOne(ctx context.Context, symbol string, ref models.ReferenceTrend) (c models.CandidateSignal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scan panic", applogger.String("symbol", symbol), applogger.Any("panic", r))
			if s.metrics != nil {
				s.metrics.RecordError("scan_panic")
			}
			ok = false
		}
	}()

	c, err := s.Evaluate(ctx, symbol, ref)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientData) || errors.Is(err, errFiltered) || errors.Is(err, errBelowThreshold) {
			s.log.Debug("instrument skipped", applogger.String("symbol", symbol), applogger.Error(err))
			return c, false
		}
		if ctx.Err() == nil {
			s.log.Warn("instrument evaluation failed", applogger.String("symbol", symbol), applogger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("scan")
			}
		}
		return c, false
	}
	return c, true
}

var (
	errFiltered       = errors.New("filtered by reference correlation")
	errBelowThreshold = errors.New("quality below threshold")
)

// Evaluate runs the full pipeline for one instrument.
func (s *MarketScanner) Evaluate(ctx context.Context, symbol string, ref models.ReferenceTrend) (models.CandidateSignal, error) {
	htf, err := candlecache.Fetch(ctx, s.candles, s.md, symbol, s.cfg.TrendTimeframe, s.cfg.TrendBars)
	if err != nil {
		return models.CandidateSignal{}, fmt.Errorf("trend candles: %w", err)
	}
	trend, err := AnalyzeTrend(htf, s.cfg.Analysis)
	if err != nil {
		return models.CandidateSignal{}, err
	}

	ltf, err := candlecache.Fetch(ctx, s.candles, s.md, symbol, s.cfg.EntryTimeframe, s.cfg.EntryBars)
	if err != nil {
		return models.CandidateSignal{}, fmt.Errorf("entry candles: %w", err)
	}
	entry, err := AnalyzeEntry(ltf, s.cfg.Analysis)
	if err != nil {
		return models.CandidateSignal{}, err
	}

	d := trend.Direction
	if s.corr.ShouldFilter(ctx, symbol, d) {
		return models.CandidateSignal{}, errFiltered
	}

	breakdown := s.scorer.Score(ScoreInput{
		Direction:        d,
		Trend:            trend,
		Entry:            entry,
		EntryCandles:     ltf,
		CorrelationScore: s.corr.GetCorrelationScore(ctx, symbol, d),
	})
	total := breakdown.Total()
	if !s.scorer.Accept(total) {
		return models.CandidateSignal{}, fmt.Errorf("%s score %.1f: %w", symbol, total, errBelowThreshold)
	}

	price := ltf[len(ltf)-1].Close
	target, pct := ProjectTarget(price, d, entry.ATRRatio, trend.Strength, total)

	c := models.CandidateSignal{
		Symbol:            symbol,
		Direction:         d,
		EntryPrice:        price,
		TargetPrice:       target,
		ProjectionPct:     pct,
		QualityScore:      total,
		Tier:              ClassifyTier(total),
		Breakdown:         breakdown,
		RSI:               entry.RSI,
		ReferenceTrend:    ref.Trend,
		ReferenceStrength: ref.Strength,
		TrendTimeframe:    string(s.cfg.TrendTimeframe),
		EntryTimeframe:    string(s.cfg.EntryTimeframe),
		CreatedAt:         s.now(),
	}
	if cr, ok := s.corr.(correlationReporter); ok {
		if v, err := cr.Correlation(ctx, symbol); err == nil {
			c.Correlation = v
		}
	}
	return c, nil
}
