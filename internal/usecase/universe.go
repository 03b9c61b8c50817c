package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	applogger "FinSignal/pkg/logger"
)

const perpetualContract = "PERPETUAL"

// ErrNoEligibleInstruments marks a refresh that produced an empty universe.
var ErrNoEligibleInstruments = errors.New("no eligible instruments")

// UniverseConfig controls instrument filtering and ranking.
type UniverseConfig struct {
	QuoteAsset       string
	MinLeverage      int
	TopK             int
	VolumeWeight     float64
	VolatilityWeight float64
	// LeverageWorkers bounds concurrent leverage bracket requests.
	LeverageWorkers int
}

func DefaultUniverseConfig() UniverseConfig {
	return UniverseConfig{
		QuoteAsset:       "USDT",
		MinLeverage:      50,
		TopK:             100,
		VolumeWeight:     0.7,
		VolatilityWeight: 0.3,
		LeverageWorkers:  5,
	}
}

// UniverseSelector maintains the ranked set of instruments to scan.
type UniverseSelector struct {
	cfg     UniverseConfig
	md      repository.MarketData
	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time

	mu          sync.RWMutex
	current     []models.RankedInstrument
	lastRefresh time.Time
	leverage    map[string]int
}

func NewUniverseSelector(cfg UniverseConfig, md repository.MarketData, metrics repository.Metrics, log *applogger.Logger) *UniverseSelector {
	if log == nil {
		log = applogger.NewNop()
	}
	if cfg.LeverageWorkers <= 0 {
		cfg.LeverageWorkers = 5
	}
	return &UniverseSelector{
		cfg:      cfg,
		md:       md,
		metrics:  metrics,
		log:      log.With(applogger.String("component", "universe")),
		now:      time.Now,
		leverage: make(map[string]int),
	}
}

// Refresh rebuilds the universe. On failure the previous universe stays in place.
func (u *UniverseSelector) Refresh(ctx context.Context) ([]models.Instrument, error) {
	ranked, err := u.build(ctx)
	if err != nil {
		u.log.Warn("universe refresh failed, keeping previous", applogger.Error(err), applogger.Int("size", len(u.Current())))
		if u.metrics != nil {
			u.metrics.RecordError("universe")
		}
		return u.Current(), err
	}

	u.mu.Lock()
	u.current = ranked
	u.lastRefresh = u.now()
	u.mu.Unlock()

	if u.metrics != nil {
		u.metrics.SetUniverseSize(len(ranked))
	}
	u.log.Info("universe refreshed", applogger.Int("size", len(ranked)))
	return instrumentsOf(ranked), nil
}

func (u *UniverseSelector) build(ctx context.Context) ([]models.RankedInstrument, error) {
	meta, err := u.md.GetExchangeMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange metadata: %w", err)
	}
	eligible := make([]models.Instrument, 0, len(meta))
	for _, inst := range meta {
		if inst.IsTrading() && inst.QuoteAsset == u.cfg.QuoteAsset && inst.ContractType == perpetualContract {
			eligible = append(eligible, inst)
		}
	}

	if u.cfg.MinLeverage > 0 {
		if err := u.fillLeverage(ctx, eligible); err != nil {
			return nil, err
		}
		kept := eligible[:0]
		for _, inst := range eligible {
			if inst.MaxLeverage >= u.cfg.MinLeverage {
				kept = append(kept, inst)
			}
		}
		eligible = kept
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleInstruments
	}

	symbols := make([]string, len(eligible))
	for i, inst := range eligible {
		symbols[i] = inst.Symbol
	}
	stats, err := u.md.Get24hStats(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("24h stats: %w", err)
	}
	ranked := RankInstruments(eligible, stats, u.cfg)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("24h stats for %d symbols: %w", len(symbols), ErrNoEligibleInstruments)
	}
	return ranked, nil
}

// fillLeverage resolves max leverage for each instrument. Known values are reused.
func (u *UniverseSelector) fillLeverage(ctx context.Context, insts []models.Instrument) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.LeverageWorkers)
	for i := range insts {
		i := i
		u.mu.RLock()
		lev, ok := u.leverage[insts[i].Symbol]
		u.mu.RUnlock()
		if ok {
			insts[i].MaxLeverage = lev
			continue
		}
		g.Go(func() error {
			info, err := u.md.GetLeverageTiers(gctx, insts[i].Symbol)
			if err != nil {
				return fmt.Errorf("leverage %s: %w", insts[i].Symbol, err)
			}
			insts[i].MaxLeverage = info.MaxLeverage
			u.mu.Lock()
			u.leverage[insts[i].Symbol] = info.MaxLeverage
			u.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// RankInstruments scores instruments with min-max normalized log volume and
// absolute price change, then keeps the top K. Instruments without stats are dropped.
func RankInstruments(insts []models.Instrument, stats map[string]models.TickerStats, cfg UniverseConfig) []models.RankedInstrument {
	ranked := make([]models.RankedInstrument, 0, len(insts))
	for _, inst := range insts {
		st, ok := stats[inst.Symbol]
		if !ok {
			continue
		}
		ranked = append(ranked, models.RankedInstrument{
			Instrument: inst,
			Volume:     st.QuoteVolume,
			Volatility: math.Abs(st.PriceChangePercent),
		})
	}
	if len(ranked) == 0 {
		return ranked
	}

	vols := make([]float64, len(ranked))
	chg := make([]float64, len(ranked))
	for i, r := range ranked {
		vols[i] = math.Log10(math.Max(r.Volume, 0) + 1)
		chg[i] = r.Volatility
	}
	normalize(vols)
	normalize(chg)
	for i := range ranked {
		ranked[i].Score = cfg.VolumeWeight*vols[i] + cfg.VolatilityWeight*chg[i]
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if cfg.TopK > 0 && len(ranked) > cfg.TopK {
		ranked = ranked[:cfg.TopK]
	}
	return ranked
}

// normalize rescales xs to 0..1 in place. A constant series maps to 0.
func normalize(xs []float64) {
	lo, hi := floats.Min(xs), floats.Max(xs)
	span := hi - lo
	for i := range xs {
		if span == 0 {
			xs[i] = 0
			continue
		}
		xs[i] = (xs[i] - lo) / span
	}
}

// Current returns a copy of the active universe.
func (u *UniverseSelector) Current() []models.Instrument {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return instrumentsOf(u.current)
}

// Ranked returns a copy of the active universe with ranking scores.
func (u *UniverseSelector) Ranked() []models.RankedInstrument {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]models.RankedInstrument, len(u.current))
	copy(out, u.current)
	return out
}

func (u *UniverseSelector) LastRefresh() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastRefresh
}

func instrumentsOf(ranked []models.RankedInstrument) []models.Instrument {
	out := make([]models.Instrument, len(ranked))
	for i, r := range ranked {
		out[i] = r.Instrument
	}
	return out
}
