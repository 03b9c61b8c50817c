package repository

import (
	"context"
	"errors"

	"FinSignal/internal/domain/models"
)

var (
	// ErrInsufficientData marks a candle window too short for analysis.
	ErrInsufficientData = errors.New("insufficient market data")
	// ErrSignalNotFound is returned when an id is not in the pending pool.
	ErrSignalNotFound = errors.New("signal not found")
)

// MarketData is the exchange data provider.
type MarketData interface {
	GetCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
	Get24hStats(ctx context.Context, symbols []string) (map[string]models.TickerStats, error)
	GetExchangeMetadata(ctx context.Context) ([]models.Instrument, error)
	GetLeverageTiers(ctx context.Context, symbol string) (models.LeverageInfo, error)
}

// CandleCache memoizes candle windows keyed by (symbol, timeframe, limit).
type CandleCache interface {
	Get(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, bool)
	Set(ctx context.Context, symbol string, tf Timeframe, limit int, window []models.Candle)
	Stats() models.CacheStats
}

// CorrelationAnalyzer relates instruments to the reference asset.
type CorrelationAnalyzer interface {
	GetReferenceTrend(ctx context.Context) (models.ReferenceTrend, error)
	GetCorrelationScore(ctx context.Context, symbol string, d models.Direction) float64
	ShouldFilter(ctx context.Context, symbol string, d models.Direction) bool
}

// SignalStore persists the signal lifecycle.
type SignalStore interface {
	SaveCandidate(ctx context.Context, s models.PendingSignal) error
	SaveConfirmed(ctx context.Context, s models.ConfirmedSignal) error
	SaveRejected(ctx context.Context, s models.RejectedSignal) error
	ListPending(ctx context.Context) ([]models.PendingSignal, error)
	ListConfirmed(ctx context.Context, limit int) ([]models.ConfirmedSignal, error)
	ListRejected(ctx context.Context, limit int) ([]models.RejectedSignal, error)
}

// Notifier delivers confirmed signals. Callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, s models.ConfirmedSignal) error
}

// Metrics records engine activity.
type Metrics interface {
	RecordScan(instruments, candidates int, seconds float64)
	RecordCandidate(tier models.Tier)
	RecordDecision(status models.Status)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	SetUniverseSize(n int)
	SetPending(n int)
	SetCacheHitRate(rate float64)
}
