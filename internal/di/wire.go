//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/binance"
	"FinSignal/internal/service/candlecache"
	"FinSignal/internal/service/correlation"
	"FinSignal/pkg/config"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideInfra,
		ProvideCacheService,

		// Market data and analysis
		ProvideMarketData,
		wire.Bind(new(repository.MarketData), new(*binance.Client)),
		ProvideCandleCache,
		wire.Bind(new(repository.CandleCache), new(*candlecache.Cache)),
		ProvideCorrelation,
		wire.Bind(new(repository.CorrelationAnalyzer), new(*correlation.Analyzer)),

		// Persistence and delivery
		ProvideSignalStore,
		ProvideNotifier,

		// Use cases
		ProvideUniverse,
		ProvideScanner,
		ProvideConfirmation,
		ProvideEngine,
		ProvideScheduler,

		// HTTP
		ProvideSignalsHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
