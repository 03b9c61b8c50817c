package di

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/repository"
	"FinSignal/internal/handler/api"
	internalrepo "FinSignal/internal/repository"
	"FinSignal/internal/service/binance"
	"FinSignal/internal/service/candlecache"
	"FinSignal/internal/service/correlation"
	"FinSignal/internal/service/telegram"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/scheduler"
	"FinSignal/pkg/server"
	"FinSignal/pkg/util"
)

// Infra holds the optional infrastructure clients. Disabled backends are nil.
type Infra struct {
	Cache      cache.Service
	Memory     *cache.MemoryCache
	Redis      *cache.RedisCache
	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
}

// Closers lists the clients to release on shutdown, producers first.
func (in *Infra) Closers() []server.Closer {
	var out []server.Closer
	if in.Producer != nil {
		out = append(out, server.Closer{Name: "kafka", Closer: in.Producer})
	}
	if in.ClickHouse != nil {
		out = append(out, server.Closer{Name: "clickhouse", Closer: in.ClickHouse})
	}
	if in.Redis != nil {
		out = append(out, server.Closer{Name: "redis", Closer: in.Redis})
	}
	if in.Memory != nil {
		out = append(out, server.Closer{Name: "memory-cache", Closer: in.Memory})
	}
	return out
}

func (in *Infra) close() {
	for _, c := range in.Closers() {
		_ = c.Close()
	}
}

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideInfra connects every enabled backend. A failure closes whatever was
// already opened.
func ProvideInfra(cfg *config.Config, log *applogger.Logger) (*Infra, error) {
	in := &Infra{}
	in.Memory = cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxSize))
	in.Cache = in.Memory

	if cfg.Cache.Type == "layered" {
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 30*time.Second),
		)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		in.Redis = rc
		in.Cache = cache.NewLayeredCache(in.Memory, rc, cfg.Cache.L1TTL)
		log.Info("cache: layered", applogger.String("redis", cfg.Cache.Redis.Addr))
	}

	if cfg.Store.Backend == "clickhouse" {
		ch, err := ProvideClickHouseClient(cfg)
		if err != nil {
			in.close()
			return nil, err
		}
		in.ClickHouse = ch
		log.Info("clickhouse: connected and schema ready", applogger.String("database", cfg.ClickHouse.Database))
	}

	if cfg.Kafka.Enabled {
		p, err := ProvideKafkaProducer(cfg)
		if err != nil {
			in.close()
			return nil, err
		}
		in.Producer = p
		log.Info("kafka: producer ready",
			applogger.Strings("brokers", cfg.Kafka.Brokers),
			applogger.String("topic", cfg.Kafka.Topic))
	}
	return in, nil
}

// ProvideClickHouseClient opens the pool and creates the signal tables.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithConnMaxLifetime(cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, internalrepo.SignalSchema()...)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the producer for confirmed signal events.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatching(1, cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithSource("finsignal"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideCacheService(in *Infra) cache.Service { return in.Cache }

func ProvideCandleCache(cfg *config.Config, store cache.Service, log *applogger.Logger) *candlecache.Cache {
	return candlecache.New(store, log.With(applogger.String("component", "candlecache")),
		candlecache.WithShortTTL(cfg.Cache.ShortTTL),
		candlecache.WithLongTTL(cfg.Cache.LongTTL),
	)
}

// ProvideMarketData creates the Binance futures client.
func ProvideMarketData(cfg *config.Config, log *applogger.Logger) *binance.Client {
	return binance.NewClient(binance.Config{
		APIKey:      cfg.Binance.APIKey,
		APISecret:   cfg.Binance.APISecret,
		Testnet:     cfg.Binance.Testnet,
		MaxRetries:  cfg.Binance.MaxRetries,
		RetryMin:    cfg.Binance.RetryMin,
		RetryMax:    cfg.Binance.RetryMax,
		RateBurst:   float64(cfg.Binance.RateBurst),
		RatePerSec:  cfg.Binance.RatePerSec,
		CallTimeout: cfg.Binance.CallTimeout,
	}, log.With(applogger.String("component", "binance")))
}

func ProvideCorrelation(cfg *config.Config, md repository.MarketData, candles repository.CandleCache, log *applogger.Logger) *correlation.Analyzer {
	c := correlation.DefaultConfig()
	c.ReferenceSymbol = cfg.Correlation.ReferenceSymbol
	c.TrendTimeframe = repository.Timeframe(cfg.Correlation.TrendTimeframe)
	c.TrendBars = cfg.Correlation.Bars
	c.ReturnsTimeframe = repository.Timeframe(cfg.Correlation.ReturnTimeframe)
	c.ReturnsBars = cfg.Correlation.Bars
	c.ReferenceTTL = cfg.Correlation.ReferenceTTL
	c.FilterStrength = cfg.Correlation.FilterStrength
	c.FilterCorrelation = cfg.Correlation.FilterCorr
	return correlation.New(c, md, candles, log.With(applogger.String("component", "correlation")))
}

func ProvideUniverse(cfg *config.Config, md repository.MarketData, m repository.Metrics, log *applogger.Logger) *usecase.UniverseSelector {
	return usecase.NewUniverseSelector(usecase.UniverseConfig{
		QuoteAsset:       cfg.Universe.QuoteAsset,
		MinLeverage:      cfg.Universe.MinLeverage,
		TopK:             cfg.Universe.TopK,
		VolumeWeight:     cfg.Universe.VolumeWeight,
		VolatilityWeight: cfg.Universe.VolatilityWeight,
		LeverageWorkers:  cfg.Universe.LeverageWorkers,
	}, md, m, log.With(applogger.String("component", "universe")))
}

func ProvideScanner(
	cfg *config.Config,
	md repository.MarketData,
	candles repository.CandleCache,
	corr repository.CorrelationAnalyzer,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.MarketScanner {
	sc := usecase.DefaultScannerConfig()
	sc.TrendTimeframe = repository.Timeframe(cfg.Scanner.TrendTimeframe)
	sc.EntryTimeframe = repository.Timeframe(cfg.Scanner.EntryTimeframe)
	sc.TrendBars = cfg.Scanner.Bars
	sc.EntryBars = cfg.Scanner.Bars
	sc.MaxWorkers = cfg.Scanner.MaxWorkers
	scorer := usecase.NewQualityScorer(cfg.Scanner.MinScore)
	return usecase.NewMarketScanner(sc, md, candles, corr, scorer, m, log.With(applogger.String("component", "scanner")))
}

// ProvideSignalStore picks the persistence backend.
func ProvideSignalStore(cfg *config.Config, in *Infra, log *applogger.Logger) repository.SignalStore {
	if in.ClickHouse != nil {
		return internalrepo.NewCHSignalStore(in.ClickHouse, log.With(applogger.String("component", "signal-store")))
	}
	return internalrepo.NewMemorySignalStore(cfg.Store.Limit)
}

// ProvideNotifier fans confirmed signals out to every enabled sink. It
// returns nil when no sink is configured.
func ProvideNotifier(cfg *config.Config, in *Infra, log *applogger.Logger) (repository.Notifier, error) {
	var sinks internalrepo.MultiNotifier
	if in.Producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaNotifier(in.Producer, cfg.Kafka.Topic))
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	if len(sinks) == 0 {
		log.Warn("no notifier configured, confirmed signals are only logged")
		return nil, nil
	}
	return sinks, nil
}

func ProvideConfirmation(
	cfg *config.Config,
	md repository.MarketData,
	corr repository.CorrelationAnalyzer,
	store repository.SignalStore,
	notifier repository.Notifier,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.ConfirmationManager {
	cc := cfg.Confirmation
	return usecase.NewConfirmationManager(usecase.ConfirmationConfig{
		Timeout:       cc.Timeout,
		CheckInterval: cc.CheckInterval,
		MaxAttempts:   cc.MaxAttempts,
		Timeframe:     repository.Timeframe(cc.Timeframe),
		Bars:          cc.Bars,
		HistoryLimit:  cc.HistoryLimit,
		Location:      util.LoadLocation(cc.Timezone),
		Criteria: usecase.CriteriaConfig{
			BreakoutPct:       cc.BreakoutPct,
			ReversalPct:       cc.ReversalPct,
			VolumeConfirm:     cc.VolumeConfirm,
			VolumeReject:      cc.VolumeReject,
			ReferenceStrength: cc.ReferenceStrength,
			ConfirmVotes:      cc.ConfirmVotes,
			RejectVotes:       cc.RejectVotes,
		},
	}, md, corr, store, notifier, m, log.With(applogger.String("component", "confirmation")))
}

func ProvideEngine(
	cfg *config.Config,
	universe *usecase.UniverseSelector,
	scanner *usecase.MarketScanner,
	confirmation *usecase.ConfirmationManager,
	log *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(usecase.EngineConfig{
		UniverseInterval:     cfg.Scheduler.UniverseInterval,
		ScanInterval:         cfg.Scheduler.ScanInterval,
		ConfirmationInterval: cfg.Scheduler.ConfirmationInterval,
		DailyResetInterval:   cfg.Scheduler.DailyResetInterval,
	}, universe, scanner, confirmation, log.With(applogger.String("component", "engine")))
}

// ProvideScheduler locks job runs through the shared cache when several
// replicas run against the same Redis.
func ProvideScheduler(cfg *config.Config, store cache.Service, rec *metrics.Recorder, log *applogger.Logger) *scheduler.Scheduler {
	opts := []scheduler.Option{scheduler.WithObserver(rec)}
	if cfg.Scheduler.DistributedLocks {
		opts = append(opts, scheduler.WithLocker(store))
	}
	return scheduler.New(log.With(applogger.String("component", "scheduler")), opts...)
}

func ProvideHealthHandler(in *Infra, log *applogger.Logger) *server.HealthHandler {
	h := server.NewHealthHandler(log, 2*time.Second)
	if in.ClickHouse != nil {
		h.Add("clickhouse", in.ClickHouse.Health)
	}
	if in.Redis != nil {
		h.Add("redis", in.Redis.Health)
	}
	return h
}

func ProvideSignalsHandler(
	confirmation *usecase.ConfirmationManager,
	universe *usecase.UniverseSelector,
	candles *candlecache.Cache,
	sched *scheduler.Scheduler,
	log *applogger.Logger,
) *api.SignalsHandler {
	return api.NewSignalsHandler(confirmation, universe, candles, sched, log.With(applogger.String("component", "api")))
}

func ProvideHTTPServer(cfg *config.Config, signals *api.SignalsHandler, health *server.HealthHandler, log *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log.With(applogger.String("component", "http")),
		[]xhttp.Handler{signals, health},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Environment != "production"),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	engine *usecase.Engine,
	sched *scheduler.Scheduler,
	srv *xhttp.Server,
	in *Infra,
	log *applogger.Logger,
) *server.App {
	return server.New(log, engine, sched, srv, cfg.Scheduler.DrainTimeout, in.Closers()...)
}
