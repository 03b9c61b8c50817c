package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	applogger "FinSignal/pkg/logger"
)

var _ repository.MarketData = (*Client)(nil)

const testnetBaseURL = "https://testnet.binancefuture.com"

// api is the subset of the futures REST surface the client uses.
type api interface {
	klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
	exchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error)
	priceChangeStats(ctx context.Context) ([]*futures.PriceChangeStats, error)
	leverageBrackets(ctx context.Context, symbol string) ([]*futures.LeverageBracket, error)
}

// Config holds client settings.
type Config struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	MaxRetries  int
	RetryMin    time.Duration
	RetryMax    time.Duration
	RateBurst   float64
	RatePerSec  float64
	CallTimeout time.Duration
}

// Client implements repository.MarketData over the Binance USDT-M futures REST API.
type Client struct {
	api     api
	limiter *ratelimit.Limiter
	cfg     Config
	log     *applogger.Logger
}

// NewClient creates a futures client.
func NewClient(cfg Config, log *applogger.Logger) *Client {
	fc := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		fc.BaseURL = testnetBaseURL
	}
	return newClient(&futuresAPI{c: fc}, cfg, log)
}

func newClient(a api, cfg Config, log *applogger.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 200 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if log == nil {
		log = applogger.NewNop()
	}
	return &Client{
		api:     a,
		limiter: ratelimit.New(cfg.RateBurst, cfg.RatePerSec),
		cfg:     cfg,
		log:     log.With(applogger.String("component", "binance")),
	}
}

// do runs fn under the rate limiter, retrying with exponential backoff and jitter.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{Min: c.cfg.RetryMin, Max: c.cfg.RetryMax, Factor: 2, Jitter: true}
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = c.limiter.Wait(ctx, op); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := b.Duration()
		c.log.Debug("binance call failed, retrying",
			applogger.String("op", op),
			applogger.Int("attempt", attempt+1),
			applogger.Duration("backoff", wait),
			applogger.Error(err))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetCandles returns limit closed-or-open bars, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf repository.Timeframe, limit int) ([]models.Candle, error) {
	var raw []*futures.Kline
	err := c.do(ctx, "klines", func(ctx context.Context) error {
		var err error
		raw, err = c.api.klines(ctx, symbol, string(tf), limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		cd, err := toCandle(k)
		if err != nil {
			return nil, fmt.Errorf("parse kline %s: %w", symbol, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

// Get24hStats fetches the full 24h ticker once and keeps the requested symbols.
// An empty symbols slice returns every ticker.
func (c *Client) Get24hStats(ctx context.Context, symbols []string) (map[string]models.TickerStats, error) {
	var raw []*futures.PriceChangeStats
	err := c.do(ctx, "ticker24h", func(ctx context.Context) error {
		var err error
		raw, err = c.api.priceChangeStats(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	out := make(map[string]models.TickerStats, len(symbols))
	for _, s := range raw {
		if len(want) > 0 {
			if _, ok := want[s.Symbol]; !ok {
				continue
			}
		}
		out[s.Symbol] = models.TickerStats{
			Symbol:             s.Symbol,
			LastPrice:          parseFloat(s.LastPrice),
			PriceChangePercent: parseFloat(s.PriceChangePercent),
			Volume:             parseFloat(s.Volume),
			QuoteVolume:        parseFloat(s.QuoteVolume),
		}
	}
	return out, nil
}

// GetExchangeMetadata lists all futures instruments. MaxLeverage is left zero;
// use GetLeverageTiers to fill it.
func (c *Client) GetExchangeMetadata(ctx context.Context) ([]models.Instrument, error) {
	var info *futures.ExchangeInfo
	err := c.do(ctx, "exchangeInfo", func(ctx context.Context) error {
		var err error
		info, err = c.api.exchangeInfo(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, models.Instrument{
			Symbol:       s.Symbol,
			QuoteAsset:   s.QuoteAsset,
			ContractType: string(s.ContractType),
			Status:       s.Status,
		})
	}
	return out, nil
}

// GetLeverageTiers returns the highest initial leverage across the symbol's brackets.
func (c *Client) GetLeverageTiers(ctx context.Context, symbol string) (models.LeverageInfo, error) {
	var raw []*futures.LeverageBracket
	err := c.do(ctx, "leverageBracket", func(ctx context.Context) error {
		var err error
		raw, err = c.api.leverageBrackets(ctx, symbol)
		return err
	})
	if err != nil {
		return models.LeverageInfo{}, err
	}
	info := models.LeverageInfo{Symbol: symbol}
	for _, lb := range raw {
		if lb == nil || (lb.Symbol != "" && lb.Symbol != symbol) {
			continue
		}
		for _, br := range lb.Brackets {
			if br.InitialLeverage > info.MaxLeverage {
				info.MaxLeverage = br.InitialLeverage
			}
		}
	}
	return info, nil
}

func toCandle(k *futures.Kline) (models.Candle, error) {
	var (
		cd  models.Candle
		err error
	)
	cd.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	if cd.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return cd, err
	}
	if cd.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return cd, err
	}
	if cd.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return cd, err
	}
	if cd.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return cd, err
	}
	if cd.Volume, err = strconv.ParseFloat(k.Volume, 64); err != nil {
		return cd, err
	}
	return cd, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

type futuresAPI struct {
	c *futures.Client
}

func (f *futuresAPI) klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return f.c.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
}

func (f *futuresAPI) exchangeInfo(ctx context.Context) (*futures.ExchangeInfo, error) {
	return f.c.NewExchangeInfoService().Do(ctx)
}

func (f *futuresAPI) priceChangeStats(ctx context.Context) ([]*futures.PriceChangeStats, error) {
	return f.c.NewListPriceChangeStatsService().Do(ctx)
}

func (f *futuresAPI) leverageBrackets(ctx context.Context, symbol string) ([]*futures.LeverageBracket, error) {
	return f.c.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
}
