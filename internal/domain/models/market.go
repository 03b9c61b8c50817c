package models

import "time"

// Instrument is a tradable market symbol as reported by the exchange.
type Instrument struct {
	Symbol       string `json:"symbol"`
	QuoteAsset   string `json:"quote_asset"`
	ContractType string `json:"contract_type"`
	Status       string `json:"status"`
	MaxLeverage  int    `json:"max_leverage"`
}

// IsTrading reports whether the exchange currently accepts orders for the instrument.
func (i Instrument) IsTrading() bool { return i.Status == "TRADING" }

// RankedInstrument is an instrument with the score used to order the universe.
type RankedInstrument struct {
	Instrument
	Volume     float64 `json:"volume"`
	Volatility float64 `json:"volatility"`
	Score      float64 `json:"score"`
}

// Candle represents one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// TickerStats carries the rolling 24h statistics of an instrument.
type TickerStats struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quote_volume"`
}

// LeverageInfo is the leverage bracket summary for a symbol.
type LeverageInfo struct {
	Symbol      string `json:"symbol"`
	MaxLeverage int    `json:"max_leverage"`
}

// TrendLabel describes the reference asset trend.
type TrendLabel string

const (
	TrendBullish TrendLabel = "BULLISH"
	TrendBearish TrendLabel = "BEARISH"
	TrendNeutral TrendLabel = "NEUTRAL"
)

// ReferenceTrend is the current direction and strength (0..1) of the reference asset.
type ReferenceTrend struct {
	Symbol    string     `json:"symbol"`
	Trend     TrendLabel `json:"trend"`
	Strength  float64    `json:"strength"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Supports reports whether the trend points the same way as d.
func (r ReferenceTrend) Supports(d Direction) bool {
	return (r.Trend == TrendBullish && d == Long) || (r.Trend == TrendBearish && d == Short)
}

// Opposes reports whether the trend points against d.
func (r ReferenceTrend) Opposes(d Direction) bool {
	return (r.Trend == TrendBullish && d == Short) || (r.Trend == TrendBearish && d == Long)
}

// CacheStats summarizes candle cache effectiveness.
type CacheStats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	CallsSaved int64   `json:"calls_saved"`
}
