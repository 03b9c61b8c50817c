package usecase

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/services/features"
)

// Rules that can decide a trend direction, in evaluation order.
const (
	DecidedByPrimary    = "primary"
	DecidedBySeparation = "ma_separation"
	DecidedByLongMA     = "long_ma"
	DecidedBySlope      = "ma_slope"
	DecidedByMACD       = "macd"
)

// AnalysisConfig holds the indicator parameters shared by trend and entry analysis.
type AnalysisConfig struct {
	MinBars       int
	ShortMA       int
	LongMA        int
	RSIPeriod     int
	ATRPeriod     int
	SlopeLookback int
	// NeutralBand is the relative distance from the long MA inside which price is undecided.
	NeutralBand float64
	// SlopeThreshold is the relative short-MA change required to decide by slope.
	SlopeThreshold float64
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MinBars:        50,
		ShortMA:        20,
		LongMA:         50,
		RSIPeriod:      14,
		ATRPeriod:      14,
		SlopeLookback:  5,
		NeutralBand:    0.01,
		SlopeThreshold: 0.001,
	}
}

// requiredBars is the shortest window every indicator can be computed on.
func (c AnalysisConfig) requiredBars() int {
	return max(c.MinBars, c.LongMA, 35, 20)
}

// AnalyzeTrend derives the higher timeframe direction. A direction is always
// produced: when the primary rule is undecided the fallbacks run in order.
func AnalyzeTrend(candles []models.Candle, cfg AnalysisConfig) (models.TrendAnalysis, error) {
	if len(candles) < cfg.requiredBars() {
		return models.TrendAnalysis{}, fmt.Errorf("trend: %d bars: %w", len(candles), repository.ErrInsufficientData)
	}
	closes := features.Closes(candles)
	shortMA := talib.Ema(closes, cfg.ShortMA)
	price := last(closes)
	ema20 := last(shortMA)
	ema50 := lastEMA(closes, cfg.LongMA)
	_, _, hist := talib.Macd(closes, 12, 26, 9)

	ta := models.TrendAnalysis{
		Close:    price,
		MAShort:  ema20,
		MALong:   ema50,
		MACDHist: last(hist),
	}
	if price > 0 {
		ta.Strength = clamp(math.Abs(price-ema20)/price, 0, 1)
	}
	if n := len(shortMA); n > cfg.SlopeLookback {
		prev := shortMA[n-1-cfg.SlopeLookback]
		if prev != 0 {
			ta.MASlope = (ema20 - prev) / prev
		}
	}

	ta.Uptrend = price > ema20*0.995 && ema20 > ema50*1.005
	ta.Downtrend = price < ema20*1.005 && ema20 < ema50*0.995

	switch {
	case ta.Uptrend && ta.Downtrend:
		ta.DecidedBy = DecidedBySeparation
		ta.Direction = models.Short
		if ema50 != 0 && (ema20-ema50)/ema50 >= 0 {
			ta.Direction = models.Long
		}
	case ta.Uptrend:
		ta.Direction, ta.DecidedBy = models.Long, DecidedByPrimary
	case ta.Downtrend:
		ta.Direction, ta.DecidedBy = models.Short, DecidedByPrimary
	case price > ema50*(1+cfg.NeutralBand):
		ta.Direction, ta.DecidedBy = models.Long, DecidedByLongMA
	case price < ema50*(1-cfg.NeutralBand):
		ta.Direction, ta.DecidedBy = models.Short, DecidedByLongMA
	case ta.MASlope > cfg.SlopeThreshold:
		ta.Direction, ta.DecidedBy = models.Long, DecidedBySlope
	case ta.MASlope < -cfg.SlopeThreshold:
		ta.Direction, ta.DecidedBy = models.Short, DecidedBySlope
	case ta.MACDHist >= 0:
		ta.Direction, ta.DecidedBy = models.Long, DecidedByMACD
	default:
		ta.Direction, ta.DecidedBy = models.Short, DecidedByMACD
	}
	return ta, nil
}

// AnalyzeEntry derives the lower timeframe entry conditions.
func AnalyzeEntry(candles []models.Candle, cfg AnalysisConfig) (models.EntryAnalysis, error) {
	if len(candles) < cfg.requiredBars() {
		return models.EntryAnalysis{}, fmt.Errorf("entry: %d bars: %w", len(candles), repository.ErrInsufficientData)
	}
	closes := features.Closes(candles)
	vols := features.Volumes(candles)
	price := last(closes)
	ema20 := lastEMA(closes, cfg.ShortMA)
	ema50 := lastEMA(closes, cfg.LongMA)

	ea := models.EntryAnalysis{
		RSI:       lastRSI(closes, cfg.RSIPeriod),
		Uptrend:   price > ema20*0.99 && ema20 > ema50*1.002,
		Downtrend: price < ema20*1.01 && ema20 < ema50*0.998,
	}

	// Change over the last two bars.
	n := len(closes)
	if ref := closes[n-3]; ref > 0 {
		ea.PriceChange = (price - ref) / ref
	}
	ea.MomentumPositive = ea.PriceChange > 0

	ea.VolumeRatio = 1
	if base := mean(vols[n-20:]); base > 0 {
		ea.VolumeRatio = mean(vols[n-5:]) / base
	}
	if price > 0 {
		atr := lastATR(features.Highs(candles), features.Lows(candles), closes, cfg.ATRPeriod)
		ea.ATRRatio = atr / price
	}
	return ea, nil
}
