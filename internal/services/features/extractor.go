package features

import (
	"math"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

// Closes extracts close prices, oldest first.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices.
func Lows(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts traded volume.
func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(closes)-1, or nil if insufficient data.
// Non-positive prices yield a zero return.
func ComputeLogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using barsPerYear bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the number of bars per year for a timeframe.
func BarsPerYearForTF(tf repository.Timeframe) float64 {
	d := tf.Duration()
	if d <= 0 {
		return 365 * 24
	}
	return float64(365*24*60*60) / d.Seconds()
}

// AlignCloses pairs the closes of two windows on common open times and
// returns them in chronological order.
func AlignCloses(a, b []models.Candle) ([]float64, []float64) {
	idx := make(map[int64]float64, len(b))
	for _, c := range b {
		idx[c.OpenTime.Unix()] = c.Close
	}
	xa := make([]float64, 0, len(a))
	xb := make([]float64, 0, len(a))
	for _, c := range a {
		if v, ok := idx[c.OpenTime.Unix()]; ok {
			xa = append(xa, c.Close)
			xb = append(xb, v)
		}
	}
	return xa, xb
}
