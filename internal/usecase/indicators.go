package usecase

import (
	"math"

	"github.com/markcheno/go-talib"
)

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

// lastEMA returns the final EMA value of closes over period bars.
func lastEMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	return last(talib.Ema(closes, period))
}

func lastRSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}
	v := last(talib.Rsi(closes, period))
	if math.IsNaN(v) {
		return 50
	}
	return v
}

func lastATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	return last(talib.Atr(highs, lows, closes, period))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
