package usecase

import (
	"math"

	"FinSignal/internal/domain/models"
)

const (
	srWindow          = 5
	srMinBars         = 20
	srDefaultDistance = 0.02
)

// supportResistance returns the nearest local low below price and the nearest
// local high above it. A bar is a local extreme when it is the lowest (highest)
// within a centred window of srWindow bars. Missing levels fall back to the
// window minimum (maximum).
func supportResistance(candles []models.Candle) (support, resistance float64) {
	price := candles[len(candles)-1].Close
	half := srWindow / 2
	lowest, highest := math.Inf(1), math.Inf(-1)
	support, resistance = math.Inf(-1), math.Inf(1)

	for i := range candles {
		lowest = math.Min(lowest, candles[i].Low)
		highest = math.Max(highest, candles[i].High)
		if i < half || i+half >= len(candles) {
			continue
		}
		isLow, isHigh := true, true
		for j := i - half; j <= i+half; j++ {
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
		}
		if isLow && candles[i].Low < price && candles[i].Low > support {
			support = candles[i].Low
		}
		if isHigh && candles[i].High > price && candles[i].High < resistance {
			resistance = candles[i].High
		}
	}
	if math.IsInf(support, -1) {
		support = lowest
	}
	if math.IsInf(resistance, 1) {
		resistance = highest
	}
	return support, resistance
}

// levelDistance is the relative distance from price to the level relevant for d.
func levelDistance(candles []models.Candle, d models.Direction) float64 {
	if len(candles) < srMinBars {
		return srDefaultDistance
	}
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return srDefaultDistance
	}
	support, resistance := supportResistance(candles)
	if d == models.Long {
		return math.Abs(price-support) / price
	}
	return math.Abs(resistance-price) / price
}

// candlePatternPoints scores the last bars: hammer/shooting star 10 or doji 5,
// plus engulfing 10.
func candlePatternPoints(candles []models.Candle, d models.Direction) float64 {
	n := len(candles)
	if n == 0 {
		return 0
	}
	c := candles[n-1]
	rng := c.High - c.Low
	if rng <= 0 {
		return 0
	}
	body := math.Abs(c.Close - c.Open)
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low

	points := 0.0
	switch {
	case d == models.Long && lower > 2*body:
		points += 10
	case d == models.Short && upper > 2*body:
		points += 10
	case body < 0.3*rng:
		points += 5
	}

	if n >= 2 {
		p := candles[n-2]
		bullish := p.Close < p.Open && c.Close > c.Open && c.Close > p.Open && c.Open < p.Close
		bearish := p.Close > p.Open && c.Close < c.Open && c.Close < p.Open && c.Open > p.Close
		if (d == models.Long && bullish) || (d == models.Short && bearish) {
			points += 10
		}
	}
	return points
}

// PatternScore combines support/resistance proximity and candle patterns, capped at 20.
func PatternScore(candles []models.Candle, d models.Direction) float64 {
	if len(candles) == 0 {
		return 0
	}
	score := 0.0
	switch dist := levelDistance(candles, d); {
	case dist >= 0.02 && dist <= 0.05:
		score += 10
	case dist <= 0.08:
		score += 5
	}
	score += candlePatternPoints(candles, d)
	return math.Min(score, 20)
}
