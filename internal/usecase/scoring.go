package usecase

import (
	"math"

	"FinSignal/internal/domain/models"
)

// Sub-score ceilings.
const (
	MaxTrendScore       = 35.0
	MaxEntryScore       = 25.0
	MaxOscillatorScore  = 20.0
	MaxPatternScore     = 20.0
	MaxCorrelationScore = 30.0
	MaxQualityScore     = MaxTrendScore + MaxEntryScore + MaxOscillatorScore + MaxPatternScore + MaxCorrelationScore
)

// ScoreInput is everything the scorer needs for one instrument and direction.
type ScoreInput struct {
	Direction        models.Direction
	Trend            models.TrendAnalysis
	Entry            models.EntryAnalysis
	EntryCandles     []models.Candle
	CorrelationScore float64
}

// QualityScorer turns analyses into a bounded quality score and tier.
type QualityScorer struct {
	minScore float64
}

func NewQualityScorer(minScore float64) *QualityScorer {
	return &QualityScorer{minScore: minScore}
}

// MinScore is the threshold below which candidates are discarded.
func (s *QualityScorer) MinScore() float64 { return s.minScore }

// Score computes all sub-scores. Each is clamped to its ceiling.
func (s *QualityScorer) Score(in ScoreInput) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Trend:       clamp(trendScore(in.Direction, in.Trend), 0, MaxTrendScore),
		Entry:       clamp(entryScore(in.Direction, in.Entry), 0, MaxEntryScore),
		Oscillator:  clamp(oscillatorScore(in.Direction, in.Entry.RSI), 0, MaxOscillatorScore),
		Pattern:     clamp(PatternScore(in.EntryCandles, in.Direction), 0, MaxPatternScore),
		Correlation: clamp(in.CorrelationScore, 0, MaxCorrelationScore),
	}
}

// Accept reports whether total clears the minimum score.
func (s *QualityScorer) Accept(total float64) bool {
	return total >= s.minScore
}

func trendScore(d models.Direction, t models.TrendAnalysis) float64 {
	score := math.Min(t.Strength*50, 15)
	if d == models.Long && t.Close >= t.MAShort*0.98 {
		score += 10
	}
	if d == models.Short && t.Close <= t.MAShort*1.02 {
		score += 10
	}
	if (d == models.Long && t.MACDHist > 0) || (d == models.Short && t.MACDHist < 0) {
		score += 10
	}
	return score
}

func entryScore(d models.Direction, e models.EntryAnalysis) float64 {
	score := 0.0
	switch {
	case e.AlignedWith(d):
		score += 15
	case d == models.Long && e.PriceChange > 0.002:
		score += 10
	case d == models.Short && e.PriceChange < -0.002:
		score += 10
	}
	switch {
	case e.VolumeRatio > 1.2:
		score += 10
	case e.VolumeRatio > 1.0:
		score += 5
	}
	return score
}

func oscillatorScore(d models.Direction, rsi float64) float64 {
	if rsi < 30 || rsi > 70 {
		return 5
	}
	if (d == models.Long && rsi <= 50) || (d == models.Short && rsi >= 50) {
		return 20
	}
	return 15
}

// ClassifyTier maps a quality score onto its tier.
func ClassifyTier(score float64) models.Tier {
	switch {
	case score >= 110:
		return models.TierElitePlus
	case score >= 95:
		return models.TierElite
	case score >= 85:
		return models.TierPremiumPlus
	default:
		return models.TierPremium
	}
}
