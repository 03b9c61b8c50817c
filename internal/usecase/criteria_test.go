package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"FinSignal/internal/domain/models"
)

func pendingAt(symbol string, d models.Direction, entry float64) models.PendingSignal {
	return models.PendingSignal{
		CandidateSignal: models.CandidateSignal{Symbol: symbol, Direction: d, EntryPrice: entry, QualityScore: 90},
	}
}

var (
	confirmBars = bars([]float64{98, 99, 100, 101, 102}, []float64{100, 100, 100, 200, 200})
	rejectBars  = bars([]float64{102, 101, 100, 99, 98}, []float64{100, 100, 100, 50, 50})
	neutralBars = bars([]float64{100, 100, 100, 100, 100}, []float64{100, 100, 100, 100, 100})
	bullish     = models.ReferenceTrend{Trend: models.TrendBullish, Strength: 0.6}
	bearish     = models.ReferenceTrend{Trend: models.TrendBearish, Strength: 0.6}
	neutral     = models.ReferenceTrend{Trend: models.TrendNeutral}
)

func TestEvaluateCriteria(t *testing.T) {
	cfg := DefaultCriteriaConfig()
	tests := []struct {
		name    string
		s       models.PendingSignal
		price   float64
		bars    []models.Candle
		ref     models.ReferenceTrend
		status  models.Status
		reasons []string
	}{
		{
			name: "long confirmed", s: pendingAt("A", models.Long, 100), price: 101, bars: confirmBars, ref: bullish,
			status:  models.StatusConfirmed,
			reasons: []string{ReasonBreakoutConfirmed, ReasonVolumeConfirmed, ReasonReferenceAligned, ReasonMomentumSustained},
		},
		{
			name: "long rejected", s: pendingAt("A", models.Long, 100), price: 98, bars: rejectBars, ref: bearish,
			status:  models.StatusRejected,
			reasons: []string{ReasonReversalDetected, ReasonVolumeInsufficient, ReasonReferenceOpposite},
		},
		{
			name: "short confirmed", s: pendingAt("A", models.Short, 100), price: 99, bars: rejectBars, ref: bearish,
			status: models.StatusConfirmed,
			// falling closes on thin volume: price, reference and momentum all agree
			reasons: []string{ReasonBreakoutConfirmed, ReasonReferenceAligned, ReasonMomentumSustained},
		},
		{
			name: "undecided", s: pendingAt("A", models.Long, 100), price: 100, bars: neutralBars, ref: neutral,
			status: models.StatusPending,
		},
		{
			name: "weak opposite reference ignored", s: pendingAt("A", models.Long, 100), price: 100, bars: neutralBars,
			ref:    models.ReferenceTrend{Trend: models.TrendBearish, Strength: 0.3},
			status: models.StatusPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := EvaluateCriteria(cfg, tt.s, tt.price, tt.bars, tt.ref)
			assert.Equal(t, tt.status, v.Status)
			if tt.reasons != nil {
				assert.Equal(t, tt.reasons, v.Reasons())
			}
		})
	}
}

func TestEvaluateCriteriaRejectionWins(t *testing.T) {
	cfg := DefaultCriteriaConfig()
	cfg.ConfirmVotes = 2
	// reference and momentum confirm, reversal and thin volume reject
	b := bars([]float64{97, 98, 99, 99.5, 99.6}, []float64{100, 100, 100, 50, 50})
	v := EvaluateCriteria(cfg, pendingAt("A", models.Long, 101), 99.6, b, bullish)

	assert.Len(t, v.Confirmations, 2)
	assert.Len(t, v.Rejections, 2)
	assert.Equal(t, models.StatusRejected, v.Status)
}

func TestVolumeRatio(t *testing.T) {
	assert.Equal(t, 1.0, volumeRatio(bars([]float64{1, 1, 1}, []float64{0, 5, 5})))
	assert.InDelta(t, 2.0, volumeRatio(confirmBars), 1e-12)
	assert.InDelta(t, 0.5, volumeRatio(rejectBars), 1e-12)
}

func TestMomentumSustained(t *testing.T) {
	assert.True(t, momentumSustained(confirmBars, models.Long))
	assert.False(t, momentumSustained(confirmBars, models.Short))
	assert.True(t, momentumSustained(rejectBars, models.Short))
	assert.False(t, momentumSustained(neutralBars, models.Long))
	assert.False(t, momentumSustained(confirmBars[:2], models.Long))
}
