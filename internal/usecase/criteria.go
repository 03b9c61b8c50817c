package usecase

import (
	"FinSignal/internal/domain/models"
)

// Confirmation and rejection reasons.
const (
	ReasonBreakoutConfirmed  = "breakout_confirmed"
	ReasonVolumeConfirmed    = "volume_confirmed"
	ReasonReferenceAligned   = "reference_aligned"
	ReasonMomentumSustained  = "momentum_sustained"
	ReasonReversalDetected   = "reversal_detected"
	ReasonVolumeInsufficient = "volume_insufficient"
	ReasonReferenceOpposite  = "reference_opposite"
	ReasonTimeoutExpired     = "timeout_expired"
	ReasonMaxAttempts        = "max_attempts_reached"
	ReasonManualConfirmation = "manual_confirmation"
	ReasonManualRejection    = "manual_rejection"
)

// CriteriaConfig holds the confirmation thresholds. Percentages are fractions.
type CriteriaConfig struct {
	BreakoutPct       float64
	ReversalPct       float64
	VolumeConfirm     float64
	VolumeReject      float64
	ReferenceStrength float64
	ConfirmVotes      int
	RejectVotes       int
}

func DefaultCriteriaConfig() CriteriaConfig {
	return CriteriaConfig{
		BreakoutPct:       0.005,
		ReversalPct:       0.01,
		VolumeConfirm:     1.2,
		VolumeReject:      0.8,
		ReferenceStrength: 0.5,
		ConfirmVotes:      3,
		RejectVotes:       2,
	}
}

// Verdict is the outcome of one evaluation round.
type Verdict struct {
	Status        models.Status
	Confirmations []string
	Rejections    []string
}

// Reasons returns the reasons backing the verdict in evaluation order.
func (v Verdict) Reasons() []string {
	switch v.Status {
	case models.StatusConfirmed:
		return v.Confirmations
	case models.StatusRejected:
		return v.Rejections
	default:
		return append(append([]string{}, v.Confirmations...), v.Rejections...)
	}
}

// EvaluateCriteria votes on a pending signal given the latest price, recent
// bars (oldest first) and the reference trend. Rejection takes precedence.
func EvaluateCriteria(cfg CriteriaConfig, s models.PendingSignal, price float64, bars []models.Candle, ref models.ReferenceTrend) Verdict {
	var v Verdict
	confirm := func(r string) { v.Confirmations = append(v.Confirmations, r) }
	reject := func(r string) { v.Rejections = append(v.Rejections, r) }

	if s.EntryPrice > 0 && price > 0 {
		move := (price - s.EntryPrice) / s.EntryPrice
		if s.Direction == models.Short {
			move = -move
		}
		switch {
		case move >= cfg.BreakoutPct:
			confirm(ReasonBreakoutConfirmed)
		case move <= -cfg.ReversalPct:
			reject(ReasonReversalDetected)
		}
	}

	if len(bars) >= 3 {
		ratio := volumeRatio(bars)
		switch {
		case ratio >= cfg.VolumeConfirm:
			confirm(ReasonVolumeConfirmed)
		case ratio < cfg.VolumeReject:
			reject(ReasonVolumeInsufficient)
		}
	}

	switch {
	case ref.Supports(s.Direction):
		confirm(ReasonReferenceAligned)
	case ref.Opposes(s.Direction) && ref.Strength > cfg.ReferenceStrength:
		reject(ReasonReferenceOpposite)
	}

	if momentumSustained(bars, s.Direction) {
		confirm(ReasonMomentumSustained)
	}

	switch {
	case len(v.Rejections) >= cfg.RejectVotes:
		v.Status = models.StatusRejected
	case len(v.Confirmations) >= cfg.ConfirmVotes:
		v.Status = models.StatusConfirmed
	default:
		v.Status = models.StatusPending
	}
	return v
}

// volumeRatio compares the mean volume of the last two bars with the mean of
// up to three bars before them. A zero baseline yields 1.
func volumeRatio(bars []models.Candle) float64 {
	n := len(bars)
	recent := (bars[n-1].Volume + bars[n-2].Volume) / 2
	prior := bars[max(0, n-5) : n-2]
	base := 0.0
	for _, b := range prior {
		base += b.Volume
	}
	base /= float64(len(prior))
	if base <= 0 {
		return 1
	}
	return recent / base
}

// momentumSustained reports whether both moves among the last three closes favour d.
func momentumSustained(bars []models.Candle, d models.Direction) bool {
	n := len(bars)
	if n < 3 {
		return false
	}
	a, b, c := bars[n-3].Close, bars[n-2].Close, bars[n-1].Close
	if d == models.Long {
		return b > a && c > b
	}
	return b < a && c < b
}
