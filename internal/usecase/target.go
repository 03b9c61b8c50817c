package usecase

import (
	"math"

	"FinSignal/internal/domain/models"
)

// Projection bounds in percent.
const (
	BaseProjectionPct = 6.0
	MaxProjectionPct  = 20.0
)

// ProjectTarget returns the target price and projected move in percent.
// The projected move never falls below BaseProjectionPct in the signal direction.
func ProjectTarget(entry float64, d models.Direction, atrRatio, strength, quality float64) (float64, float64) {
	pct := BaseProjectionPct +
		math.Min(math.Max(atrRatio, 0)*400, 8) +
		math.Min(math.Max(strength, 0)*100, 3) +
		clamp((quality-80)/20, 0, 1)
	pct = math.Min(pct, MaxProjectionPct)

	minMove := BaseProjectionPct / 100
	move := pct / 100
	if d == models.Long {
		target := entry * (1 + move)
		if target < entry*(1+minMove) {
			target = entry * (1 + minMove)
		}
		return target, pct
	}
	target := entry * (1 - move)
	if target > entry*(1-minMove) {
		target = entry * (1 - minMove)
	}
	return target, pct
}
