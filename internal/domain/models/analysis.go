package models

// TrendAnalysis is derived from the higher timeframe on every scan.
type TrendAnalysis struct {
	Uptrend   bool
	Downtrend bool
	Direction Direction
	// Strength is |close - short MA| / close clamped to 0..1.
	Strength float64
	Close    float64
	MAShort  float64
	MALong   float64
	// MASlope is the relative change of the short MA over the slope lookback.
	MASlope  float64
	MACDHist float64
	// DecidedBy names the rule that produced Direction.
	DecidedBy string
}

// EntryAnalysis is derived from the lower timeframe on every scan.
type EntryAnalysis struct {
	RSI              float64
	Uptrend          bool
	Downtrend        bool
	PriceChange      float64
	MomentumPositive bool
	VolumeRatio      float64
	ATRRatio         float64
}

// AlignedWith reports whether the lower timeframe already trends in direction d.
func (e EntryAnalysis) AlignedWith(d Direction) bool {
	if d == Long {
		return e.Uptrend && e.MomentumPositive
	}
	return e.Downtrend && !e.MomentumPositive
}

// ScoreBreakdown holds the bounded sub-scores of a quality score.
type ScoreBreakdown struct {
	Trend       float64 `json:"trend"`
	Entry       float64 `json:"entry"`
	Oscillator  float64 `json:"oscillator"`
	Pattern     float64 `json:"pattern"`
	Correlation float64 `json:"correlation"`
}

// Total sums all sub-scores.
func (b ScoreBreakdown) Total() float64 {
	return b.Trend + b.Entry + b.Oscillator + b.Pattern + b.Correlation
}
