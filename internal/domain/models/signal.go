package models

import (
	"fmt"
	"time"
)

// Direction is the side of a trade setup.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Tier classifies a quality score into fixed bands.
type Tier string

const (
	TierElitePlus   Tier = "ELITE+"
	TierElite       Tier = "ELITE"
	TierPremiumPlus Tier = "PREMIUM+"
	TierPremium     Tier = "PREMIUM"
)

// SignalKey identifies a setup for deduplication.
type SignalKey struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
}

func (k SignalKey) String() string { return fmt.Sprintf("%s/%s", k.Symbol, k.Direction) }

// CandidateSignal is a scored setup emitted by the scanner. Treat as immutable.
type CandidateSignal struct {
	Symbol            string         `json:"symbol"`
	Direction         Direction      `json:"direction"`
	EntryPrice        float64        `json:"entry_price"`
	TargetPrice       float64        `json:"target_price"`
	ProjectionPct     float64        `json:"projection_pct"`
	QualityScore      float64        `json:"quality_score"`
	Tier              Tier           `json:"tier"`
	Breakdown         ScoreBreakdown `json:"breakdown"`
	RSI               float64        `json:"rsi"`
	ReferenceTrend    TrendLabel     `json:"reference_trend"`
	ReferenceStrength float64        `json:"reference_strength"`
	Correlation       float64        `json:"correlation"`
	TrendTimeframe    string         `json:"trend_timeframe"`
	EntryTimeframe    string         `json:"entry_timeframe"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Key returns the deduplication key of the candidate.
func (c CandidateSignal) Key() SignalKey {
	return SignalKey{Symbol: c.Symbol, Direction: c.Direction}
}

// PendingSignal is a candidate awaiting confirmation.
type PendingSignal struct {
	CandidateSignal
	ID         string    `json:"id"`
	AdmittedAt time.Time `json:"admitted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
	LastCheck  time.Time `json:"last_check"`
}

// Status is the lifecycle state of a pending signal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// ConfirmedSignal is the terminal record of an accepted signal.
type ConfirmedSignal struct {
	Signal    PendingSignal `json:"signal"`
	Reasons   []string      `json:"reasons"`
	DecidedAt time.Time     `json:"decided_at"`
}

// RejectedSignal is the terminal record of a rejected or expired signal.
type RejectedSignal struct {
	Signal    PendingSignal `json:"signal"`
	Status    Status        `json:"status"`
	Reasons   []string      `json:"reasons"`
	DecidedAt time.Time     `json:"decided_at"`
}

// ConfirmationMetrics summarizes the state machine activity.
type ConfirmationMetrics struct {
	Pending               int     `json:"pending"`
	Confirmed             int     `json:"confirmed"`
	Rejected              int     `json:"rejected"`
	Expired               int     `json:"expired"`
	ConfirmationRate      float64 `json:"confirmation_rate"`
	AvgConfirmTimeMinutes float64 `json:"avg_confirm_time_minutes"`
	DailyConfirmed        int     `json:"daily_confirmed"`
	Active                bool    `json:"active"`
}

// DailyConfirmedStatus describes the per-day deduplication set.
type DailyConfirmedStatus struct {
	Count         int         `json:"count"`
	Pairs         []SignalKey `json:"pairs"`
	LastResetDate string      `json:"last_reset_date"`
}
