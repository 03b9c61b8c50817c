package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
)

var _ repository.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans        prometheus.Counter
	scanned      prometheus.Counter
	scanDuration prometheus.Histogram
	candidates   *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	universe     prometheus.Gauge
	pending      prometheus.Gauge
	cacheHitRate prometheus.Gauge
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounter(prometheus.CounterOpts{
			Name: "finsignal_scans_total",
			Help: "Total number of market scans completed",
		}),
		scanned: f.NewCounter(prometheus.CounterOpts{
			Name: "finsignal_instruments_scanned_total",
			Help: "Total number of instruments evaluated by scans",
		}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "finsignal_scan_duration_seconds",
			Help:    "Duration of a full market scan",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsignal_candidates_total",
			Help: "Candidate signals emitted by tier",
		}, []string{"tier"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsignal_decisions_total",
			Help: "Terminal confirmation decisions by status",
		}, []string{"status"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsignal_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsignal_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		universe: f.NewGauge(prometheus.GaugeOpts{
			Name: "finsignal_universe_size",
			Help: "Number of instruments in the active universe",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "finsignal_pending_signals",
			Help: "Signals currently awaiting confirmation",
		}),
		cacheHitRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "finsignal_candle_cache_hit_rate",
			Help: "Candle cache hit rate in percent",
		}),
	}
}

// RecordScan records a completed scan.
func (r *Recorder) RecordScan(instruments, candidates int, seconds float64) {
	r.scans.Inc()
	r.scanned.Add(float64(instruments))
	r.scanDuration.Observe(seconds)
}

func (r *Recorder) RecordCandidate(tier models.Tier) {
	r.candidates.WithLabelValues(string(tier)).Inc()
}

func (r *Recorder) RecordDecision(status models.Status) {
	r.decisions.WithLabelValues(string(status)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetUniverseSize(n int)        { r.universe.Set(float64(n)) }
func (r *Recorder) SetPending(n int)             { r.pending.Set(float64(n)) }
func (r *Recorder) SetCacheHitRate(rate float64) { r.cacheHitRate.Set(rate) }

// Nop discards all measurements.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordScan(int, int, float64)  {}
func (Nop) RecordCandidate(models.Tier)   {}
func (Nop) RecordDecision(models.Status)  {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) SetUniverseSize(int)           {}
func (Nop) SetPending(int)                {}
func (Nop) SetCacheHitRate(float64)       {}
