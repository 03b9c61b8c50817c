package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"FinSignal/internal/domain/models"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordScan(100, 3, 1.5)
	r.RecordCandidate(models.TierElite)
	r.RecordCandidate(models.TierElite)
	r.RecordDecision(models.StatusExpired)
	r.RecordError("scan")
	r.SetUniverseSize(42)
	r.SetPending(5)
	r.SetCacheHitRate(75)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.scans))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.scanned))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.candidates.WithLabelValues("ELITE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("scan")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.universe))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.pending))
	assert.Equal(t, 75.0, testutil.ToFloat64(r.cacheHitRate))
}
