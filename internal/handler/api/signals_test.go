package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/pkg/scheduler"
)

const knownID = "7f1c1a52-4d1b-4f7e-9d8c-1b2a3c4d5e6f"

type fakeSignals struct {
	limit        int
	rejectReason string
}

func (f *fakeSignals) GetPending() []models.PendingSignal {
	return []models.PendingSignal{{ID: knownID, CandidateSignal: models.CandidateSignal{Symbol: "AAAUSDT"}}}
}
func (f *fakeSignals) GetConfirmed(limit int) []models.ConfirmedSignal {
	f.limit = limit
	return []models.ConfirmedSignal{{}, {}}
}
func (f *fakeSignals) GetRejected(limit int) []models.RejectedSignal {
	f.limit = limit
	return nil
}
func (f *fakeSignals) GetMetrics() models.ConfirmationMetrics {
	return models.ConfirmationMetrics{Confirmed: 3, ConfirmationRate: 75}
}
func (f *fakeSignals) GetDailyConfirmedStatus() models.DailyConfirmedStatus {
	return models.DailyConfirmedStatus{Count: 1, LastResetDate: "2024-03-01"}
}
func (f *fakeSignals) ManualConfirm(ctx context.Context, id string) bool { return id == knownID }
func (f *fakeSignals) ManualReject(ctx context.Context, id, reason string) bool {
	f.rejectReason = reason
	return id == knownID
}

type fakeUniverse struct{}

func (fakeUniverse) Ranked() []models.RankedInstrument {
	return []models.RankedInstrument{{Instrument: models.Instrument{Symbol: "AAAUSDT"}, Score: 0.9}}
}
func (fakeUniverse) LastRefresh() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

type fakeCandles struct{}

func (fakeCandles) Get(context.Context, string, repository.Timeframe, int) ([]models.Candle, bool) {
	return nil, false
}
func (fakeCandles) Set(context.Context, string, repository.Timeframe, int, []models.Candle) {}
func (fakeCandles) Stats() models.CacheStats {
	return models.CacheStats{Hits: 8, Misses: 2, HitRate: 80, CallsSaved: 8}
}

type fakeJobs struct{ running bool }

func (f *fakeJobs) Stats() []scheduler.JobStats {
	return []scheduler.JobStats{{Name: "scan-market", Runs: 3}}
}
func (f *fakeJobs) RunNow(ctx context.Context, name string) error {
	switch {
	case name != "scan-market":
		return scheduler.ErrUnknownJob
	case f.running:
		return scheduler.ErrJobRunning
	}
	return nil
}

func newTestServer() (*echo.Echo, *fakeSignals, *fakeJobs) {
	sig, jobs := &fakeSignals{}, &fakeJobs{}
	e := echo.New()
	NewSignalsHandler(sig, fakeUniverse{}, fakeCandles{}, jobs, nil).RegisterRoutes(e)
	return e, sig, jobs
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListEndpoints(t *testing.T) {
	e, sig, _ := newTestServer()

	rec := do(e, http.MethodGet, "/api/signals/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, 1.0, data["total"])

	rec = do(e, http.MethodGet, "/api/signals/confirmed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, sig.limit, "default limit")

	rec = do(e, http.MethodGet, "/api/signals/rejected?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, sig.limit)

	rec = do(e, http.MethodGet, "/api/signals/confirmed?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusEndpoints(t *testing.T) {
	e, _, _ := newTestServer()
	tests := []struct {
		path string
		key  string
		want interface{}
	}{
		{"/api/signals/metrics", "confirmation_rate", 75.0},
		{"/api/signals/daily", "last_reset_date", "2024-03-01"},
		{"/api/universe", "size", 1.0},
		{"/api/cache/stats", "hit_rate", 80.0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(e, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			data := decode(t, rec)["data"].(map[string]interface{})
			assert.Equal(t, tt.want, data[tt.key])
		})
	}
}

func TestManualDecisionEndpoints(t *testing.T) {
	e, sig, _ := newTestServer()

	rec := do(e, http.MethodPost, "/api/signals/"+knownID+"/confirm", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/api/signals/"+knownID+"/reject", `{"reason":"news event"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "news event", sig.rejectReason)

	rec = do(e, http.MethodPost, "/api/signals/"+knownID+"/reject", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", sig.rejectReason)

	rec = do(e, http.MethodPost, "/api/signals/0b7e2f4a-1111-4c2d-8e9f-000000000000/confirm", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	rec = do(e, http.MethodPost, "/api/signals/not-a-uuid/confirm", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualDecisionRateLimited(t *testing.T) {
	e, _, _ := newTestServer()
	codes := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		codes = append(codes, do(e, http.MethodPost, "/api/signals/"+knownID+"/confirm", "").Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestJobEndpoints(t *testing.T) {
	e, _, jobs := newTestServer()

	rec := do(e, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scan-market")

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/jobs/scan-market/run", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/api/jobs/nope/run", "").Code)

	jobs.running = true
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/api/jobs/scan-market/run", "").Code)
}
