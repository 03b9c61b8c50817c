package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/scheduler"
)

// SignalService is the confirmation pool as seen by operators.
type SignalService interface {
	GetPending() []models.PendingSignal
	GetConfirmed(limit int) []models.ConfirmedSignal
	GetRejected(limit int) []models.RejectedSignal
	GetMetrics() models.ConfirmationMetrics
	GetDailyConfirmedStatus() models.DailyConfirmedStatus
	ManualConfirm(ctx context.Context, id string) bool
	ManualReject(ctx context.Context, id, reason string) bool
}

// UniverseReader exposes the ranked instrument universe.
type UniverseReader interface {
	Ranked() []models.RankedInstrument
	LastRefresh() time.Time
}

// JobRunner exposes scheduler state and manual triggers.
type JobRunner interface {
	Stats() []scheduler.JobStats
	RunNow(ctx context.Context, name string) error
}

type universeResponse struct {
	Instruments []models.RankedInstrument `json:"instruments"`
	Size        int                       `json:"size"`
	LastRefresh time.Time                 `json:"last_refresh"`
}

type decisionResponse struct {
	ID     string        `json:"id"`
	Status models.Status `json:"status"`
}

// SignalsHandler serves the operator endpoints.
type SignalsHandler struct {
	signals  SignalService
	universe UniverseReader
	candles  repository.CandleCache
	jobs     JobRunner
	limiter  *ratelimit.Limiter
	log      *applogger.Logger
}

func NewSignalsHandler(signals SignalService, universe UniverseReader, candles repository.CandleCache, jobs JobRunner, log *applogger.Logger) *SignalsHandler {
	if log == nil {
		log = applogger.NewNop()
	}
	return &SignalsHandler{
		signals:  signals,
		universe: universe,
		candles:  candles,
		jobs:     jobs,
		// manual actions: bursts of 5, one token every 2s per client
		limiter: ratelimit.New(5, 0.5),
		log:     log.With(applogger.String("component", "api")),
	}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals/pending", h.Pending)
	g.GET("/signals/confirmed", h.Confirmed)
	g.GET("/signals/rejected", h.Rejected)
	g.GET("/signals/metrics", h.Metrics)
	g.GET("/signals/daily", h.Daily)
	g.POST("/signals/:id/confirm", h.Confirm)
	g.POST("/signals/:id/reject", h.Reject)
	g.GET("/universe", h.Universe)
	g.GET("/cache/stats", h.CacheStats)
	g.GET("/jobs", h.Jobs)
	g.POST("/jobs/:name/run", h.RunJob)
}

func (h *SignalsHandler) Pending(c echo.Context) error {
	rows := h.signals.GetPending()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) Confirmed(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.signals.GetConfirmed(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) Rejected(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.signals.GetRejected(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) Metrics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.signals.GetMetrics())
}

func (h *SignalsHandler) Daily(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.signals.GetDailyConfirmedStatus())
}

func (h *SignalsHandler) Confirm(c echo.Context) error {
	req := &models.ManualConfirmRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.limiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, xhttp.APIResponse{Status: http.StatusTooManyRequests, Message: "rate limited"})
	}
	if !h.signals.ManualConfirm(c.Request().Context(), req.ID) {
		return xhttp.AppErrorResponse(c, notPending(req.ID))
	}
	h.log.Info("manual confirmation", applogger.String("id", req.ID), applogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, decisionResponse{ID: req.ID, Status: models.StatusConfirmed})
}

func (h *SignalsHandler) Reject(c echo.Context) error {
	req := &models.ManualRejectRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.limiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, xhttp.APIResponse{Status: http.StatusTooManyRequests, Message: "rate limited"})
	}
	if !h.signals.ManualReject(c.Request().Context(), req.ID, req.Reason) {
		return xhttp.AppErrorResponse(c, notPending(req.ID))
	}
	h.log.Info("manual rejection",
		applogger.String("id", req.ID),
		applogger.String("reason", req.Reason),
		applogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, decisionResponse{ID: req.ID, Status: models.StatusRejected})
}

func notPending(id string) *xhttp.AppError {
	return xhttp.NotFoundErrorf("signal %s is not pending", id).
		WithParam("id", id).
		WithError(repository.ErrSignalNotFound)
}

func (h *SignalsHandler) Universe(c echo.Context) error {
	ranked := h.universe.Ranked()
	return xhttp.SuccessResponse(c, universeResponse{
		Instruments: ranked,
		Size:        len(ranked),
		LastRefresh: h.universe.LastRefresh(),
	})
}

func (h *SignalsHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.candles.Stats())
}

func (h *SignalsHandler) Jobs(c echo.Context) error {
	rows := h.jobs.Stats()
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsHandler) RunJob(c echo.Context) error {
	req := &models.RunJobRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// runs synchronously; the job is not cut short by a client disconnect
	ctx := context.WithoutCancel(c.Request().Context())
	switch err := h.jobs.RunNow(ctx, req.Name); {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", req.Name))
	case errors.Is(err, scheduler.ErrJobRunning):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_CONFLICT", "name", "job already running", http.StatusConflict))
	case err != nil:
		h.log.Error("run job failed", applogger.String("job", req.Name), applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("run job failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"job": req.Name, "status": "finished"})
}
