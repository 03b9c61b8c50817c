package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler serves /healthz over the registered dependency probes.
type HealthHandler struct {
	timeout time.Duration
	log     *applogger.Logger
	mu      sync.RWMutex
	checks  map[string]Checker
}

func NewHealthHandler(log *applogger.Logger, timeout time.Duration) *HealthHandler {
	if log == nil {
		log = applogger.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{timeout: timeout, log: log, checks: make(map[string]Checker)}
}

// Add registers a probe. A nil probe is ignored.
func (h *HealthHandler) Add(name string, fn Checker) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.checks[name] = fn
	h.mu.Unlock()
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res := h.Check(ctx)
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// Check runs every probe and reports "ok" only if all of them pass.
func (h *HealthHandler) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	res := HealthStatus{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		h.mu.RLock()
		fn := h.checks[name]
		h.mu.RUnlock()
		if err := fn(ctx); err != nil {
			h.log.Warn("health check failed", applogger.String("check", name), applogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	return res
}
