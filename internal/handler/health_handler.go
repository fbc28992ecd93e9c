package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HealthChecker checks database connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// CircuitChecker reports whether an outbound dependency's circuit breaker
// is open.
type CircuitChecker interface {
	IsCircuitOpen() bool
}

// HealthHandler serves the health, readiness and liveness endpoints.
type HealthHandler struct {
	db       HealthChecker
	circuits map[string]CircuitChecker
	logger   *zap.Logger
	started  time.Time
}

// HealthHandlerConfig holds the health handler dependencies. Circuits maps
// a dependency name to its circuit breaker check.
type HealthHandlerConfig struct {
	DB       HealthChecker
	Circuits map[string]CircuitChecker
	Logger   *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	return &HealthHandler{
		db:       cfg.DB,
		circuits: cfg.Circuits,
		logger:   cfg.Logger,
		started:  time.Now(),
	}
}

// RegisterRoutes registers the health endpoints.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
}

// HealthResponse is the health endpoint response body.
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// Health reports overall health: unhealthy when the database is down,
// degraded when an outbound circuit breaker is open.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database unreachable", zap.Error(err))
		checks["database"] = "unhealthy"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	for name, c := range h.circuits {
		if c.IsCircuitOpen() {
			checks[name] = "circuit_open"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks[name] = "healthy"
		}
	}

	JSON(w, httpStatus, HealthResponse{
		Status: status,
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Checks: checks,
	})
}

// Ready reports whether the service can take traffic. Only the database
// gates readiness; an open circuit breaker recovers on its own.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live reports process liveness.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
