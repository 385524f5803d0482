package handler

import (
	"context"
	"net/http"
	"time"

	"coopvote/pkg/logger"
)

// HealthChecker is implemented by backing services the API depends on
type HealthChecker interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]HealthChecker
	logger *logger.Logger
}

// NewHealthHandler builds a health handler. Nil checkers are skipped.
func NewHealthHandler(checks map[string]HealthChecker, log *logger.Logger) *HealthHandler {
	active := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandler{
		checks: active,
		logger: log.Named("health"),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "coopvote",
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		response.Dependencies = make(map[string]string, len(h.checks))
	}
	for name, c := range h.checks {
		if err := c.Health(ctx); err != nil {
			h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			response.Dependencies[name] = "unhealthy"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Dependencies[name] = "healthy"
	}

	respondJSON(w, status, response)
}
