package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"safety-app/internal/container"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  func() map[string]func(ctx context.Context) error
	service string
	version string
	logger  *logger.Logger
}

// NewHealthHandler creates a new health handler probing every store the
// container has opened
func NewHealthHandler(c *container.Container, service string) *HealthHandler {
	return &HealthHandler{
		checks:  c.HealthChecks,
		service: service,
		version: c.GetConfig().CacheVersion,
		logger:  c.GetLogger(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health. Any failing dependency turns the response
// into a 503 so load balancers stop routing here.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Service:   h.service,
	}

	checks := h.checks()
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	if len(names) > 0 {
		response.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			appErr := errors.NewUnavailableError(name+" is unreachable", err)
			h.logger.WithError(appErr).WithField("dependency", name).Warn("Health check failed")
			response.Checks[name] = "unhealthy"
			response.Status = "degraded"
			status = appErr.StatusCode
			continue
		}
		response.Checks[name] = "ok"
	}

	writeJSON(w, status, response, h.logger)
}
