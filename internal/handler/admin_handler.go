package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"safety-app/internal/domain"
	"safety-app/internal/middleware"
	"safety-app/internal/service"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// AdminHandler handles admin-only statistics maintenance
type AdminHandler struct {
	stats  service.StatsService
	logger *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(stats service.StatsService, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		stats:  stats,
		logger: logger.Component("admin_handler"),
	}
}

// ActivitiesResponse lists a user's recent activity log
type ActivitiesResponse struct {
	Success bool               `json:"success"`
	Data    []*domain.Activity `json:"data"`
	Count   int                `json:"count"`
}

// MessageResponse is a plain success acknowledgement
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RecentActivities handles GET /api/admin/activities/{userId}?limit=
func (h *AdminHandler) RecentActivities(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxActivityLimit {
			middleware.WriteError(w, r, errors.NewValidationError("limit must be between 1 and 500", nil), h.logger)
			return
		}
		limit = n
	}

	activities, err := h.stats.RecentActivities(r.Context(), userID, limit)
	if err != nil {
		middleware.WriteError(w, r, errors.NewInternalError("Failed to read activities", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ActivitiesResponse{
		Success: true,
		Data:    activities,
		Count:   len(activities),
	}, h.logger)
}

// InvalidateStats handles DELETE /api/admin/stats/{userId}
func (h *AdminHandler) InvalidateStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := h.stats.InvalidateStats(r.Context(), userID); err != nil {
		middleware.WriteError(w, r, errors.NewInternalError("Failed to clear stats", err), h.logger)
		return
	}

	h.logger.WithField("user_id", userID).Info("Stats cache cleared by admin")
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Stats cache cleared"}, h.logger)
}
