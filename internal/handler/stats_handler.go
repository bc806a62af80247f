package handler

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"safety-app/internal/domain"
	"safety-app/internal/middleware"
	"safety-app/internal/service"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

const (
	defaultUserID   = "anonymous"
	maxRequestBytes = 64 << 10
)

// StatsHandler handles the learning statistics endpoint
type StatsHandler struct {
	stats    service.StatsService
	validate *validator.Validate
	logger   *logger.Logger
	now      func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats service.StatsService, logger *logger.Logger) *StatsHandler {
	return &StatsHandler{
		stats:    stats,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Component("stats_handler"),
		now:      time.Now,
	}
}

// StatsResponse is the body of GET /api/stats
type StatsResponse struct {
	Success   bool                      `json:"success"`
	Data      *domain.UserStatsSnapshot `json:"data"`
	Cached    bool                      `json:"cached"`
	Timestamp string                    `json:"timestamp"`
}

// UpdateStatsRequest is the body of POST /api/stats
type UpdateStatsRequest struct {
	UserID string         `json:"userId" validate:"required,max=128"`
	Action string         `json:"action" validate:"required,max=64"`
	Data   map[string]any `json:"data"`
}

// UpdateStatsResponse is the body of a successful POST /api/stats
type UpdateStatsResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// GetStats handles GET /api/stats?userId=&range=
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	userID := query.Get("userId")
	if userID == "" {
		userID = defaultUserID
	}

	timeRange, err := domain.ParseTimeRange(query.Get("range"))
	if err != nil {
		middleware.WriteError(w, r, errors.NewValidationError("Invalid range", map[string]interface{}{
			"range":   query.Get("range"),
			"allowed": []domain.TimeRange{domain.Range1Day, domain.Range7Days, domain.Range30Days, domain.Range90Days, domain.RangeAll},
		}), h.logger)
		return
	}

	snap, cached, err := h.stats.GetStats(r.Context(), userID, timeRange)
	if err != nil {
		middleware.WriteError(w, r, errors.NewInternalError("Internal server error", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Success:   true,
		Data:      snap,
		Cached:    cached,
		Timestamp: timestamp(h.now()),
	}, h.logger)
}

// UpdateStats handles POST /api/stats
func (h *StatsHandler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, r, errors.NewValidationError("Invalid JSON body", nil), h.logger)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		middleware.WriteError(w, r, validationError(err), h.logger)
		return
	}

	activity := &domain.Activity{
		UserID:    req.UserID,
		Action:    req.Action,
		Data:      req.Data,
		CreatedAt: h.now().UTC(),
	}
	if err := h.stats.RecordActivity(r.Context(), activity); err != nil {
		middleware.WriteError(w, r, errors.NewInternalError("Failed to update stats", err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, UpdateStatsResponse{
		Success:   true,
		Message:   "Stats updated successfully",
		Timestamp: timestamp(h.now()),
	}, h.logger)
}

// validationError maps validator failures onto the messages the web
// client knows about
func validationError(err error) *errors.AppError {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.NewValidationError("Invalid request", nil)
	}

	details := make(map[string]interface{}, len(fieldErrs))
	missing := false
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
		if fe.Tag() == "required" {
			missing = true
		}
	}
	if missing {
		return errors.NewValidationError("Missing required fields: userId, action", details)
	}
	return errors.NewValidationError("Invalid fields", details)
}
