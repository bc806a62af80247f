package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"safety-app/internal/domain"
	"safety-app/internal/service"
	"safety-app/pkg/errors"
	"safety-app/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// AdminContextKey is the key for admin claims in context
	AdminContextKey ContextKey = "admin"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// AdminAuth requires a valid admin bearer token. Every attempt, allowed
// or not, is written to the audit log.
func AdminAuth(authService service.AdminAuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	audit := logger.Component("admin_audit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := audit.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote":     r.RemoteAddr,
				"request_id": GetRequestID(r.Context()),
			})

			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				entry.Warn("Admin access denied: no credentials")
				WriteError(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				entry.Warn("Admin access denied: malformed header")
				WriteError(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				WriteError(w, r, errors.NewAuthenticationError("Token is required"), logger)
				return
			}

			claims, err := authService.ValidateAdminToken(r.Context(), token)
			if err != nil {
				entry.WithError(err).Warn("Admin access denied")
				WriteError(w, r, errors.AsAppError(err), logger)
				return
			}

			entry.WithField("subject", claims.Subject).Info("Admin access granted")

			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminClaims returns the claims AdminAuth stored, or nil
func GetAdminClaims(ctx context.Context) *domain.AdminClaims {
	claims, _ := ctx.Value(AdminContextKey).(*domain.AdminClaims)
	return claims
}

// WriteError writes the standard error body for appErr
func WriteError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	log := logger.WithError(appErr).WithField("status", appErr.StatusCode)
	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error("Request error")
	} else {
		log.Debug("Request error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	if err := json.NewEncoder(w).Encode(errors.NewErrorResponse(appErr, GetRequestID(r.Context()))); err != nil {
		logger.WithError(err).Error("Failed to encode error response")
	}
}
