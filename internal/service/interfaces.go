package service

import (
	"context"

	"safety-app/internal/domain"
)

// StatsService defines the interface for learning statistics
type StatsService interface {
	// GetStats returns the snapshot for a user and range. cached reports
	// whether it came from the snapshot cache.
	GetStats(ctx context.Context, userID string, timeRange domain.TimeRange) (snapshot *domain.UserStatsSnapshot, cached bool, err error)

	// RecordActivity logs an activity and invalidates the user's snapshots
	RecordActivity(ctx context.Context, activity *domain.Activity) error

	// RecentActivities reads the activity log, newest first
	RecentActivities(ctx context.Context, userID string, limit int) ([]*domain.Activity, error)

	// InvalidateStats drops every cached snapshot of a user
	InvalidateStats(ctx context.Context, userID string) error
}

// AdminAuthService defines the interface for admin token operations
type AdminAuthService interface {
	// IssueAdminToken signs a token for subject
	IssueAdminToken(subject string) (string, error)

	// ValidateAdminToken verifies a token and returns its claims
	ValidateAdminToken(ctx context.Context, token string) (*domain.AdminClaims, error)
}

// Services aggregates all service interfaces
type Services struct {
	Stats StatsService
	Auth  AdminAuthService
}
