package repository

import (
	"context"
	"time"

	"safety-app/internal/domain"
)

// ActivityRepository defines the interface for the relational activity log
type ActivityRepository interface {
	// Insert stores an activity and fills in its ID
	Insert(ctx context.Context, activity *domain.Activity) error

	// ListByUser returns a user's activities at or after since, oldest
	// first. A zero since means all of them; limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*domain.Activity, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Activity ActivityRepository
}
