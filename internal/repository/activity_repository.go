package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"safety-app/internal/domain"
	"safety-app/pkg/database"
)

// activityRepository handles the user_activities table with PostgreSQL
type activityRepository struct {
	db *database.PostgresDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *database.PostgresDB) ActivityRepository {
	return &activityRepository{
		db: db,
	}
}

// Insert stores an activity in the database
func (r *activityRepository) Insert(ctx context.Context, activity *domain.Activity) error {
	data, err := encodeData(activity.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_activities (user_id, action, data, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err = r.db.Pool.QueryRow(ctx, query,
		activity.UserID,
		activity.Action,
		data,
		activity.CreatedAt,
	).Scan(&activity.ID)

	if err != nil {
		return fmt.Errorf("failed to insert user activity: %w", err)
	}

	return nil
}

// ListByUser retrieves a user's activities in a time window
func (r *activityRepository) ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*domain.Activity, error) {
	query := `
		SELECT id, user_id, action, data, created_at
		FROM user_activities
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	// LIMIT NULL is no limit
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.GetReadPool().Query(ctx, query, userID, since, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query user activities: %w", err)
	}
	defer rows.Close()

	var activities []*domain.Activity
	for rows.Next() {
		var (
			activity domain.Activity
			raw      []byte
		)
		if err := rows.Scan(&activity.ID, &activity.UserID, &activity.Action, &raw, &activity.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user activity: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &activity.Data); err != nil {
				return nil, fmt.Errorf("failed to decode activity %d data: %w", activity.ID, err)
			}
		}
		activities = append(activities, &activity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user activities: %w", err)
	}

	return activities, nil
}

// encodeData renders activity data for the jsonb column; nil stays NULL
func encodeData(data map[string]any) (*string, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity data: %w", err)
	}
	s := string(raw)
	return &s, nil
}
