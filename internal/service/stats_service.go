package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"safety-app/internal/domain"
	"safety-app/internal/repository"
	"safety-app/pkg/logger"
	"safety-app/pkg/redis"
)

// StatsOptions configures a stats service
type StatsOptions struct {
	Redis *redis.Client
	// Activities is the relational activity log; nil when not configured
	Activities repository.ActivityRepository
	// TotalContent is what the completion rate is measured against
	TotalContent int
	Logger       *logger.Logger
	Clock        func() time.Time
}

// statsService caches snapshots in a redis hash per user, one field per
// range, and keeps a 30 day activity log next to it
type statsService struct {
	redis        *redis.Client
	activities   repository.ActivityRepository
	totalContent int
	logger       *logger.Logger
	now          func() time.Time
	group        singleflight.Group
}

// NewStatsService creates a new stats service
func NewStatsService(opts StatsOptions) StatsService {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TotalContent <= 0 {
		opts.TotalContent = 10
	}
	return &statsService{
		redis:        opts.Redis,
		activities:   opts.Activities,
		totalContent: opts.TotalContent,
		logger:       opts.Logger.Component("stats"),
		now:          opts.Clock,
	}
}

// GetStats serves a fresh cached snapshot or builds a new one. Concurrent
// misses for the same user and range share one build. A build that an
// invalidation overtook is returned but never cached.
func (s *statsService) GetStats(ctx context.Context, userID string, timeRange domain.TimeRange) (*domain.UserStatsSnapshot, bool, error) {
	key := s.redis.KeyBuilder.KeyUserStats(userID)
	genKey := s.redis.KeyBuilder.KeyUserStatsGen(userID)

	if snap := s.cachedSnapshot(ctx, key, timeRange); snap != nil {
		return snap, true, nil
	}

	gen, err := s.redis.Generation(ctx, genKey)
	if err != nil {
		return nil, false, fmt.Errorf("read stats generation: %w", err)
	}

	flight := fmt.Sprintf("%s|%s|%d", key, timeRange, gen)
	v, err, _ := s.group.Do(flight, func() (interface{}, error) {
		// one caller going away must not fail the others
		ctx := context.WithoutCancel(ctx)

		snap, cacheable := s.generate(ctx, userID, timeRange)
		if !cacheable {
			return snap, nil
		}

		raw, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("encode stats snapshot: %w", err)
		}
		written, err := s.redis.HSetIfGeneration(ctx, genKey, gen, key, string(timeRange), raw, redis.TTLUserStats)
		if err != nil {
			return nil, fmt.Errorf("cache stats snapshot: %w", err)
		}
		if !written {
			s.logger.Debug("Stats invalidated during build, not caching",
				zap.String("user_id", userID),
				zap.String("range", string(timeRange)))
		}
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.(*domain.UserStatsSnapshot), false, nil
}

func (s *statsService) cachedSnapshot(ctx context.Context, key string, timeRange domain.TimeRange) *domain.UserStatsSnapshot {
	raw, err := s.redis.HGet(ctx, key, string(timeRange))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			s.logger.Warn("Stats cache read failed, rebuilding", zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	var snap domain.UserStatsSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("Stats cache corrupted, rebuilding", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !snap.IsValid(s.now()) {
		s.logger.Debug("Stats cache stale", zap.String("key", key), zap.Time("last_updated", snap.LastUpdated))
		return nil
	}
	return &snap
}

// generate builds a snapshot. A failed aggregation degrades to an empty
// snapshot that is not cached.
func (s *statsService) generate(ctx context.Context, userID string, timeRange domain.TimeRange) (*domain.UserStatsSnapshot, bool) {
	now := s.now()
	if s.activities == nil {
		return EmptySnapshot(userID, timeRange, now), true
	}

	activities, err := s.activities.ListByUser(ctx, userID, timeRange.Since(now), maxActivitiesPerSnapshot)
	if err != nil {
		s.logger.Error("Failed to load activities, serving empty stats",
			zap.String("user_id", userID),
			zap.String("range", string(timeRange)),
			zap.Error(err))
		return EmptySnapshot(userID, timeRange, now), false
	}

	snap := BuildSnapshot(userID, timeRange, activities, s.totalContent, now)
	s.logger.Debug("Stats snapshot built",
		zap.String("user_id", userID),
		zap.String("range", string(timeRange)),
		zap.Int("activities", len(activities)))
	return snap, true
}

// RecordActivity writes the activity log entry, mirrors it into the
// relational store when there is one, then invalidates the snapshots
func (s *statsService) RecordActivity(ctx context.Context, activity *domain.Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.now().UTC()
	}

	raw, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("encode activity: %w", err)
	}
	key := s.redis.KeyBuilder.KeyActivity(activity.UserID, activity.CreatedAt.UnixMilli())
	if err := s.redis.Set(ctx, key, raw, redis.TTLActivity); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	if s.activities != nil {
		if err := s.activities.Insert(ctx, activity); err != nil {
			s.logger.Error("Database insert error",
				zap.String("user_id", activity.UserID),
				zap.String("action", activity.Action),
				zap.Error(err))
		}
	}

	if err := s.InvalidateStats(ctx, activity.UserID); err != nil {
		return err
	}

	s.logger.Debug("Activity recorded",
		zap.String("user_id", activity.UserID),
		zap.String("action", activity.Action))
	return nil
}

// RecentActivities reads the redis activity log of a user, newest first
func (s *statsService) RecentActivities(ctx context.Context, userID string, limit int) ([]*domain.Activity, error) {
	keys, err := s.redis.ScanKeys(ctx, s.redis.KeyBuilder.KeyActivityPattern(userID))
	if err != nil {
		return nil, fmt.Errorf("scan activity log: %w", err)
	}
	values, err := s.redis.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}

	activities := make([]*domain.Activity, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var a domain.Activity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			s.logger.Warn("Skipping corrupted activity log entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		activities = append(activities, &a)
	}

	sort.Slice(activities, func(i, j int) bool {
		return activities[i].CreatedAt.After(activities[j].CreatedAt)
	})
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}

// InvalidateStats deletes the user's snapshot hash, every range at once, and
// bumps the generation so builds already running do not write it back
func (s *statsService) InvalidateStats(ctx context.Context, userID string) error {
	kb := s.redis.KeyBuilder
	if err := s.redis.BumpGeneration(ctx, kb.KeyUserStatsGen(userID), redis.TTLUserStatsGen, kb.KeyUserStats(userID)); err != nil {
		return fmt.Errorf("invalidate stats: %w", err)
	}
	return nil
}
