package domain

import (
	"fmt"
	"time"
)

// TimeRange is the window a statistics snapshot covers
type TimeRange string

const (
	Range1Day   TimeRange = "1d"
	Range7Days  TimeRange = "7d"
	Range30Days TimeRange = "30d"
	Range90Days TimeRange = "90d"
	RangeAll    TimeRange = "all"
)

// ParseTimeRange validates a range query value. Empty means 7d.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return Range7Days, nil
	case Range1Day, Range7Days, Range30Days, Range90Days, RangeAll:
		return TimeRange(s), nil
	}
	return "", fmt.Errorf("unsupported range %q", s)
}

// Since returns the start of the window ending at now; zero for RangeAll
func (r TimeRange) Since(now time.Time) time.Time {
	switch r {
	case Range1Day:
		return now.Add(-24 * time.Hour)
	case Range7Days:
		return now.AddDate(0, 0, -7)
	case Range30Days:
		return now.AddDate(0, 0, -30)
	case Range90Days:
		return now.AddDate(0, 0, -90)
	}
	return time.Time{}
}

// Validity is how long a snapshot of this range may be served from cache
func (r TimeRange) Validity() time.Duration {
	if r == Range1Day {
		return 30 * time.Minute
	}
	return 60 * time.Minute
}

// UserStatsSnapshot is the aggregate returned by GET /api/stats
type UserStatsSnapshot struct {
	UserID      string        `json:"userId"`
	TimeRange   TimeRange     `json:"timeRange"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Overview    StatsOverview `json:"overview"`
	Videos      VideoStats    `json:"videos"`
	Quizzes     QuizStats     `json:"quizzes"`
	Progress    ProgressStats `json:"progress"`
	Trends      TrendStats    `json:"trends"`
}

// IsValid reports whether the snapshot is still fresh enough to serve at now
func (s *UserStatsSnapshot) IsValid(now time.Time) bool {
	if s == nil || s.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) < s.TimeRange.Validity()
}

type StatsOverview struct {
	TotalVideosWatched int     `json:"totalVideosWatched"`
	TotalQuizzesTaken  int     `json:"totalQuizzesTaken"`
	TotalLearningTime  float64 `json:"totalLearningTime"` // seconds
	AverageScore       float64 `json:"averageScore"`
	CompletionRate     int     `json:"completionRate"` // percent
}

type VideoStats struct {
	Completed        []string `json:"completed"`
	InProgress       []string `json:"inProgress"`
	TotalWatchTime   float64  `json:"totalWatchTime"`
	AverageWatchTime float64  `json:"averageWatchTime"`
}

type QuizScore struct {
	QuizID  string    `json:"quizId"`
	Score   float64   `json:"score"`
	TakenAt time.Time `json:"takenAt"`
}

type QuizStats struct {
	Completed     []string    `json:"completed"`
	Scores        []QuizScore `json:"scores"`
	AverageScore  float64     `json:"averageScore"`
	BestScore     float64     `json:"bestScore"`
	TotalAttempts int         `json:"totalAttempts"`
}

type DailyActivity struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

type WeeklyProgress struct {
	WeekStart        string `json:"weekStart"` // Monday, YYYY-MM-DD
	VideosCompleted  int    `json:"videosCompleted"`
	QuizzesCompleted int    `json:"quizzesCompleted"`
}

type Achievement struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	EarnedAt time.Time `json:"earnedAt"`
}

type ProgressStats struct {
	DailyActivity  []DailyActivity  `json:"dailyActivity"`
	WeeklyProgress []WeeklyProgress `json:"weeklyProgress"`
	Achievements   []Achievement    `json:"achievements"`
}

type TrendStats struct {
	LearningStreak        int     `json:"learningStreak"`
	MostActiveDay         string  `json:"mostActiveDay"`
	PreferredLearningTime string  `json:"preferredLearningTime"`
	ImprovementRate       float64 `json:"improvementRate"`
}
