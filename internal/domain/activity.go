package domain

import "time"

// Activity actions the web client reports
const (
	ActionPageView      = "page_view"
	ActionVideoProgress = "video_progress"
	ActionVideoComplete = "video_complete"
	ActionQuizComplete  = "quiz_complete"
)

// Activity is one learning event reported through POST /api/stats. Data is
// opaque JSON; the aggregator reads videoId, quizId, watchTime and score.
type Activity struct {
	ID        int64          `json:"id,omitempty" db:"id"`
	UserID    string         `json:"userId" db:"user_id"`
	Action    string         `json:"action" db:"action"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
	CreatedAt time.Time      `json:"timestamp" db:"created_at"`
}

// StringField returns Data[key] when it is a non-empty string
func (a *Activity) StringField(key string) string {
	if s, ok := a.Data[key].(string); ok {
		return s
	}
	return ""
}

// NumberField returns Data[key] as float64 when it is numeric
func (a *Activity) NumberField(key string) (float64, bool) {
	switch v := a.Data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
