package domain

import "time"

// ScrollPosition is a document scroll offset in CSS pixels
type ScrollPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PageState is a per-path snapshot of view state. FormData is keyed by
// "form_<index>" in document order, each holding field name to value.
type PageState struct {
	ScrollPosition ScrollPosition               `json:"scrollPosition"`
	FormData       map[string]map[string]string `json:"formData,omitempty"`
	CustomData     map[string]any               `json:"customData,omitempty"`
	Timestamp      int64                        `json:"timestamp"` // unix milliseconds
	Path           string                       `json:"path"`
}

// SavedAt returns Timestamp as a time.Time
func (s *PageState) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// IsFresh reports whether the snapshot is younger than maxAge at now
func (s *PageState) IsFresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.SavedAt()) < maxAge
}

// Clone returns a deep copy so cached snapshots are never aliased by callers
func (s *PageState) Clone() *PageState {
	if s == nil {
		return nil
	}
	out := *s
	if s.FormData != nil {
		out.FormData = make(map[string]map[string]string, len(s.FormData))
		for k, fields := range s.FormData {
			copied := make(map[string]string, len(fields))
			for name, v := range fields {
				copied[name] = v
			}
			out.FormData[k] = copied
		}
	}
	if s.CustomData != nil {
		out.CustomData = make(map[string]any, len(s.CustomData))
		for k, v := range s.CustomData {
			out.CustomData[k] = v
		}
	}
	return &out
}
