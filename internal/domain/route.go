package domain

import "time"

// Route is a registered client-side route. Routes are fixed at startup and
// never mutated afterwards.
type Route struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Component    string `json:"component"`
	RequiresAuth bool   `json:"requiresAuth,omitempty"`
}

// NavigationHistoryEntry records one successful navigation. The log is
// append-only for the lifetime of a router and is never persisted.
type NavigationHistoryEntry struct {
	Path      string         `json:"path"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state,omitempty"`
}
