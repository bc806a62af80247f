// Package browser describes the document surface the router and page-state
// cache drive, and provides Headless, an in-memory implementation used by
// the navigation CLI and by tests.
package browser

import "safety-app/internal/domain"

// TransitionStyle names the visual effect played between pages
type TransitionStyle string

const (
	TransitionFade  TransitionStyle = "fade"
	TransitionSlide TransitionStyle = "slide"
	TransitionNone  TransitionStyle = "none"
)

// Form is one form element of the current document
type Form interface {
	// Values returns every named field and its current value
	Values() map[string]string
	// SetValue assigns a named field; it reports false when no field has that name
	SetValue(name, value string) bool
}

// Document is the rendered page: scroll offset, forms, title and the
// transition overlay.
type Document interface {
	ScrollPosition() domain.ScrollPosition
	ScrollTo(pos domain.ScrollPosition)
	// Forms returns forms in document order
	Forms() []Form
	SetTitle(title string)
	StartTransition(style TransitionStyle)
	EndTransition(style TransitionStyle)
}

// HistoryEntry is one slot of the session history
type HistoryEntry struct {
	Path  string
	Title string
	State map[string]any
}

// History is the session history stack of one browsing context
type History interface {
	CurrentPath() string
	Push(state map[string]any, title, path string)
	Replace(state map[string]any, title, path string)
	// Back and Forward move the cursor and return the entry landed on
	Back() (HistoryEntry, bool)
	Forward() (HistoryEntry, bool)
}
