package browser

import (
	"sync"
	"time"

	"safety-app/internal/domain"
)

// TransitionEvent records one transition call on a Headless document
type TransitionEvent struct {
	Style   TransitionStyle
	Started bool
	At      time.Time
}

// Headless is a Document and History kept entirely in memory
type Headless struct {
	mu          sync.Mutex
	scroll      domain.ScrollPosition
	forms       []*HeadlessForm
	title       string
	transitions []TransitionEvent
	entries     []HistoryEntry
	index       int
}

// NewHeadless creates a browsing context whose location is initialPath
func NewHeadless(initialPath string) *Headless {
	if initialPath == "" {
		initialPath = "/"
	}
	return &Headless{entries: []HistoryEntry{{Path: initialPath}}}
}

func (h *Headless) ScrollPosition() domain.ScrollPosition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scroll
}

func (h *Headless) ScrollTo(pos domain.ScrollPosition) {
	h.mu.Lock()
	h.scroll = pos
	h.mu.Unlock()
}

// SetForms replaces the forms of the document, e.g. after a page renders
func (h *Headless) SetForms(forms ...*HeadlessForm) {
	h.mu.Lock()
	h.forms = forms
	h.mu.Unlock()
}

func (h *Headless) Forms() []Form {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Form, len(h.forms))
	for i, f := range h.forms {
		out[i] = f
	}
	return out
}

func (h *Headless) SetTitle(title string) {
	h.mu.Lock()
	h.title = title
	h.mu.Unlock()
}

func (h *Headless) Title() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.title
}

func (h *Headless) StartTransition(style TransitionStyle) {
	h.recordTransition(style, true)
}

func (h *Headless) EndTransition(style TransitionStyle) {
	h.recordTransition(style, false)
}

func (h *Headless) recordTransition(style TransitionStyle, started bool) {
	h.mu.Lock()
	h.transitions = append(h.transitions, TransitionEvent{Style: style, Started: started, At: time.Now()})
	h.mu.Unlock()
}

// Transitions returns a copy of every transition start and end seen so far
func (h *Headless) Transitions() []TransitionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TransitionEvent(nil), h.transitions...)
}

func (h *Headless) CurrentPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index].Path
}

// Push drops any forward entries and appends a new one
func (h *Headless) Push(state map[string]any, title, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], HistoryEntry{Path: path, Title: title, State: state})
	h.index++
}

func (h *Headless) Replace(state map[string]any, title, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index] = HistoryEntry{Path: path, Title: title, State: state}
}

func (h *Headless) Back() (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index == 0 {
		return HistoryEntry{}, false
	}
	h.index--
	return h.entries[h.index], true
}

func (h *Headless) Forward() (HistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.index >= len(h.entries)-1 {
		return HistoryEntry{}, false
	}
	h.index++
	return h.entries[h.index], true
}

// Len returns the number of session history entries
func (h *Headless) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// HeadlessForm is an ordered set of named fields
type HeadlessForm struct {
	mu     sync.Mutex
	names  []string
	values map[string]string
}

// NewForm creates a form with the given field names, all empty
func NewForm(fields ...string) *HeadlessForm {
	f := &HeadlessForm{values: make(map[string]string, len(fields))}
	for _, name := range fields {
		if name == "" {
			continue
		}
		if _, dup := f.values[name]; !dup {
			f.names = append(f.names, name)
		}
		f.values[name] = ""
	}
	return f
}

func (f *HeadlessForm) Values() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func (f *HeadlessForm) SetValue(name, value string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[name]; !ok {
		return false
	}
	f.values[name] = value
	return true
}

// Value returns a field's value and whether the field exists
func (f *HeadlessForm) Value(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}

// Fields returns the field names in declaration order
func (f *HeadlessForm) Fields() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}
