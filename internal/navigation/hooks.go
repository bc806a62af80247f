package navigation

import (
	"context"

	"safety-app/internal/domain"
)

// Decision is a before-leave hook's vote
type Decision int

const (
	Allow Decision = iota
	Veto
)

// LeaveEvent describes a navigation about to leave the current page.
// From is nil before the first route is shown.
type LeaveEvent struct {
	From *domain.Route
	To   domain.Route
	Path string
}

// EnterEvent describes a page that finished loading
type EnterEvent struct {
	Path  string
	Route domain.Route
	State map[string]any
}

// BeforeLeaveHook may veto a navigation. It runs synchronously.
type BeforeLeaveHook func(ctx context.Context, ev LeaveEvent) Decision

// PageEnterHook observes completed navigations
type PageEnterHook func(ctx context.Context, ev EnterEvent)

type hookSet[T any] struct {
	next  int
	order []int
	hooks map[int]T
}

func (s *hookSet[T]) add(h T) int {
	if s.hooks == nil {
		s.hooks = make(map[int]T)
	}
	id := s.next
	s.next++
	s.hooks[id] = h
	s.order = append(s.order, id)
	return id
}

func (s *hookSet[T]) remove(id int) {
	if _, ok := s.hooks[id]; !ok {
		return
	}
	delete(s.hooks, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *hookSet[T]) snapshot() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.hooks[id])
	}
	return out
}
