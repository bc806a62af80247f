// Package navigation implements the client-side router: a fixed route table,
// an authorization gate, before-leave vetoes, timed page transitions and
// page-state save/restore around every navigation.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"safety-app/internal/browser"
	"safety-app/internal/domain"
	"safety-app/internal/pagestate"
	"safety-app/pkg/logger"
)

// Authorizer gates routes that require authentication
type Authorizer interface {
	Authorize(ctx context.Context, route domain.Route) bool
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, route domain.Route) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, route domain.Route) bool {
	return f(ctx, route)
}

// Dependencies are the collaborators a Router drives. A nil Authorizer
// denies every protected route.
type Dependencies struct {
	Document   browser.Document
	History    browser.History
	PageStates *pagestate.Cache
	Authorizer Authorizer
	Logger     *logger.Logger
	Clock      func() time.Time
}

// PageInfo is a read-only view of the router
type PageInfo struct {
	Path    string                          `json:"path"`
	Route   *domain.Route                   `json:"route"`
	State   *domain.PageState               `json:"state,omitempty"`
	History []domain.NavigationHistoryEntry `json:"history"`
}

// Router owns the active route and the navigation log
type Router struct {
	cfg     Config
	routes  map[string]domain.Route
	doc     browser.Document
	history browser.History
	states  *pagestate.Cache
	auth    Authorizer
	log     *logger.Logger
	now     func() time.Time

	// guard holds a token while a navigation runs
	guard chan struct{}

	mu      sync.RWMutex
	current *domain.Route
	entries []domain.NavigationHistoryEntry

	hooksMu     sync.Mutex
	beforeLeave hookSet[BeforeLeaveHook]
	pageEnter   hookSet[PageEnterHook]
}

// New validates the route table and creates a Router
func New(cfg Config, deps Dependencies) (*Router, error) {
	cfg = cfg.withDefaults()

	if deps.Document == nil || deps.History == nil || deps.PageStates == nil {
		return nil, errors.New("navigation: document, history and page states are required")
	}

	routes := make(map[string]domain.Route, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if route.Path == "" || !strings.HasPrefix(route.Path, "/") {
			return nil, fmt.Errorf("navigation: invalid route path %q", route.Path)
		}
		if _, dup := routes[route.Path]; dup {
			return nil, fmt.Errorf("navigation: duplicate route %q", route.Path)
		}
		routes[route.Path] = route
	}
	if _, ok := routes[cfg.DefaultPath]; !ok {
		return nil, fmt.Errorf("navigation: default path %q is not registered", cfg.DefaultPath)
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Router{
		cfg:     cfg,
		routes:  routes,
		doc:     deps.Document,
		history: deps.History,
		states:  deps.PageStates,
		auth:    deps.Authorizer,
		log:     log.Component("router"),
		now:     clock,
		guard:   make(chan struct{}, 1),
	}, nil
}

// Start resolves the current location. A known, permitted path becomes the
// active route with its saved state restored; anything else is replaced by
// the default route.
func (r *Router) Start(ctx context.Context) error {
	path := r.history.CurrentPath()
	route, ok := r.routes[path]
	if !ok || (route.RequiresAuth && !r.authorize(ctx, route)) {
		r.log.Info("initial location not routable, redirecting",
			zap.String("path", path),
			zap.String("default", r.cfg.DefaultPath))
		return r.NavigateTo(ctx, r.cfg.DefaultPath, nil, NavigateOptions{Replace: true})
	}

	r.activate(route)
	r.restore(path)
	r.emitEnter(ctx, path, route, nil)
	return nil
}

// NavigateTo moves to path. It fails with ErrNavigationInProgress,
// ErrRouteNotFound, ErrUnauthorized or ErrNavigationCancelled without
// touching history. Once the before-leave hooks allow it, the navigation
// runs to completion: save current state, push or replace history, activate
// the route, record it, play the transition, restore the destination state
// and notify page-enter hooks.
func (r *Router) NavigateTo(ctx context.Context, path string, state map[string]any, opts NavigateOptions) (err error) {
	started := time.Now()
	defer func() {
		navigationAttempts.WithLabelValues(outcomeLabel(err)).Inc()
		if err == nil {
			navigationDuration.Observe(time.Since(started).Seconds())
			return
		}
		r.logFailure(path, err)
	}()

	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	route, ok := r.routes[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, path)
	}
	if route.RequiresAuth && !r.authorize(ctx, route) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, path)
	}
	if r.vetoed(ctx, route, path) {
		return ErrNavigationCancelled
	}

	opts = opts.resolve(r.cfg)

	r.states.Save(r.history.CurrentPath(), nil)

	if opts.Replace {
		r.history.Replace(state, route.Title, path)
	} else {
		r.history.Push(state, route.Title, path)
	}

	r.activate(route)
	r.record(path, state)
	r.transition(opts)
	r.restore(path)
	r.emitEnter(ctx, path, route, state)

	r.log.Debug("navigated",
		zap.String("path", path),
		zap.Bool("replace", opts.Replace),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// HandlePopState re-syncs the router after the history cursor moved (back or
// forward). No before-leave hooks run and nothing is pushed.
func (r *Router) HandlePopState(ctx context.Context, state map[string]any) bool {
	path := r.history.CurrentPath()
	route, ok := r.routes[path]
	if !ok {
		r.log.Warn("popstate to unknown route", zap.String("path", path))
		return false
	}
	if state == nil {
		state = map[string]any{}
	}
	r.activate(route)
	r.restore(path)
	r.emitEnter(ctx, path, route, state)
	return true
}

// GoBack moves one entry back. It refuses when fewer than two navigations
// were recorded.
func (r *Router) GoBack(ctx context.Context) bool {
	r.mu.RLock()
	n := len(r.entries)
	r.mu.RUnlock()
	if n <= 1 {
		return false
	}
	entry, ok := r.history.Back()
	if !ok {
		return false
	}
	return r.HandlePopState(ctx, entry.State)
}

// GoForward moves one entry forward when there is one
func (r *Router) GoForward(ctx context.Context) bool {
	entry, ok := r.history.Forward()
	if !ok {
		return false
	}
	return r.HandlePopState(ctx, entry.State)
}

// HandleLinkClick routes same-origin absolute paths and leaves everything
// else (protocol-relative, external, fragment, relative) to the caller.
func (r *Router) HandleLinkClick(ctx context.Context, href string) (handled bool, err error) {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return false, nil
	}
	return true, r.NavigateTo(ctx, href, nil, NavigateOptions{})
}

// Unload saves the state of the current page, as before the page goes away
func (r *Router) Unload() {
	r.states.Save(r.history.CurrentPath(), nil)
}

// CurrentRoute returns the active route
func (r *Router) CurrentRoute() (domain.Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return domain.Route{}, false
	}
	return *r.current, true
}

// Routes returns the registered routes in table order
func (r *Router) Routes() []domain.Route {
	return append([]domain.Route(nil), r.cfg.Routes...)
}

// History returns a copy of the navigation log
func (r *Router) History() []domain.NavigationHistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.NavigationHistoryEntry(nil), r.entries...)
}

// CurrentPageInfo returns the location, active route, saved state and log
func (r *Router) CurrentPageInfo() PageInfo {
	path := r.history.CurrentPath()
	info := PageInfo{Path: path, History: r.History()}
	if route, ok := r.CurrentRoute(); ok {
		info.Route = &route
	}
	if state, ok := r.states.Load(path); ok {
		info.State = state
	}
	return info
}

// ClearPageState forgets the saved state of path, or of every path when empty
func (r *Router) ClearPageState(path string) {
	r.states.Clear(path)
}

// Reset forgets every saved state and the navigation log, then goes home
func (r *Router) Reset(ctx context.Context) error {
	r.states.Clear("")
	r.mu.Lock()
	r.entries = nil
	r.current = nil
	r.mu.Unlock()
	return r.NavigateTo(ctx, r.cfg.DefaultPath, nil, NavigateOptions{})
}

// OnBeforeLeave subscribes a veto hook and returns its unsubscribe func
func (r *Router) OnBeforeLeave(h BeforeLeaveHook) func() {
	r.hooksMu.Lock()
	id := r.beforeLeave.add(h)
	r.hooksMu.Unlock()
	return func() {
		r.hooksMu.Lock()
		r.beforeLeave.remove(id)
		r.hooksMu.Unlock()
	}
}

// OnPageEnter subscribes a page-enter hook and returns its unsubscribe func
func (r *Router) OnPageEnter(h PageEnterHook) func() {
	r.hooksMu.Lock()
	id := r.pageEnter.add(h)
	r.hooksMu.Unlock()
	return func() {
		r.hooksMu.Lock()
		r.pageEnter.remove(id)
		r.hooksMu.Unlock()
	}
}

func (r *Router) acquire(ctx context.Context) error {
	if r.cfg.Concurrency == ConcurrencySerialize {
		select {
		case r.guard <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case r.guard <- struct{}{}:
		return nil
	default:
		return ErrNavigationInProgress
	}
}

func (r *Router) release() {
	<-r.guard
}

func (r *Router) authorize(ctx context.Context, route domain.Route) bool {
	if r.auth == nil {
		return false
	}
	return r.auth.Authorize(ctx, route)
}

// vetoed lets every before-leave hook vote, then reports whether any vetoed
func (r *Router) vetoed(ctx context.Context, to domain.Route, path string) bool {
	r.hooksMu.Lock()
	hooks := r.beforeLeave.snapshot()
	r.hooksMu.Unlock()
	if len(hooks) == 0 {
		return false
	}

	ev := LeaveEvent{To: to, Path: path}
	if from, ok := r.CurrentRoute(); ok {
		ev.From = &from
	}

	veto := false
	for _, h := range hooks {
		if h(ctx, ev) == Veto {
			veto = true
		}
	}
	return veto
}

func (r *Router) activate(route domain.Route) {
	r.mu.Lock()
	r.current = &route
	r.mu.Unlock()
	r.doc.SetTitle(route.Title)
}

func (r *Router) record(path string, state map[string]any) {
	r.mu.Lock()
	r.entries = append(r.entries, domain.NavigationHistoryEntry{
		Path:      path,
		Timestamp: r.now(),
		State:     state,
	})
	r.mu.Unlock()
}

// transition plays the page transition and blocks for its full duration.
// Cancellation of the caller's context does not cut it short.
func (r *Router) transition(opts NavigateOptions) {
	r.doc.StartTransition(opts.TransitionStyle)
	if opts.TransitionDuration > 0 {
		timer := time.NewTimer(opts.TransitionDuration)
		<-timer.C
	}
	r.doc.EndTransition(opts.TransitionStyle)
}

func (r *Router) restore(path string) {
	if state, ok := r.states.Load(path); ok {
		r.states.Restore(state)
	}
}

func (r *Router) emitEnter(ctx context.Context, path string, route domain.Route, state map[string]any) {
	r.hooksMu.Lock()
	hooks := r.pageEnter.snapshot()
	r.hooksMu.Unlock()

	ev := EnterEvent{Path: path, Route: route, State: state}
	for _, h := range hooks {
		h(ctx, ev)
	}
}

func (r *Router) logFailure(path string, err error) {
	switch {
	case errors.Is(err, ErrNavigationInProgress):
		r.log.Debug("navigation rejected, another is in progress", zap.String("path", path))
	case errors.Is(err, ErrNavigationCancelled):
		r.log.Info("navigation cancelled by before-leave hook", zap.String("path", path))
	default:
		r.log.Warn("navigation failed", zap.String("path", path), zap.Error(err))
	}
}
