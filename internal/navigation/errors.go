package navigation

import "errors"

var (
	// ErrNavigationInProgress is returned when another navigation holds the router
	ErrNavigationInProgress = errors.New("navigation already in progress")
	// ErrRouteNotFound is returned for paths that are not registered
	ErrRouteNotFound = errors.New("route not found")
	// ErrUnauthorized is returned when a protected route fails the auth check
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNavigationCancelled is returned when a before-leave hook vetoes
	ErrNavigationCancelled = errors.New("navigation cancelled")
)
