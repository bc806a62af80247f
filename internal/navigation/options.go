package navigation

import (
	"time"

	"safety-app/internal/browser"
	"safety-app/internal/domain"
)

// ConcurrencyMode decides what happens to a navigation requested while
// another one is still running
type ConcurrencyMode int

const (
	// ConcurrencyReject fails the second call with ErrNavigationInProgress
	ConcurrencyReject ConcurrencyMode = iota
	// ConcurrencySerialize makes the second call wait its turn
	ConcurrencySerialize
)

// NavigateOptions tune a single navigation. Zero values use the router
// defaults.
type NavigateOptions struct {
	Replace            bool
	TransitionDuration time.Duration
	TransitionStyle    browser.TransitionStyle
}

// Config configures a Router
type Config struct {
	Routes             []domain.Route
	DefaultPath        string
	TransitionDuration time.Duration
	TransitionStyle    browser.TransitionStyle
	Concurrency        ConcurrencyMode
}

func (c Config) withDefaults() Config {
	if len(c.Routes) == 0 {
		c.Routes = DefaultRoutes()
	}
	if c.DefaultPath == "" {
		c.DefaultPath = DefaultPath
	}
	if c.TransitionStyle == "" {
		c.TransitionStyle = browser.TransitionFade
	}
	return c
}

func (o NavigateOptions) resolve(cfg Config) NavigateOptions {
	if o.TransitionDuration <= 0 {
		o.TransitionDuration = cfg.TransitionDuration
	}
	if o.TransitionStyle == "" {
		o.TransitionStyle = cfg.TransitionStyle
	}
	return o
}
