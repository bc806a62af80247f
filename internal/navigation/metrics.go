package navigation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	navigationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "navigation_attempts_total",
			Help: "Navigation attempts by outcome",
		},
		[]string{"outcome"},
	)

	navigationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "navigation_duration_seconds",
			Help:    "Time from navigation request to page enter",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2},
		},
	)
)

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNavigationInProgress):
		return "busy"
	case errors.Is(err, ErrRouteNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNavigationCancelled):
		return "cancelled"
	}
	return "error"
}
