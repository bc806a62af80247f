package resourcecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_requests_total",
			Help: "Requests handled by the resource cache by tier and response source",
		},
		[]string{"tier", "source"},
	)

	refreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resource_cache_refresh_failures_total",
			Help: "Background refreshes of cache-first entries that failed",
		},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_cache_upstream_requests_total",
			Help: "Upstream fetches by result (success, failure, rejected by circuit breaker)",
		},
		[]string{"result"},
	)
)
