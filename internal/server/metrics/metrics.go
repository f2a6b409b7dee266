// Package metrics holds the prometheus collectors of the auth server.
// Collectors register with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginTotal counts login attempts by result: ok, unauthorized, error.
	LoginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by result",
	}, []string{"result"})

	// RefreshTotal counts refresh token rotations by result.
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "refresh_total",
		Help:      "Refresh token rotations by result",
	}, []string{"result"})

	IssuedTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "issued_tokens_total",
		Help:      "Issued tokens by type",
	}, []string{"type"})

	EvictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "evicted_sessions_total",
		Help:      "Refresh sessions evicted by the per-user cap",
	})

	PurgedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auth",
		Name:      "purged_tokens_total",
		Help:      "Revoked or expired token rows removed on issuance",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Result labels shared by the counters above.
const (
	ResultOK           = "ok"
	ResultUnauthorized = "unauthorized"
	ResultError        = "error"
)
