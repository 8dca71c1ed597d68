// Package metrics provides Prometheus metrics for the marketplace session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthChecksTotal counts authentication checks by normalized outcome
	// (authenticated, unauthenticated, failed).
	AuthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "auth_checks_total",
			Help:      "Total number of authentication checks",
		},
		[]string{"outcome"},
	)

	// RefreshCoalescedTotal counts refresh calls that joined an in-flight check.
	RefreshCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "session_refresh_coalesced_total",
			Help:      "Refresh calls served by an already in-flight check",
		},
	)

	// StaleResolutionsTotal counts check resolutions discarded as stale.
	StaleResolutionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "session_stale_resolutions_total",
			Help:      "Check resolutions dropped because a newer session state exists",
		},
	)

	// GuardDecisionsTotal counts route guard outcomes.
	GuardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions",
		},
		[]string{"side", "decision"},
	)

	// LoginsTotal counts backend login/signup attempts by result.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "logins_total",
			Help:      "Login and signup attempts",
		},
		[]string{"kind", "result"},
	)
)
