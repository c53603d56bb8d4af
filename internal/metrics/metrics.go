// Package metrics defines the Prometheus instruments for the credential
// lifecycle manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenRefreshTotal counts refresh outcomes by provider. Outcome is
	// one of success, hard_failure, transient_exhausted.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_total",
			Help: "Token refresh outcomes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// MaintenanceTickDuration tracks how long a full bulk validation pass
	// takes.
	MaintenanceTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "token_maintenance_tick_duration_seconds",
			Help:    "Duration of one bulk token validation pass",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
	)

	// CredentialsAwaitingReauth gauges how many connections currently
	// require user re-authorization, as of the last maintenance pass.
	CredentialsAwaitingReauth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "credentials_awaiting_reauth",
			Help: "Connections requiring user re-authorization as of the last maintenance pass",
		},
	)
)
