package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Protocol metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_enforcer_requests_total",
			Help: "Total number of protocol requests by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airhawk_enforcer_request_duration_seconds",
			Help:    "Time to answer a protocol request, including snapshot writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airhawk_enforcer_active_connections",
			Help: "Number of client connections currently open",
		},
	)

	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airhawk_enforcer_connections_total",
			Help: "Total number of accepted client connections",
		},
	)

	// Blocklist metrics
	BlockedMACs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airhawk_enforcer_blocked_macs",
			Help: "Current size of the blocklist",
		},
	)

	SnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airhawk_enforcer_snapshot_errors_total",
			Help: "Total number of failed blocklist snapshot writes",
		},
	)

	ChangeEventErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airhawk_enforcer_change_event_errors_total",
			Help: "Total number of blocklist change events that could not be published",
		},
	)
)
