package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Frame intake
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_frames_total",
			Help: "Total number of captured frames by classification result",
		},
		[]string{"result"},
	)

	// Pipeline outcomes
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_events_total",
			Help: "Total number of deauth events by final pipeline stage",
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_stage_failures_total",
			Help: "Total number of isolated stage failures",
		},
		[]string{"stage", "error_class"},
	)

	BlockRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_block_requests_total",
			Help: "Total number of escalations by enforcement outcome",
		},
		[]string{"outcome"},
	)

	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airhawk_detector_process_duration_seconds",
			Help:    "Time to run one event through the pipeline, excluding ledger appends",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ledger
	LedgerAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_ledger_appends_total",
			Help: "Total number of ledger appends by outcome",
		},
		[]string{"outcome"},
	)

	LedgerAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airhawk_detector_ledger_attempts_total",
			Help: "Total number of ledger append attempts including retries",
		},
	)

	LedgerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airhawk_detector_ledger_queue_depth",
			Help: "Current number of log events waiting for a ledger worker",
		},
	)

	// Reporting API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airhawk_detector_http_requests_total",
			Help: "Total number of reporting API requests",
		},
		[]string{"route", "status"},
	)
)
