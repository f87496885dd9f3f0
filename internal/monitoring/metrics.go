package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the observability pipeline
var (
	// Ingestion
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_events_ingested_total",
			Help: "Total number of accepted monitoring events",
		},
		[]string{"event_type"},
	)

	IngestRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_ingest_rejected_total",
			Help: "Total number of rejected ingestion requests",
		},
		[]string{"reason"}, // unauthorized, validation, rate_limited
	)

	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_persistence_failures_total",
			Help: "Total number of acknowledged events that could not be stored",
		},
		[]string{"entity"},
	)

	// Alerting
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_alerts_total",
			Help: "Alert-worthy events by throttle outcome",
		},
		[]string{"category", "outcome"}, // sent, suppressed
	)

	ThrottleSuppressed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pennywise_obs_throttle_suppressed",
			Help: "Alerts suppressed in the current throttle window",
		},
		[]string{"category"},
	)

	ThrottleSaturated = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pennywise_obs_throttle_saturated",
			Help: "Whether the category has reached its cap this window (0/1)",
		},
		[]string{"category"},
	)

	// Feedback
	FeedbackSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_feedback_submitted_total",
			Help: "Total number of stored feedback records",
		},
		[]string{"feedback_type"},
	)

	// Retention
	RetentionRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_retention_rows_total",
			Help: "Rows anonymized or purged by the retention pipeline",
		},
		[]string{"operation", "entity"},
	)

	RetentionRunSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pennywise_obs_retention_run_seconds",
			Help:    "Retention operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pennywise_obs_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pennywise_obs_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)
