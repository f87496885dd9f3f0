package monitoring

import (
	"context"
	"time"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/pkg/logger"
)

// ThrottleSource exposes the throttle windows to the exporter
type ThrottleSource interface {
	Snapshot() []alert.CategorySnapshot
}

// PrometheusExporter refreshes gauges that mirror in-process state
type PrometheusExporter struct {
	throttle ThrottleSource
}

// NewPrometheusExporter creates a new Prometheus exporter
func NewPrometheusExporter(throttle ThrottleSource) *PrometheusExporter {
	return &PrometheusExporter{throttle: throttle}
}

// CollectMetrics copies the current throttle windows into gauges
func (e *PrometheusExporter) CollectMetrics() {
	for _, snap := range e.throttle.Snapshot() {
		ThrottleSuppressed.WithLabelValues(snap.Category).Set(float64(snap.Suppressed))
		saturated := 0.0
		if snap.State == alert.StateSaturated {
			saturated = 1
		}
		ThrottleSaturated.WithLabelValues(snap.Category).Set(saturated)
	}
}

// StartMetricsCollector collects immediately and then every interval
// until ctx is cancelled.
func (e *PrometheusExporter) StartMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		e.CollectMetrics()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.CollectMetrics()
			}
		}
	}()

	logger.Info("Prometheus metrics collector started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// RecordIngested counts an accepted event
func RecordIngested(eventType string) {
	EventsIngestedTotal.WithLabelValues(eventType).Inc()
}

// RecordRejected counts a rejected ingestion request
func RecordRejected(reason string) {
	IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordPersistenceFailure counts a storage failure that was acknowledged
// to the caller anyway
func RecordPersistenceFailure(entity string) {
	PersistenceFailuresTotal.WithLabelValues(entity).Inc()
}

// RecordAlert counts a throttle decision
func RecordAlert(category string, sent bool) {
	outcome := "sent"
	if !sent {
		outcome = "suppressed"
	}
	AlertsTotal.WithLabelValues(category, outcome).Inc()
}

// RecordFeedback counts stored feedback
func RecordFeedback(feedbackType string) {
	FeedbackSubmittedTotal.WithLabelValues(feedbackType).Inc()
}

// RecordRetention adds processed rows and the run duration
func RecordRetention(operation string, rows map[string]int64, duration time.Duration) {
	for entity, n := range rows {
		RetentionRowsTotal.WithLabelValues(operation, entity).Add(float64(n))
	}
	RetentionRunSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest increments the API request counter and records duration
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
