package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/logger"
)

// DefaultSummaryWindow is used when the caller passes no window.
const DefaultSummaryWindow = 24 * time.Hour

// MaxSummaryWindow bounds how far back a summary may look.
const MaxSummaryWindow = 90 * 24 * time.Hour

type EventCounter interface {
	CountByType(ctx context.Context, since time.Time) (map[models.EventType]int64, error)
}

type FeedbackCounter interface {
	CountByResolution(ctx context.Context) (resolved, open int64, err error)
}

type ThrottleSnapshotter interface {
	Snapshot() []alert.CategorySnapshot
}

// MetricMeans answers mean values per performance metric from the
// time-series mirror.
type MetricMeans interface {
	QueryMetricMeans(ctx context.Context, since time.Time) (map[string]float64, error)
}

// FeedbackCounts splits feedback by resolution state
type FeedbackCounts struct {
	Resolved int64 `json:"resolved"`
	Open     int64 `json:"open"`
}

// DashboardSummary is the operator overview for one window
type DashboardSummary struct {
	GeneratedAt  time.Time                  `json:"generated_at"`
	Window       string                     `json:"window"`
	Since        time.Time                  `json:"since"`
	EventCounts  map[models.EventType]int64 `json:"event_counts"`
	Feedback     FeedbackCounts             `json:"feedback"`
	Throttle     []alert.CategorySnapshot   `json:"throttle"`
	MetricMeans  map[string]float64         `json:"metric_means,omitempty"`
	MetricsError string                     `json:"metrics_error,omitempty"`
}

// DashboardService builds dashboard summaries
type DashboardService struct {
	events   EventCounter
	feedback FeedbackCounter
	throttle ThrottleSnapshotter
	metrics  MetricMeans
	clock    clock.Clock
}

// NewDashboardService creates a dashboard service. metrics may be nil when
// InfluxDB is not configured.
func NewDashboardService(events EventCounter, feedback FeedbackCounter, throttle ThrottleSnapshotter, metrics MetricMeans, clk clock.Clock) *DashboardService {
	if clk == nil {
		clk = clock.Real()
	}
	return &DashboardService{
		events:   events,
		feedback: feedback,
		throttle: throttle,
		metrics:  metrics,
		clock:    clk,
	}
}

// Summary gathers counts for events created within window of now. Event
// and feedback counts must succeed; the metric mirror is best-effort.
func (s *DashboardService) Summary(ctx context.Context, window time.Duration) (*DashboardSummary, error) {
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	if window > MaxSummaryWindow {
		window = MaxSummaryWindow
	}
	now := s.clock.Now().UTC()
	since := now.Add(-window)

	summary := &DashboardSummary{
		GeneratedAt: now,
		Window:      window.String(),
		Since:       since,
		Throttle:    s.throttle.Snapshot(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.events.CountByType(gctx, since)
		summary.EventCounts = counts
		return err
	})
	g.Go(func() error {
		resolved, open, err := s.feedback.CountByResolution(gctx)
		summary.Feedback = FeedbackCounts{Resolved: resolved, Open: open}
		return err
	})
	if s.metrics != nil {
		// A mirror outage must not fail the summary.
		g.Go(func() error {
			means, err := s.metrics.QueryMetricMeans(gctx, since)
			if err != nil {
				logger.Warn("DASHBOARD: metric means unavailable", map[string]interface{}{
					"error": err.Error(),
				})
				summary.MetricsError = err.Error()
				return nil
			}
			summary.MetricMeans = means
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// Throttle returns the current throttle windows.
func (s *DashboardService) Throttle() []alert.CategorySnapshot {
	return s.throttle.Snapshot()
}
