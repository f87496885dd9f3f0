package events

import (
	"context"
	"strconv"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/storage"
)

// MetricWriter accepts metric points; implemented by storage.InfluxDBClient
type MetricWriter interface {
	WriteMetric(m storage.MetricPoint) error
}

// InfluxDBEventStorage mirrors performance events to InfluxDB for
// time-series analytics. Other event types are ignored. Only the metric
// name, issue type, path and value are written, so the mirror holds no
// personal data and needs no retention pass.
type InfluxDBEventStorage struct {
	writer MetricWriter
}

// NewInfluxDBEventStorage creates a new InfluxDB event storage
func NewInfluxDBEventStorage(writer MetricWriter) *InfluxDBEventStorage {
	return &InfluxDBEventStorage{writer: writer}
}

// Store writes a metric point for performance events
func (s *InfluxDBEventStorage) Store(ctx context.Context, event *models.MonitoringEvent) error {
	switch event.EventType {
	case models.EventTypePerformanceMetric, models.EventTypePerformanceIssue:
	default:
		return nil
	}

	payload := event.PayloadMap()
	point := storage.MetricPoint{
		EventID:    event.ID,
		EventType:  string(event.EventType),
		MetricName: stringField(payload, "metric_name"),
		IssueType:  stringField(payload, "issue_type"),
		Path:       stringField(payload, "path"),
		Timestamp:  event.CreatedAt,
	}
	if v, ok := numberField(payload, "value"); ok {
		point.Value = &v
	}
	return s.writer.WriteMetric(point)
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func numberField(payload map[string]interface{}, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
