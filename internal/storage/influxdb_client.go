package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/pennywise/observability/pkg/logger"
)

const metricMeasurement = "client_metric"

// MetricPoint is a PII-free performance sample mirrored to InfluxDB.
// It has no user, IP or user-agent slot.
type MetricPoint struct {
	EventID    string
	EventType  string
	MetricName string
	IssueType  string
	Path       string
	Value      *float64
	Timestamp  time.Time
}

// InfluxDBClient manages connection to InfluxDB for time-series metrics
type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// InfluxDBConfig holds InfluxDB connection configuration
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxDBClient creates a new InfluxDB client
func NewInfluxDBClient(config InfluxDBConfig) (*InfluxDBClient, error) {
	client := influxdb2.NewClient(config.URL, config.Token)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	logger.Info("InfluxDB connection established", map[string]interface{}{
		"url":    config.URL,
		"org":    config.Org,
		"bucket": config.Bucket,
		"status": health.Status,
	})

	writeAPI := client.WriteAPI(config.Org, config.Bucket)
	queryAPI := client.QueryAPI(config.Org)

	// Writes are asynchronous; failures only surface on this channel.
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("InfluxDB write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return &InfluxDBClient{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		org:      config.Org,
		bucket:   config.Bucket,
	}, nil
}

// WriteMetric queues a metric point (non-blocking)
func (c *InfluxDBClient) WriteMetric(m MetricPoint) error {
	c.writeAPI.WritePoint(NewMetricPoint(m))
	return nil
}

// NewMetricPoint converts m to an InfluxDB point. Tags hold the low
// cardinality dimensions; the event id and value are fields.
func NewMetricPoint(m MetricPoint) *write.Point {
	tags := map[string]string{"event_type": m.EventType}
	if m.MetricName != "" {
		tags["metric_name"] = m.MetricName
	}
	if m.IssueType != "" {
		tags["issue_type"] = m.IssueType
	}
	if m.Path != "" {
		tags["path"] = m.Path
	}

	fields := map[string]interface{}{"event_id": m.EventID}
	if m.Value != nil {
		fields["value"] = *m.Value
	} else {
		fields["count"] = 1
	}

	return influxdb2.NewPoint(metricMeasurement, tags, fields, m.Timestamp)
}

// Flush ensures all pending writes are sent to InfluxDB
func (c *InfluxDBClient) Flush() {
	c.writeAPI.Flush()
}

// QueryMetricMeans returns the mean value per metric name since the given
// time.
func (c *InfluxDBClient) QueryMetricMeans(ctx context.Context, since time.Time) (map[string]float64, error) {
	result, err := c.queryAPI.Query(ctx, c.buildMeanQuery(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query InfluxDB: %w", err)
	}
	defer result.Close()

	means := make(map[string]float64)
	for result.Next() {
		record := result.Record()
		name, ok := record.ValueByKey("metric_name").(string)
		if !ok {
			continue
		}
		if v, ok := record.Value().(float64); ok {
			means[name] = v
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}
	return means, nil
}

func (c *InfluxDBClient) buildMeanQuery(since time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, `from(bucket: "%s")`, c.bucket)
	fmt.Fprintf(&b, "\n  |> range(start: %s)", since.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r._measurement == \"%s\" and r._field == \"value\")", metricMeasurement)
	b.WriteString("\n  |> group(columns: [\"metric_name\"])")
	b.WriteString("\n  |> mean()")
	return b.String()
}

// Ping reports whether the InfluxDB server answers; used by /ready.
func (c *InfluxDBClient) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb ping failed")
	}
	return nil
}

// Close closes the InfluxDB client and flushes pending writes
func (c *InfluxDBClient) Close() {
	c.writeAPI.Flush()
	c.client.Close()
	logger.Info("InfluxDB client closed", nil)
}
