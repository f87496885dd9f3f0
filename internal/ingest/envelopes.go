package ingest

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gin-gonic/gin/binding"

	"github.com/pennywise/observability/internal/models"
)

// UIErrorRequest is the body of POST /monitoring/ui-error
type UIErrorRequest struct {
	ErrorType     string                 `json:"error_type"`
	Message       string                 `json:"message"`
	Stack         string                 `json:"stack"`
	ComponentName string                 `json:"component_name"`
	Context       map[string]interface{} `json:"context"`
	URL           string                 `json:"url"`
	UserAgent     string                 `json:"user_agent"`
}

// PerformanceMetricRequest is the body of POST /monitoring/performance-metric
type PerformanceMetricRequest struct {
	MetricName string   `json:"metric_name" binding:"required"`
	Value      *float64 `json:"value" binding:"required"`
	Path       string   `json:"path"`
	UserAgent  string   `json:"user_agent"`
}

// UIEventRequest is the body of POST /monitoring/ui-event
type UIEventRequest struct {
	EventName string                 `json:"event_name" binding:"required"`
	Data      map[string]interface{} `json:"data"`
}

// PerformanceIssueRequest is the body of POST /monitoring/performance-issue
type PerformanceIssueRequest struct {
	IssueType string                 `json:"issue_type" binding:"required"`
	Data      map[string]interface{} `json:"data"`
}

// DecodeRequest checks body against the typed request for t and returns
// the full JSON object, unknown keys included.
func DecodeRequest(t models.EventType, body []byte) (map[string]interface{}, error) {
	var req interface{}
	switch t {
	case models.EventTypeUIError:
		req = &UIErrorRequest{}
	case models.EventTypePerformanceMetric:
		req = &PerformanceMetricRequest{}
	case models.EventTypeUIEvent:
		req = &UIEventRequest{}
	case models.EventTypePerformanceIssue:
		req = &PerformanceIssueRequest{}
	default:
		return nil, &ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown event type %q", t)}
	}

	if err := binding.JSON.BindBody(body, req); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	return payload, nil
}

// validatePayload checks the keys each event type cannot do without and
// normalizes a metric value to float64. Anything else in the payload is
// kept as sent.
func validatePayload(t models.EventType, payload map[string]interface{}) error {
	switch t {
	case models.EventTypeUIError:
		if !nonEmptyString(payload, "message") && !nonEmptyString(payload, "error_type") {
			return &ValidationError{Field: "message", Reason: "message or error_type is required"}
		}
	case models.EventTypePerformanceMetric:
		if !nonEmptyString(payload, "metric_name") {
			return &ValidationError{Field: "metric_name", Reason: "required"}
		}
		v, ok := toFloat(payload["value"])
		if !ok {
			return &ValidationError{Field: "value", Reason: "must be a finite number"}
		}
		payload["value"] = v
	case models.EventTypeUIEvent:
		if !nonEmptyString(payload, "event_name") {
			return &ValidationError{Field: "event_name", Reason: "required"}
		}
	case models.EventTypePerformanceIssue:
		if !nonEmptyString(payload, "issue_type") {
			return &ValidationError{Field: "issue_type", Reason: "required"}
		}
	}
	return nil
}

func nonEmptyString(payload map[string]interface{}, key string) bool {
	s, ok := payload[key].(string)
	return ok && s != ""
}

// toFloat accepts any Go numeric kind, as in-process callers may pass
// ints where decoded JSON always yields float64.
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
