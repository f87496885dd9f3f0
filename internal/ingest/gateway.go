// Package ingest authenticates, validates and persists client monitoring
// events, and decides whether they escalate to an operator alert.
package ingest

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/events"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/monitoring"
	"github.com/pennywise/observability/pkg/logger"
)

// Caller describes who submitted an event.
type Caller struct {
	UserID        string
	SessionID     string
	Authenticated bool
	APIKey        string
	UserAgent     string
	SourceIP      string
}

// Receipt acknowledges an accepted event. Persisted is false when storage
// failed; the event id is still returned for correlation.
type Receipt struct {
	EventID   string `json:"event_id"`
	Persisted bool   `json:"persisted"`
	Alerted   bool   `json:"-"`
}

// Options configure a Gateway.
type Options struct {
	Storage     events.EventStorage
	Throttle    *alert.Throttle
	Dispatcher  *alert.Dispatcher
	Bus         *events.EventBus
	Clock       clock.Clock
	APIKey      string
	TrustedMode bool
}

// Gateway is the server boundary for client events. It holds no mutable
// state of its own; concurrent Submit calls only share the throttle.
type Gateway struct {
	storage     events.EventStorage
	throttle    *alert.Throttle
	dispatcher  *alert.Dispatcher
	bus         *events.EventBus
	clock       clock.Clock
	apiKey      []byte
	trustedMode bool
}

// NewGateway creates a gateway
func NewGateway(opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Throttle == nil {
		opts.Throttle = alert.NewThrottle(opts.Clock, alert.DefaultPolicy, nil)
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = alert.NewDispatcher(nil)
	}
	if opts.TrustedMode {
		logger.Warn("INGEST: trusted mode enabled, authorization is bypassed", nil)
	}
	return &Gateway{
		storage:     opts.Storage,
		throttle:    opts.Throttle,
		dispatcher:  opts.Dispatcher,
		bus:         opts.Bus,
		clock:       opts.Clock,
		apiKey:      []byte(opts.APIKey),
		trustedMode: opts.TrustedMode,
	}
}

// Authorize accepts an authenticated session, a matching API key, or
// anything in trusted mode.
func (g *Gateway) Authorize(caller Caller) error {
	if g.trustedMode || caller.Authenticated {
		return nil
	}
	if len(g.apiKey) > 0 && caller.APIKey != "" &&
		subtle.ConstantTimeCompare([]byte(caller.APIKey), g.apiKey) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// Submit authorizes, validates and stores one event. A storage failure is
// logged and reported through Receipt.Persisted rather than as an error.
// Errors are ErrUnauthorized or *ValidationError.
func (g *Gateway) Submit(ctx context.Context, eventType string, payload map[string]interface{}, caller Caller) (Receipt, error) {
	if err := g.Authorize(caller); err != nil {
		monitoring.RecordRejected("unauthorized")
		return Receipt{}, err
	}

	t, err := models.ParseEventType(eventType)
	if err != nil {
		monitoring.RecordRejected("validation")
		return Receipt{}, &ValidationError{Field: "event_type", Reason: err.Error()}
	}
	payload = copyPayload(payload)
	if err := validatePayload(t, payload); err != nil {
		monitoring.RecordRejected("validation")
		return Receipt{}, err
	}

	event, err := g.buildEvent(t, payload, caller)
	if err != nil {
		monitoring.RecordRejected("validation")
		return Receipt{}, &ValidationError{Field: "payload", Reason: err.Error()}
	}

	receipt := Receipt{EventID: event.ID, Persisted: true}
	if err := g.storage.Store(ctx, event); err != nil {
		receipt.Persisted = false
		monitoring.RecordPersistenceFailure("monitoring_event")
		logger.Error("INGEST: failed to persist event", err, map[string]interface{}{
			"event_id":   event.ID,
			"event_type": string(t),
		})
	}
	monitoring.RecordIngested(string(t))

	receipt.Alerted = g.escalate(event, payload)
	g.bus.PublishIngested(event.ID, string(t), receipt.Persisted)
	return receipt, nil
}

// copyPayload returns a shallow copy so normalization never touches the
// caller's map. nil becomes an empty payload.
func copyPayload(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// buildEvent moves the user agent out of the payload into its own column
// so anonymization can clear it. payload must be the gateway's own copy.
func (g *Gateway) buildEvent(t models.EventType, payload map[string]interface{}, caller Caller) (*models.MonitoringEvent, error) {
	userAgent := caller.UserAgent
	if ua, ok := payload["user_agent"].(string); ok {
		if userAgent == "" {
			userAgent = ua
		}
		delete(payload, "user_agent")
	}

	event, err := models.NewMonitoringEvent(t, payload, g.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if caller.UserID != "" {
		uid := caller.UserID
		event.UserID = &uid
	}
	event.SessionID = caller.SessionID
	event.UserAgent = userAgent
	event.SourceIP = caller.SourceIP
	return event, nil
}

// escalate consults the throttle for alert-worthy events and dispatches
// the alert when allowed. Returns whether an alert was sent.
func (g *Gateway) escalate(event *models.MonitoringEvent, payload map[string]interface{}) bool {
	category, ok := AlertCategory(event.EventType, payload)
	if !ok {
		return false
	}

	sent := g.throttle.ShouldAlert(category)
	suppressed := g.throttle.ThrottledCount(category)
	monitoring.RecordAlert(category, sent)
	g.bus.PublishAlert(category, event.ID, sent, suppressed)

	if !sent {
		logger.Debug("THROTTLE: alert suppressed", map[string]interface{}{
			"category":   category,
			"event_id":   event.ID,
			"suppressed": suppressed,
		})
		return false
	}

	g.dispatcher.Dispatch(buildAlert(category, event, payload, suppressed))
	return true
}

// AlertCategory maps an event to its throttle category. Only ui_error and
// performance_issue events are alert-worthy.
func AlertCategory(t models.EventType, payload map[string]interface{}) (string, bool) {
	switch t {
	case models.EventTypeUIError:
		return alert.CategoryError, true
	case models.EventTypePerformanceIssue:
		if issue, _ := payload["issue_type"].(string); strings.HasPrefix(issue, "accessibility") {
			return alert.CategoryAccessibility, true
		}
		return alert.CategoryPerformance, true
	}
	return "", false
}

func buildAlert(category string, event *models.MonitoringEvent, payload map[string]interface{}, suppressed int) alert.Alert {
	a := alert.Alert{
		Category:   category,
		EventType:  string(event.EventType),
		EventID:    event.ID,
		Suppressed: suppressed,
		OccurredAt: event.CreatedAt,
		Fields:     map[string]string{},
	}

	switch event.EventType {
	case models.EventTypeUIError:
		a.Title = fmt.Sprintf("UI error: %s", stringOr(payload, "error_type", "Error"))
		a.Summary = alert.Summarize(stringOr(payload, "message", ""))
		for _, key := range []string{"component_name", "url"} {
			if v := stringOr(payload, key, ""); v != "" {
				a.Fields[key] = v
			}
		}
	default:
		issue := stringOr(payload, "issue_type", "unknown")
		a.Title = fmt.Sprintf("Performance issue: %s", issue)
		a.Summary = fmt.Sprintf("Client reported %s", issue)
	}
	return a
}

func stringOr(payload map[string]interface{}, key, def string) string {
	if s, ok := payload[key].(string); ok && s != "" {
		return s
	}
	return def
}
