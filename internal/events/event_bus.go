package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pennywise/observability/pkg/logger"
)

// EventType represents the type of live event
type EventType string

const (
	EventIngested           EventType = "event.ingested"
	EventFeedbackSubmitted  EventType = "feedback.submitted"
	EventAlertSent          EventType = "alert.sent"
	EventAlertSuppressed    EventType = "alert.suppressed"
	EventRetentionCompleted EventType = "retention.completed"
)

// Event is a live notification for operator dashboards. It must never
// carry user ids, IP addresses or user agents.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // e.g., "ingest", "retention"
	Data      map[string]interface{} `json:"data"`
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// EventBus fans events out to subscribers. One bus is created per process
// and passed to the components that publish.
type EventBus struct {
	subscribers map[EventType][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
	logger.Debug("Event handler subscribed", map[string]interface{}{
		"event_type": eventType,
	})
}

// SubscribeAll registers a handler for every event type
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.all = append(eb.all, handler)
}

// Publish publishes an event to all subscribers. Handlers run in their own
// goroutines; a nil bus drops the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Data == nil {
		event.Data = map[string]interface{}{}
	}

	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subscribers[event.Type])+len(eb.all))
	handlers = append(handlers, eb.subscribers[event.Type]...)
	handlers = append(handlers, eb.all...)
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.wg.Add(1)
		go func(h EventHandler) {
			defer eb.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Event handler panicked", nil, map[string]interface{}{
						"event_type": event.Type,
						"panic":      r,
					})
				}
			}()
			h(event)
		}(handler)
	}

	logger.Debug("Event published", map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
		"source":     event.Source,
	})
}

// Wait blocks until all running handlers return.
func (eb *EventBus) Wait() {
	eb.wg.Wait()
}
