package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventType is the canonical classification of a client observation.
type EventType string

const (
	EventTypeUIError           EventType = "ui_error"
	EventTypePerformanceMetric EventType = "performance_metric"
	EventTypeUIEvent           EventType = "ui_event"
	EventTypePerformanceIssue  EventType = "performance_issue"
)

// EventTypes lists every accepted event type in display order.
var EventTypes = []EventType{
	EventTypeUIError,
	EventTypePerformanceMetric,
	EventTypeUIEvent,
	EventTypePerformanceIssue,
}

var ErrUnknownEventType = errors.New("unknown event type")

// ParseEventType validates s against the enumerated event types.
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// MonitoringEvent is one persisted client observation.
//
// Once AnonymizedAt is set, UserID, SourceIP and UserAgent stay empty.
// Rows are hard-deleted by the purge step, so there is no soft delete.
type MonitoringEvent struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	EventType    EventType      `gorm:"size:50;not null;index" json:"event_type"`
	Payload      datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	UserID       *string        `gorm:"size:64;index" json:"user_id,omitempty"`
	SessionID    string         `gorm:"size:64" json:"session_id,omitempty"`
	UserAgent    string         `gorm:"size:512" json:"user_agent,omitempty"`
	SourceIP     string         `gorm:"size:45" json:"source_ip,omitempty"` // IPv6 compatible
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	AnonymizedAt *time.Time     `gorm:"index" json:"anonymized_at,omitempty"`
}

// TableName overrides the table name
func (MonitoringEvent) TableName() string {
	return "monitoring_events"
}

// BeforeCreate assigns an id and guarantees a non-null payload
func (e *MonitoringEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		e.Payload = datatypes.JSON("{}")
	}
	return nil
}

// NewMonitoringEvent builds an event with an encoded payload. A nil
// payload is stored as an empty object.
func NewMonitoringEvent(eventType EventType, payload map[string]interface{}, createdAt time.Time) (*MonitoringEvent, error) {
	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &MonitoringEvent{
		ID:        uuid.New().String(),
		EventType: eventType,
		Payload:   encoded,
		CreatedAt: createdAt,
	}, nil
}

// PayloadMap decodes the payload; malformed data yields an empty map.
func (e *MonitoringEvent) PayloadMap() map[string]interface{} {
	data := make(map[string]interface{})
	if len(e.Payload) == 0 {
		return data
	}
	if err := json.Unmarshal(e.Payload, &data); err != nil || data == nil {
		return make(map[string]interface{})
	}
	return data
}

// IsAnonymized reports whether PII has already been removed.
func (e *MonitoringEvent) IsAnonymized() bool {
	return e.AnonymizedAt != nil
}

// Anonymize clears personally identifying fields. Returns false when the
// row was already anonymized, in which case nothing changes.
func (e *MonitoringEvent) Anonymize(at time.Time) bool {
	if e.IsAnonymized() {
		return false
	}
	e.UserID = nil
	e.SourceIP = ""
	e.UserAgent = ""
	e.AnonymizedAt = &at
	return true
}

// EncodePayload marshals a payload map, mapping nil to {}.
func EncodePayload(payload map[string]interface{}) (datatypes.JSON, error) {
	if payload == nil {
		return datatypes.JSON("{}"), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return datatypes.JSON(data), nil
}
