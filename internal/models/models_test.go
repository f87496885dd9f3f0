package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseEventType(t *testing.T) {
	for _, et := range EventTypes {
		got, err := ParseEventType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}

	_, err := ParseEventType("ui_crash")
	assert.True(t, errors.Is(err, ErrUnknownEventType))
}

func TestNewMonitoringEvent_NilPayloadIsEmptyObject(t *testing.T) {
	ev, err := NewMonitoringEvent(EventTypeUIEvent, nil, time.Now())
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.JSONEq(t, `{}`, string(ev.Payload))
	assert.Empty(t, ev.PayloadMap())
}

func TestNewMonitoringEvent_UnencodablePayload(t *testing.T) {
	_, err := NewMonitoringEvent(EventTypeUIEvent, map[string]interface{}{"f": func() {}}, time.Now())
	assert.Error(t, err)
}

func TestMonitoringEvent_PayloadRoundTrip(t *testing.T) {
	ev, err := NewMonitoringEvent(EventTypeUIError, map[string]interface{}{
		"error_type": "TypeError",
		"extra":      map[string]interface{}{"nested": true},
	}, time.Now())
	require.NoError(t, err)

	payload := ev.PayloadMap()
	assert.Equal(t, "TypeError", payload["error_type"])
	assert.Equal(t, map[string]interface{}{"nested": true}, payload["extra"])
}

func TestMonitoringEvent_AnonymizeIsIdempotent(t *testing.T) {
	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := &MonitoringEvent{
		UserID:    strPtr("user-1"),
		SourceIP:  "203.0.113.9",
		UserAgent: "Firefox",
		SessionID: "sess-1",
	}

	assert.True(t, ev.Anonymize(first))
	assert.Nil(t, ev.UserID)
	assert.Empty(t, ev.SourceIP)
	assert.Empty(t, ev.UserAgent)
	assert.Equal(t, "sess-1", ev.SessionID)
	require.NotNil(t, ev.AnonymizedAt)

	assert.False(t, ev.Anonymize(first.Add(time.Hour)))
	assert.Equal(t, first, *ev.AnonymizedAt, "second pass must not touch the row")
}

func TestParseFeedbackType(t *testing.T) {
	got, err := ParseFeedbackType("")
	require.NoError(t, err)
	assert.Equal(t, FeedbackTypeGeneral, got)

	got, err = ParseFeedbackType("bug_report")
	require.NoError(t, err)
	assert.Equal(t, FeedbackTypeBugReport, got)

	_, err = ParseFeedbackType("rant")
	assert.True(t, errors.Is(err, ErrUnknownFeedbackType))
}

func TestFeedbackRecord_ResolveAndReopenKeepPairing(t *testing.T) {
	fb := &FeedbackRecord{}
	at := time.Now()

	fb.Resolve("op-1", "fixed in 2.3", at)
	assert.True(t, fb.Resolved)
	require.NotNil(t, fb.ResolvedBy)
	require.NotNil(t, fb.ResolvedAt)
	assert.Equal(t, "op-1", *fb.ResolvedBy)

	fb.Reopen()
	assert.False(t, fb.Resolved)
	assert.Nil(t, fb.ResolvedBy)
	assert.Nil(t, fb.ResolvedAt)
	assert.Equal(t, "fixed in 2.3", fb.ResolutionNotes)
}

func TestFeedbackRecord_Anonymize(t *testing.T) {
	fb := &FeedbackRecord{UserID: strPtr("u"), Browser: "Safari 17", Page: "/budget"}
	at := time.Now()

	assert.True(t, fb.Anonymize(at))
	assert.Nil(t, fb.UserID)
	assert.Empty(t, fb.Browser)
	assert.Equal(t, "/budget", fb.Page)
	assert.False(t, fb.Anonymize(at.Add(time.Minute)))
}
