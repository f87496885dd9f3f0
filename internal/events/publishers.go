package events

// PublishIngested announces an accepted monitoring event
func (eb *EventBus) PublishIngested(eventID, eventType string, persisted bool) {
	eb.Publish(Event{
		Type:   EventIngested,
		Source: "ingest",
		Data: map[string]interface{}{
			"event_id":   eventID,
			"event_type": eventType,
			"persisted":  persisted,
		},
	})
}

// PublishFeedbackSubmitted announces new feedback
func (eb *EventBus) PublishFeedbackSubmitted(feedbackID, feedbackType string) {
	eb.Publish(Event{
		Type:   EventFeedbackSubmitted,
		Source: "feedback",
		Data: map[string]interface{}{
			"feedback_id":   feedbackID,
			"feedback_type": feedbackType,
		},
	})
}

// PublishAlert announces a throttle decision for one alert-worthy event
func (eb *EventBus) PublishAlert(category, eventID string, sent bool, suppressed int) {
	eventType := EventAlertSent
	if !sent {
		eventType = EventAlertSuppressed
	}
	eb.Publish(Event{
		Type:   eventType,
		Source: "throttle",
		Data: map[string]interface{}{
			"category":   category,
			"event_id":   eventID,
			"suppressed": suppressed,
		},
	})
}

// PublishRetentionCompleted announces a finished retention operation
func (eb *EventBus) PublishRetentionCompleted(operation string, counts map[string]int64, errMsg string) {
	data := map[string]interface{}{
		"operation": operation,
		"counts":    counts,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	eb.Publish(Event{
		Type:   EventRetentionCompleted,
		Source: "retention",
		Data:   data,
	})
}
