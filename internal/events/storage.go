package events

import (
	"context"

	"github.com/pennywise/observability/internal/models"
)

// EventStorage persists ingested monitoring events
type EventStorage interface {
	Store(ctx context.Context, event *models.MonitoringEvent) error
}
