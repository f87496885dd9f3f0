package events

import (
	"context"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/logger"
)

// MultiEventStorage writes to a primary backend and best-effort mirrors.
// Only a primary failure is returned.
type MultiEventStorage struct {
	primary EventStorage
	mirrors []EventStorage
}

// NewMultiEventStorage creates a storage that writes to multiple backends
func NewMultiEventStorage(primary EventStorage, mirrors ...EventStorage) *MultiEventStorage {
	return &MultiEventStorage{
		primary: primary,
		mirrors: mirrors,
	}
}

// Store saves an event to the primary, then to every mirror
func (s *MultiEventStorage) Store(ctx context.Context, event *models.MonitoringEvent) error {
	if err := s.primary.Store(ctx, event); err != nil {
		return err
	}

	for i, mirror := range s.mirrors {
		if err := mirror.Store(ctx, event); err != nil {
			logger.Warn("Failed to mirror event", map[string]interface{}{
				"event_id":     event.ID,
				"event_type":   event.EventType,
				"mirror_index": i,
				"error":        err.Error(),
			})
		}
	}
	return nil
}
