package events

import (
	"context"

	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/models"
)

// DatabaseEventStorage stores events in PostgreSQL
type DatabaseEventStorage struct {
	db *gorm.DB
}

// NewDatabaseEventStorage creates a new database event storage
func NewDatabaseEventStorage(db *gorm.DB) *DatabaseEventStorage {
	return &DatabaseEventStorage{db: db}
}

// Store saves an event to the database
func (s *DatabaseEventStorage) Store(ctx context.Context, event *models.MonitoringEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}
