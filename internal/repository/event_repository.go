package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/models"
)

// EventRepository handles database operations for monitoring events
type EventRepository struct {
	db        *gorm.DB
	lifecycle lifecycle
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{
		db:        db,
		lifecycle: lifecycle{
			db:       db,
			newModel: func() interface{} { return &models.MonitoringEvent{} },
			scrub:    map[string]interface{}{
				"user_id":    nil,
				"source_ip":  "",
				"user_agent": "",
			},
		},
	}
}

// Create inserts an event
func (r *EventRepository) Create(ctx context.Context, event *models.MonitoringEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByID finds an event by ID
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.MonitoringEvent, error) {
	var event models.MonitoringEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindBySubject returns the subject's events that still carry personal
// data, oldest first.
func (r *EventRepository) FindBySubject(ctx context.Context, userID string) ([]models.MonitoringEvent, error) {
	var events []models.MonitoringEvent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND anonymized_at IS NULL", userID).
		Order("created_at").
		Find(&events).Error
	return events, err
}

// CountByType counts events per type created at or after since
func (r *EventRepository) CountByType(ctx context.Context, since time.Time) (map[models.EventType]int64, error) {
	var rows []struct {
		EventType models.EventType
		Count     int64
	}
	err := r.db.WithContext(ctx).Model(&models.MonitoringEvent{}).
		Select("event_type, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.EventType]int64, len(models.EventTypes))
	for _, t := range models.EventTypes {
		counts[t] = 0
	}
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}

// Stats counts events against the retention thresholds
func (r *EventRepository) Stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error) {
	return r.lifecycle.stats(ctx, anonymizeCutoff, purgeCutoff)
}

// AnonymizeBatch anonymizes up to limit events older than cutoff
func (r *EventRepository) AnonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error) {
	return r.lifecycle.anonymizeBatch(ctx, cutoff, at, limit)
}

// PurgeBatch permanently deletes up to limit events older than cutoff
func (r *EventRepository) PurgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return r.lifecycle.purgeBatch(ctx, cutoff, limit)
}

// AnonymizeSubject anonymizes every event of userID regardless of age
func (r *EventRepository) AnonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.lifecycle.anonymizeSubject(ctx, userID, at)
}
