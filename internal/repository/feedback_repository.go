package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/models"
)

// FeedbackFilter narrows List results. Zero values mean no filter.
type FeedbackFilter struct {
	Resolved     *bool
	FeedbackType models.FeedbackType
	Limit        int
	Offset       int
}

// FeedbackRepository handles database operations for feedback records
type FeedbackRepository struct {
	db        *gorm.DB
	lifecycle lifecycle
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{
		db:        db,
		lifecycle: lifecycle{
			db:       db,
			newModel: func() interface{} { return &models.FeedbackRecord{} },
			scrub:    map[string]interface{}{
				"user_id": nil,
				"browser": "",
			},
		},
	}
}

// Create creates a new feedback record
func (r *FeedbackRepository) Create(ctx context.Context, record *models.FeedbackRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// UpdateResolution writes only the resolution columns of record. Other
// columns may have been anonymized since record was read and must not be
// written back. Returns gorm.ErrRecordNotFound when the row is gone.
func (r *FeedbackRepository) UpdateResolution(ctx context.Context, record *models.FeedbackRecord) error {
	result := r.db.WithContext(ctx).Model(&models.FeedbackRecord{}).
		Where("id = ?", record.ID).
		Select("resolved", "resolved_by", "resolved_at", "resolution_notes").
		Updates(map[string]interface{}{
			"resolved":         record.Resolved,
			"resolved_by":      record.ResolvedBy,
			"resolved_at":      record.ResolvedAt,
			"resolution_notes": record.ResolutionNotes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID finds a feedback record by ID. Returns gorm.ErrRecordNotFound
// when absent.
func (r *FeedbackRepository) FindByID(ctx context.Context, id string) (*models.FeedbackRecord, error) {
	var record models.FeedbackRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns feedback newest first
func (r *FeedbackRepository) List(ctx context.Context, filter FeedbackFilter) ([]models.FeedbackRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.FeedbackRecord{})

	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
	}
	if filter.FeedbackType != "" {
		query = query.Where("feedback_type = ?", filter.FeedbackType)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var records []models.FeedbackRecord
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&records).Error
	return records, err
}

// CountByResolution returns the number of resolved and open records
func (r *FeedbackRepository) CountByResolution(ctx context.Context) (resolved, open int64, err error) {
	var rows []struct {
		Resolved bool
		Count    int64
	}
	err = r.db.WithContext(ctx).Model(&models.FeedbackRecord{}).
		Select("resolved, COUNT(*) AS count").
		Group("resolved").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, row := range rows {
		if row.Resolved {
			resolved = row.Count
		} else {
			open = row.Count
		}
	}
	return resolved, open, nil
}

// FindBySubject returns the subject's feedback that still carries personal
// data, oldest first.
func (r *FeedbackRepository) FindBySubject(ctx context.Context, userID string) ([]models.FeedbackRecord, error) {
	var records []models.FeedbackRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND anonymized_at IS NULL", userID).
		Order("created_at").
		Find(&records).Error
	return records, err
}

// Stats counts feedback against the retention thresholds
func (r *FeedbackRepository) Stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error) {
	return r.lifecycle.stats(ctx, anonymizeCutoff, purgeCutoff)
}

// AnonymizeBatch anonymizes up to limit records older than cutoff
func (r *FeedbackRepository) AnonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error) {
	return r.lifecycle.anonymizeBatch(ctx, cutoff, at, limit)
}

// PurgeBatch permanently deletes up to limit records older than cutoff
func (r *FeedbackRepository) PurgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return r.lifecycle.purgeBatch(ctx, cutoff, limit)
}

// AnonymizeSubject anonymizes every record of userID regardless of age
func (r *FeedbackRepository) AnonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.lifecycle.anonymizeSubject(ctx, userID, at)
}
