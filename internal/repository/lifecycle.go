package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/models"
)

// lifecycle runs the retention queries shared by every table that holds
// personal data. scrub lists the columns cleared by anonymization.
// gorm writes updated values back into the model passed to Updates, so
// every query gets a fresh one.
type lifecycle struct {
	db       *gorm.DB
	newModel func() interface{}
	scrub    map[string]interface{}
}

func (l lifecycle) stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error) {
	var stats models.RetentionStats
	err := l.db.WithContext(ctx).Model(l.newModel()).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE anonymized_at IS NULL) AS not_anonymized,
			COUNT(*) FILTER (WHERE anonymized_at IS NULL AND created_at < ?) AS anonymize_due,
			COUNT(*) FILTER (WHERE created_at < ?) AS purge_due`, anonymizeCutoff, purgeCutoff).
		Scan(&stats).Error
	return stats, err
}

// anonymizeBatch scrubs up to limit un-anonymized rows created before
// cutoff, oldest first.
func (l lifecycle) anonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error) {
	ids := l.db.Model(l.newModel()).Select("id").
		Where("created_at < ? AND anonymized_at IS NULL", cutoff).
		Order("created_at").
		Limit(limit)

	res := l.db.WithContext(ctx).Model(l.newModel()).
		Where("id IN (?)", ids).
		Updates(l.updates(at))
	return res.RowsAffected, res.Error
}

// purgeBatch deletes up to limit rows created before cutoff, oldest first.
func (l lifecycle) purgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ids := l.db.Model(l.newModel()).Select("id").
		Where("created_at < ?", cutoff).
		Order("created_at").
		Limit(limit)

	res := l.db.WithContext(ctx).
		Where("id IN (?)", ids).
		Delete(l.newModel())
	return res.RowsAffected, res.Error
}

func (l lifecycle) anonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Model(l.newModel()).
		Where("user_id = ? AND anonymized_at IS NULL", userID).
		Updates(l.updates(at))
	return res.RowsAffected, res.Error
}

func (l lifecycle) updates(at time.Time) map[string]interface{} {
	u := make(map[string]interface{}, len(l.scrub)+1)
	for k, v := range l.scrub {
		u[k] = v
	}
	u["anonymized_at"] = at
	return u
}
