package models

// RetentionStats counts rows of one entity against the retention
// thresholds. Rows past the purge threshold are also counted in
// AnonymizeDue while they remain un-anonymized.
type RetentionStats struct {
	Total         int64 `gorm:"column:total" json:"total"`
	NotAnonymized int64 `gorm:"column:not_anonymized" json:"not_anonymized"`
	AnonymizeDue  int64 `gorm:"column:anonymize_due" json:"anonymize_due"`
	PurgeDue      int64 `gorm:"column:purge_due" json:"purge_due"`
}
