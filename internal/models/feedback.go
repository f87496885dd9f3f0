package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeedbackType classifies user feedback
type FeedbackType string

const (
	FeedbackTypeBugReport      FeedbackType = "bug_report"
	FeedbackTypeFeatureRequest FeedbackType = "feature_request"
	FeedbackTypeGeneral        FeedbackType = "general"
)

var ErrUnknownFeedbackType = errors.New("unknown feedback type")

// ParseFeedbackType validates s; an empty value means general feedback.
func ParseFeedbackType(s string) (FeedbackType, error) {
	switch FeedbackType(s) {
	case "":
		return FeedbackTypeGeneral, nil
	case FeedbackTypeBugReport, FeedbackTypeFeatureRequest, FeedbackTypeGeneral:
		return FeedbackType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFeedbackType, s)
}

// FeedbackRecord is a message submitted from the in-app feedback form.
// ResolvedBy and ResolvedAt are either both set or both nil.
type FeedbackRecord struct {
	ID              string       `gorm:"primaryKey;size:36" json:"id"`
	FeedbackType    FeedbackType `gorm:"size:50;not null;index" json:"feedback_type"`
	Message         string       `gorm:"type:text;not null" json:"message"`
	Page            string       `gorm:"size:512" json:"page,omitempty"`
	Browser         string       `gorm:"size:512" json:"browser,omitempty"`
	Theme           string       `gorm:"size:50" json:"theme,omitempty"`
	UserID          *string      `gorm:"size:64;index" json:"user_id,omitempty"`
	Resolved        bool         `gorm:"default:false;not null;index" json:"resolved"`
	ResolvedBy      *string      `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	ResolutionNotes string       `gorm:"type:text" json:"resolution_notes,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;index" json:"created_at"`
	AnonymizedAt    *time.Time   `gorm:"index" json:"anonymized_at,omitempty"`
}

// TableName overrides the table name
func (FeedbackRecord) TableName() string {
	return "feedback_records"
}

// BeforeCreate hook to generate UUID
func (f *FeedbackRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// Resolve marks the feedback handled by an operator.
func (f *FeedbackRecord) Resolve(by, notes string, at time.Time) {
	f.Resolved = true
	f.ResolvedBy = &by
	f.ResolvedAt = &at
	f.ResolutionNotes = notes
}

// Reopen clears the resolution; notes are kept for history.
func (f *FeedbackRecord) Reopen() {
	f.Resolved = false
	f.ResolvedBy = nil
	f.ResolvedAt = nil
}

// IsAnonymized reports whether PII has already been removed.
func (f *FeedbackRecord) IsAnonymized() bool {
	return f.AnonymizedAt != nil
}

// Anonymize clears the submitter and browser fingerprint. Returns false
// when the record was already anonymized.
func (f *FeedbackRecord) Anonymize(at time.Time) bool {
	if f.IsAnonymized() {
		return false
	}
	f.UserID = nil
	f.Browser = ""
	f.AnonymizedAt = &at
	return true
}
