package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/events"
	"github.com/pennywise/observability/internal/ingest"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/monitoring"
	"github.com/pennywise/observability/internal/repository"
	"github.com/pennywise/observability/pkg/logger"
)

// MaxFeedbackLength caps the message in runes.
const MaxFeedbackLength = 5000

var ErrFeedbackNotFound = errors.New("feedback not found")

// FeedbackStore is the persistence the feedback service needs.
type FeedbackStore interface {
	Create(ctx context.Context, record *models.FeedbackRecord) error
	UpdateResolution(ctx context.Context, record *models.FeedbackRecord) error
	FindByID(ctx context.Context, id string) (*models.FeedbackRecord, error)
	List(ctx context.Context, filter repository.FeedbackFilter) ([]models.FeedbackRecord, error)
}

// FeedbackInput is the body of a feedback submission.
type FeedbackInput struct {
	FeedbackType string `json:"feedback_type"`
	Message      string `json:"message"`
	Page         string `json:"page"`
	Browser      string `json:"browser"`
	Theme        string `json:"theme"`
}

// FeedbackService handles in-app feedback
type FeedbackService struct {
	store      FeedbackStore
	throttle   *alert.Throttle
	dispatcher *alert.Dispatcher
	bus        *events.EventBus
	clock      clock.Clock
}

// NewFeedbackService creates a new feedback service. throttle, dispatcher
// and bus may be nil.
func NewFeedbackService(store FeedbackStore, throttle *alert.Throttle, dispatcher *alert.Dispatcher, bus *events.EventBus, clk clock.Clock) *FeedbackService {
	if clk == nil {
		clk = clock.Real()
	}
	return &FeedbackService{
		store:      store,
		throttle:   throttle,
		dispatcher: dispatcher,
		bus:        bus,
		clock:      clk,
	}
}

// Submit validates and stores feedback. Unlike event ingestion, a storage
// failure is returned so the submitter sees it.
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput, userID *string) (*models.FeedbackRecord, error) {
	feedbackType, err := models.ParseFeedbackType(in.FeedbackType)
	if err != nil {
		return nil, &ingest.ValidationError{Field: "feedback_type", Reason: err.Error()}
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, &ingest.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(message) > MaxFeedbackLength {
		return nil, &ingest.ValidationError{Field: "message", Reason: "too long"}
	}

	record := &models.FeedbackRecord{
		FeedbackType: feedbackType,
		Message:      message,
		Page:         in.Page,
		Browser:      in.Browser,
		Theme:        in.Theme,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if userID != nil && *userID != "" {
		uid := *userID
		record.UserID = &uid
	}

	if err := s.store.Create(ctx, record); err != nil {
		monitoring.RecordPersistenceFailure("feedback")
		logger.Error("FEEDBACK: failed to store feedback", err, map[string]interface{}{
			"feedback_type": string(feedbackType),
		})
		return nil, err
	}

	monitoring.RecordFeedback(string(feedbackType))
	s.bus.PublishFeedbackSubmitted(record.ID, string(feedbackType))
	logger.Info("FEEDBACK: submitted", map[string]interface{}{
		"feedback_id":   record.ID,
		"feedback_type": string(feedbackType),
	})

	if feedbackType == models.FeedbackTypeBugReport {
		s.escalate(record)
	}
	return record, nil
}

func (s *FeedbackService) escalate(record *models.FeedbackRecord) {
	if s.throttle == nil || s.dispatcher == nil {
		return
	}
	category := alert.CategoryGeneral
	sent := s.throttle.ShouldAlert(category)
	suppressed := s.throttle.ThrottledCount(category)
	monitoring.RecordAlert(category, sent)
	s.bus.PublishAlert(category, record.ID, sent, suppressed)
	if !sent {
		return
	}

	fields := map[string]string{}
	if record.Page != "" {
		fields["page"] = record.Page
	}
	s.dispatcher.Dispatch(alert.Alert{
		Category:   category,
		EventType:  "feedback",
		EventID:    record.ID,
		Title:      "Bug report submitted",
		Summary:    alert.Summarize(record.Message),
		Fields:     fields,
		Suppressed: suppressed,
		OccurredAt: record.CreatedAt,
	})
}

// Resolve marks feedback as handled by operatorID.
func (s *FeedbackService) Resolve(ctx context.Context, id, operatorID, notes string) (*models.FeedbackRecord, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Resolve(operatorID, strings.TrimSpace(notes), s.clock.Now().UTC())
	if err := s.updateResolution(ctx, record); err != nil {
		return nil, err
	}
	logger.Info("FEEDBACK: resolved", map[string]interface{}{
		"feedback_id": id,
		"operator":    operatorID,
	})
	return s.find(ctx, id)
}

// Reopen clears a previous resolution.
func (s *FeedbackService) Reopen(ctx context.Context, id string) (*models.FeedbackRecord, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Reopen()
	if err := s.updateResolution(ctx, record); err != nil {
		return nil, err
	}
	return s.find(ctx, id)
}

// List returns feedback matching filter, newest first.
func (s *FeedbackService) List(ctx context.Context, filter repository.FeedbackFilter) ([]models.FeedbackRecord, error) {
	return s.store.List(ctx, filter)
}

// updateResolution persists the resolution fields only; the caller
// re-reads the row so anonymization done meanwhile is reflected.
func (s *FeedbackService) updateResolution(ctx context.Context, record *models.FeedbackRecord) error {
	err := s.store.UpdateResolution(ctx, record)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrFeedbackNotFound
	}
	return err
}

func (s *FeedbackService) find(ctx context.Context, id string) (*models.FeedbackRecord, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	return record, nil
}
