package retention

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pennywise/observability/internal/models"
)

// batchHooks lets tests fail or block a specific batch call.
type batchHooks struct {
	calls     int
	failOn    int // 1-based call number; 0 never fails
	failErr   error
	started   chan struct{}
	release   chan struct{}
	statsErr  error
	statsHits int
	// statsGate, when set, runs before Stats reads any rows.
	statsGate func(ctx context.Context) error
}

func (h *batchHooks) enter() error {
	h.calls++
	if h.started != nil {
		close(h.started)
		h.started = nil
		<-h.release
	}
	if h.failOn > 0 && h.calls == h.failOn {
		return h.failErr
	}
	return nil
}

type memEventStore struct {
	mu   sync.Mutex
	rows []*models.MonitoringEvent
	batchHooks
}

func (s *memEventStore) add(userID string, createdAt time.Time) *models.MonitoringEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, _ := models.NewMonitoringEvent(models.EventTypeUIError, map[string]interface{}{"message": "boom"}, createdAt)
	if userID != "" {
		uid := userID
		ev.UserID = &uid
	}
	ev.SourceIP = "192.0.2.10"
	ev.UserAgent = "Chrome"
	s.rows = append(s.rows, ev)
	return ev
}

func (s *memEventStore) Stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error) {
	if s.statsGate != nil {
		if err := s.statsGate(ctx); err != nil {
			return models.RetentionStats{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsHits++
	if s.statsErr != nil {
		return models.RetentionStats{}, s.statsErr
	}
	var st models.RetentionStats
	for _, r := range s.rows {
		st.Total++
		if !r.IsAnonymized() {
			st.NotAnonymized++
			if r.CreatedAt.Before(anonymizeCutoff) {
				st.AnonymizeDue++
			}
		}
		if r.CreatedAt.Before(purgeCutoff) {
			st.PurgeDue++
		}
	}
	return st, nil
}

func (s *memEventStore) oldest(match func(*models.MonitoringEvent) bool, limit int) []*models.MonitoringEvent {
	var out []*models.MonitoringEvent
	for _, r := range s.rows {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memEventStore) AnonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.oldest(func(r *models.MonitoringEvent) bool {
		return !r.IsAnonymized() && r.CreatedAt.Before(cutoff)
	}, limit) {
		if r.Anonymize(at) {
			n++
		}
	}
	return n, nil
}

func (s *memEventStore) PurgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	doomed := make(map[*models.MonitoringEvent]bool)
	for _, r := range s.oldest(func(r *models.MonitoringEvent) bool { return r.CreatedAt.Before(cutoff) }, limit) {
		doomed[r] = true
	}
	kept := s.rows[:0]
	for _, r := range s.rows {
		if !doomed[r] {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return int64(len(doomed)), nil
}

func (s *memEventStore) AnonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.rows {
		if r.UserID != nil && *r.UserID == userID && r.Anonymize(at) {
			n++
		}
	}
	return n, nil
}

func (s *memEventStore) FindBySubject(ctx context.Context, userID string) ([]models.MonitoringEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MonitoringEvent
	for _, r := range s.rows {
		if r.UserID != nil && *r.UserID == userID && !r.IsAnonymized() {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memFeedbackStore struct {
	mu   sync.Mutex
	rows []*models.FeedbackRecord
	batchHooks
}

func (s *memFeedbackStore) add(userID string, createdAt time.Time) *models.FeedbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &models.FeedbackRecord{
		ID:           createdAt.Format(time.RFC3339Nano) + userID,
		FeedbackType: models.FeedbackTypeGeneral,
		Message:      "nice app",
		Browser:      "Safari",
		CreatedAt:    createdAt,
	}
	if userID != "" {
		uid := userID
		rec.UserID = &uid
	}
	s.rows = append(s.rows, rec)
	return rec
}

func (s *memFeedbackStore) Stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st models.RetentionStats
	for _, r := range s.rows {
		st.Total++
		if !r.IsAnonymized() {
			st.NotAnonymized++
			if r.CreatedAt.Before(anonymizeCutoff) {
				st.AnonymizeDue++
			}
		}
		if r.CreatedAt.Before(purgeCutoff) {
			st.PurgeDue++
		}
	}
	return st, nil
}

func (s *memFeedbackStore) AnonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.rows {
		if n == int64(limit) {
			break
		}
		if r.CreatedAt.Before(cutoff) && r.Anonymize(at) {
			n++
		}
	}
	return n, nil
}

func (s *memFeedbackStore) PurgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	kept := s.rows[:0]
	for _, r := range s.rows {
		if n < int64(limit) && r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

func (s *memFeedbackStore) AnonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.rows {
		if r.UserID != nil && *r.UserID == userID && r.Anonymize(at) {
			n++
		}
	}
	return n, nil
}

func (s *memFeedbackStore) FindBySubject(ctx context.Context, userID string) ([]models.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FeedbackRecord
	for _, r := range s.rows {
		if r.UserID != nil && *r.UserID == userID && !r.IsAnonymized() {
			out = append(out, *r)
		}
	}
	return out, nil
}
