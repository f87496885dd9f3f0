package retention

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pennywise/observability/internal/models"
)

// Entity names used as Counts keys.
const (
	EntityEvents   = "monitoring_events"
	EntityFeedback = "feedback_records"
)

// Operation names a retention action.
type Operation string

const (
	OpAnonymize Operation = "anonymize"
	OpPurge     Operation = "purge"
	OpErase     Operation = "erase"
	OpExport    Operation = "export"
)

// Policy holds the age thresholds and batch size.
type Policy struct {
	AnonymizeAfter time.Duration
	PurgeAfter     time.Duration
	BatchSize      int
}

// DefaultPolicy anonymizes after 90 days and purges after a year.
var DefaultPolicy = Policy{
	AnonymizeAfter: 90 * 24 * time.Hour,
	PurgeAfter:     365 * 24 * time.Hour,
	BatchSize:      500,
}

// Store is the lifecycle surface shared by every entity with personal data.
type Store interface {
	Stats(ctx context.Context, anonymizeCutoff, purgeCutoff time.Time) (models.RetentionStats, error)
	AnonymizeBatch(ctx context.Context, cutoff, at time.Time, limit int) (int64, error)
	PurgeBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	AnonymizeSubject(ctx context.Context, userID string, at time.Time) (int64, error)
}

// EventStore is implemented by repository.EventRepository.
type EventStore interface {
	Store
	FindBySubject(ctx context.Context, userID string) ([]models.MonitoringEvent, error)
}

// FeedbackStore is implemented by repository.FeedbackRepository.
type FeedbackStore interface {
	Store
	FindBySubject(ctx context.Context, userID string) ([]models.FeedbackRecord, error)
}

// Counts is rows processed per entity.
type Counts map[string]int64

// Total sums all entities.
func (c Counts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

func (c Counts) clone() Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// String renders "entity=n" pairs in name order.
func (c Counts) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c[k]))
	}
	return strings.Join(parts, " ")
}

// AuditResult is a read-only snapshot of where stored data stands against
// the policy. It is computed on demand and never stored.
type AuditResult struct {
	GeneratedAt     time.Time             `json:"generated_at"`
	AnonymizeAfter  int                   `json:"anonymize_after_days"`
	PurgeAfter      int                   `json:"purge_after_days"`
	AnonymizeCutoff time.Time             `json:"anonymize_cutoff"`
	PurgeCutoff     time.Time             `json:"purge_cutoff"`
	Events          models.RetentionStats `json:"monitoring_events"`
	Feedback        models.RetentionStats `json:"feedback_records"`
}

// Text renders the audit as an aligned table for terminals and plain-text
// responses.
func (r AuditResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Retention audit at %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  anonymize after %d days (created before %s)\n", r.AnonymizeAfter, r.AnonymizeCutoff.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  purge after %d days (created before %s)\n\n", r.PurgeAfter, r.PurgeCutoff.UTC().Format(time.RFC3339))

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ENTITY\tTOTAL\tNOT ANONYMIZED\tANONYMIZE DUE\tPURGE DUE\t")
	for _, row := range []struct {
		name  string
		stats models.RetentionStats
	}{{EntityEvents, r.Events}, {EntityFeedback, r.Feedback}} {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t\n", row.name, row.stats.Total, row.stats.NotAnonymized, row.stats.AnonymizeDue, row.stats.PurgeDue)
	}
	w.Flush()
	return b.String()
}

// SubjectExport is every record that still identifies one subject.
type SubjectExport struct {
	UserID      string                  `json:"user_id"`
	GeneratedAt time.Time               `json:"generated_at"`
	Events      []models.MonitoringEvent `json:"monitoring_events"`
	Feedback    []models.FeedbackRecord  `json:"feedback_records"`
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
