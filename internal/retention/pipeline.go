// Package retention enforces the data-minimization policy over stored
// monitoring events and feedback: age-based anonymization and purge, plus
// on-demand export and erasure for a single subject.
package retention

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pennywise/observability/internal/audit"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/events"
	"github.com/pennywise/observability/internal/monitoring"
	"github.com/pennywise/observability/pkg/logger"
)

// Options configure a Pipeline.
type Options struct {
	Events   EventStore
	Feedback FeedbackStore
	Policy   Policy
	Clock    clock.Clock
	Audit    *audit.AuditLogger
	Bus      *events.EventBus
}

// Pipeline runs retention operations. Anonymize and purge exclude each
// other; audits and subject requests do not take the run lock.
type Pipeline struct {
	events   EventStore
	feedback FeedbackStore
	policy   Policy
	clock    clock.Clock
	audit    *audit.AuditLogger
	bus      *events.EventBus

	runMu      sync.Mutex
	auditGroup singleflight.Group
}

// New creates a pipeline. Zero policy fields take the defaults.
func New(opts Options) *Pipeline {
	policy := opts.Policy
	if policy.AnonymizeAfter <= 0 {
		policy.AnonymizeAfter = DefaultPolicy.AnonymizeAfter
	}
	if policy.PurgeAfter <= 0 {
		policy.PurgeAfter = DefaultPolicy.PurgeAfter
	}
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultPolicy.BatchSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewAuditLogger(0)
	}
	return &Pipeline{
		events:   opts.Events,
		feedback: opts.Feedback,
		policy:   policy,
		clock:    opts.Clock,
		audit:    opts.Audit,
		bus:      opts.Bus,
	}
}

// Policy returns the effective policy.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// History returns the most recent audit log entries.
func (p *Pipeline) History(n int) []audit.AuditEntry {
	return p.audit.GetRecent(n)
}

func (p *Pipeline) cutoffs(now time.Time) (anonymize, purge time.Time) {
	return now.Add(-p.policy.AnonymizeAfter), now.Add(-p.policy.PurgeAfter)
}

// auditTimeout bounds a shared audit computation, which no single
// caller's context may cancel.
const auditTimeout = 2 * time.Minute

// Audit counts rows against the thresholds without changing anything.
// Concurrent callers share one in-flight computation; a caller whose ctx
// ends stops waiting without cancelling it for the others.
func (p *Pipeline) Audit(ctx context.Context) (AuditResult, error) {
	ch := p.auditGroup.DoChan("audit", func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		defer cancel()
		return p.runAudit(shared)
	})

	select {
	case <-ctx.Done():
		return AuditResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AuditResult{}, res.Err
		}
		return res.Val.(AuditResult), nil
	}
}

func (p *Pipeline) runAudit(ctx context.Context) (AuditResult, error) {
	now := p.clock.Now()
	anonymizeCutoff, purgeCutoff := p.cutoffs(now)

	result := AuditResult{
		GeneratedAt:     now,
		AnonymizeAfter:  days(p.policy.AnonymizeAfter),
		PurgeAfter:      days(p.policy.PurgeAfter),
		AnonymizeCutoff: anonymizeCutoff,
		PurgeCutoff:     purgeCutoff,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := p.events.Stats(gctx, anonymizeCutoff, purgeCutoff)
		result.Events = stats
		return err
	})
	g.Go(func() error {
		stats, err := p.feedback.Stats(gctx, anonymizeCutoff, purgeCutoff)
		result.Feedback = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return AuditResult{}, err
	}
	return result, nil
}

// AnonymizeDue clears personal fields on every row older than the
// anonymization threshold that is not yet anonymized. Rows are processed
// oldest first in batches; ctx is checked between batches. Re-running is
// a no-op for rows already done.
func (p *Pipeline) AnonymizeDue(ctx context.Context) (Counts, error) {
	return p.run(ctx, OpAnonymize, audit.ActionAnonymize, func(ctx context.Context, now time.Time, counts Counts) error {
		cutoff, _ := p.cutoffs(now)
		return p.eachStore(func(entity string, s Store) error {
			return p.drain(ctx, OpAnonymize, entity, counts, func() (int64, error) {
				return s.AnonymizeBatch(ctx, cutoff, now, p.policy.BatchSize)
			})
		})
	})
}

// PurgeDue permanently deletes every row older than the purge threshold,
// anonymized or not.
func (p *Pipeline) PurgeDue(ctx context.Context) (Counts, error) {
	return p.run(ctx, OpPurge, audit.ActionPurge, func(ctx context.Context, now time.Time, counts Counts) error {
		_, cutoff := p.cutoffs(now)
		return p.eachStore(func(entity string, s Store) error {
			return p.drain(ctx, OpPurge, entity, counts, func() (int64, error) {
				return s.PurgeBatch(ctx, cutoff, p.policy.BatchSize)
			})
		})
	})
}

type runFunc func(ctx context.Context, now time.Time, counts Counts) error

// run holds the run lock for op and records the outcome everywhere it is
// observed: log, audit log, metrics and the live event stream.
func (p *Pipeline) run(ctx context.Context, op Operation, action audit.ActionType, fn runFunc) (Counts, error) {
	actor := ActorFrom(ctx)
	if !p.runMu.TryLock() {
		logger.Warn("RETENTION: run already in progress, rejecting", map[string]interface{}{
			"operation": string(op),
			"actor":     actor,
		})
		p.audit.RecordRejected(action, actor, ErrRunInProgress.Error())
		return nil, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	start := time.Now()
	counts := Counts{EntityEvents: 0, EntityFeedback: 0}

	logger.Info("RETENTION: starting "+string(op), map[string]interface{}{
		"actor":      actor,
		"batch_size": p.policy.BatchSize,
	})

	err := fn(ctx, p.clock.Now(), counts)
	duration := time.Since(start)

	p.finish(op, action, actor, counts, duration, err)
	return counts, err
}

func (p *Pipeline) finish(op Operation, action audit.ActionType, actor string, counts Counts, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"actor":       actor,
		"counts":      counts.String(),
		"duration_ms": duration.Milliseconds(),
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		logger.Error("RETENTION: "+string(op)+" failed", err, fields)
	} else {
		logger.Info("RETENTION: "+string(op)+" completed", fields)
	}

	p.audit.RecordAction(action, actor, counts.clone(), duration, err)
	if op == OpAnonymize || op == OpPurge {
		monitoring.RecordRetention(string(op), counts, duration)
	}
	p.bus.PublishRetentionCompleted(string(op), counts.clone(), errMsg)
}

// eachStore visits events then feedback.
func (p *Pipeline) eachStore(fn func(entity string, s Store) error) error {
	if err := fn(EntityEvents, p.events); err != nil {
		return err
	}
	return fn(EntityFeedback, p.feedback)
}

// drain repeats batch until it processes fewer rows than the batch size.
func (p *Pipeline) drain(ctx context.Context, op Operation, entity string, counts Counts, batch func() (int64, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return &PartialFailure{Operation: op, Entity: entity, Counts: counts.clone(), Err: err}
		}

		n, err := batch()
		counts[entity] += n
		if err != nil {
			return &PartialFailure{Operation: op, Entity: entity, Counts: counts.clone(), Err: err}
		}
		if n < int64(p.policy.BatchSize) {
			return nil
		}
	}
}

// ExportSubjectData returns every non-anonymized row that references
// userID. Read-only.
func (p *Pipeline) ExportSubjectData(ctx context.Context, userID string) (SubjectExport, error) {
	if userID == "" {
		return SubjectExport{}, ErrEmptySubject
	}
	start := time.Now()

	export := SubjectExport{UserID: userID, GeneratedAt: p.clock.Now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := p.events.FindBySubject(gctx, userID)
		export.Events = rows
		return err
	})
	g.Go(func() error {
		rows, err := p.feedback.FindBySubject(gctx, userID)
		export.Feedback = rows
		return err
	})
	err := g.Wait()

	counts := Counts{EntityEvents: int64(len(export.Events)), EntityFeedback: int64(len(export.Feedback))}
	p.audit.RecordAction(audit.ActionExport, ActorFrom(ctx), counts, time.Since(start), err)
	if err != nil {
		return SubjectExport{}, err
	}
	return export, nil
}

// EraseSubjectData anonymizes every row of userID immediately, regardless
// of age. Rows are kept for aggregate statistics; purge still removes
// them once they age out.
func (p *Pipeline) EraseSubjectData(ctx context.Context, userID string) (Counts, error) {
	if userID == "" {
		return nil, ErrEmptySubject
	}
	start := time.Now()
	now := p.clock.Now()
	counts := Counts{EntityEvents: 0, EntityFeedback: 0}

	err := p.eachStore(func(entity string, s Store) error {
		n, err := s.AnonymizeSubject(ctx, userID, now)
		counts[entity] += n
		if err != nil {
			return &PartialFailure{Operation: OpErase, Entity: entity, Counts: counts.clone(), Err: err}
		}
		return nil
	})

	p.finish(OpErase, audit.ActionErase, ActorFrom(ctx), counts, time.Since(start), err)
	return counts, err
}
