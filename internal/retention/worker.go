package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pennywise/observability/pkg/logger"
)

// Worker runs anonymize then purge periodically
type Worker struct {
	pipeline *Pipeline
	interval time.Duration // How often to run (default: 24h)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
	lastErr error
}

// NewWorker creates a new retention worker
func NewWorker(pipeline *Pipeline, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Worker{
		pipeline: pipeline,
		interval: interval,
	}
}

// Start begins the worker. The first cycle runs immediately.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		logger.Warn("RETENTION: Worker already running", nil)
		return
	}

	ctx, w.cancel = context.WithCancel(WithActor(ctx, "worker"))
	w.done = make(chan struct{})
	w.running = true

	logger.Info("RETENTION: Starting retention worker", map[string]interface{}{
		"interval": w.interval.String(),
	})

	go func() {
		defer close(w.done)

		// Run immediately on startup
		w.RunOnce(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.RunOnce(ctx)
			case <-ctx.Done():
				logger.Info("RETENTION: Worker stopped", nil)
				return
			}
		}
	}()
}

// Stop halts the worker and waits for a running cycle to notice
// cancellation.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	logger.Info("RETENTION: Stopping retention worker", nil)
	w.cancel()
	w.running = false
	done := w.done
	w.mu.Unlock()

	<-done
}

// RunOnce performs one anonymize + purge cycle. A cycle that finds a run
// already in progress is skipped.
func (w *Worker) RunOnce(ctx context.Context) {
	start := time.Now()

	anonymized, err := w.pipeline.AnonymizeDue(ctx)
	if errors.Is(err, ErrRunInProgress) {
		logger.Warn("RETENTION: Run already in progress, skipping this cycle", nil)
		return
	}

	var purged Counts
	if err == nil {
		purged, err = w.pipeline.PurgeDue(ctx)
	}

	w.mu.Lock()
	w.lastRun = start
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		logger.Error("RETENTION: Cycle failed", err, nil)
		return
	}

	logger.Info("RETENTION: Cycle completed successfully", map[string]interface{}{
		"anonymized": anonymized.Total(),
		"purged":     purged.Total(),
		"duration_s": time.Since(start).Seconds(),
		"next_run":   time.Now().Add(w.interval).Format(time.RFC3339),
	})
}

// GetStats returns statistics about the retention worker
func (w *Worker) GetStats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := map[string]interface{}{
		"running":  w.running,
		"interval": w.interval.String(),
	}
	if !w.lastRun.IsZero() {
		stats["last_run"] = w.lastRun.Format(time.RFC3339)
	}
	if w.lastErr != nil {
		stats["last_error"] = w.lastErr.Error()
	}
	return stats
}
