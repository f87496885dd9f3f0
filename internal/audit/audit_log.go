package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pennywise/observability/pkg/logger"
)

// ActionType represents the type of action being audited
type ActionType string

const (
	ActionAnonymize ActionType = "retention_anonymize"
	ActionPurge     ActionType = "retention_purge"
	ActionExport    ActionType = "subject_export"
	ActionErase     ActionType = "subject_erase"
)

// Results
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// AuditEntry represents a single audit log entry. Entries never name the
// data subject; Actor identifies who triggered the action ("worker",
// "cli", "admin:<id>" or "subject").
type AuditEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Action    ActionType       `json:"action"`
	Actor     string           `json:"actor"`
	Counts    map[string]int64 `json:"counts,omitempty"`
	Duration  time.Duration    `json:"duration_ns"`
	Result    string           `json:"result"` // "success", "rejected", "failed"
	Error     string           `json:"error,omitempty"`
}

// AuditLogger keeps the most recent data-lifecycle actions in memory and
// writes each one to the structured log.
type AuditLogger struct {
	entries []AuditEntry
	mu      sync.RWMutex
	maxSize int // Maximum entries to keep in memory
	now     func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(maxSize int) *AuditLogger {
	if maxSize <= 0 {
		maxSize = 1000 // Default
	}

	return &AuditLogger{
		entries: make([]AuditEntry, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Record adds an entry to the audit log
func (a *AuditLogger) Record(entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}

	a.entries = append(a.entries, entry)

	// Trim if exceeded max size (keep most recent)
	if len(a.entries) > a.maxSize {
		a.entries = a.entries[len(a.entries)-a.maxSize:]
	}

	fields := map[string]interface{}{
		"action":      entry.Action,
		"actor":       entry.Actor,
		"result":      entry.Result,
		"duration_ms": entry.Duration.Milliseconds(),
	}
	if len(entry.Counts) > 0 {
		countsJSON, _ := json.Marshal(entry.Counts)
		fields["counts"] = string(countsJSON)
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}

	switch entry.Result {
	case ResultRejected:
		logger.Warn("AUDIT: "+string(entry.Action)+" REJECTED", fields)
	case ResultFailed:
		logger.Error("AUDIT: "+string(entry.Action)+" FAILED", nil, fields)
	default:
		logger.Info("AUDIT: "+string(entry.Action), fields)
	}
}

// RecordAction records a finished action; err decides the result.
func (a *AuditLogger) RecordAction(action ActionType, actor string, counts map[string]int64, duration time.Duration, err error) {
	entry := AuditEntry{
		Action:   action,
		Actor:    actor,
		Counts:   counts,
		Duration: duration,
		Result:   ResultSuccess,
	}
	if err != nil {
		entry.Result = ResultFailed
		entry.Error = err.Error()
	}
	a.Record(entry)
}

// RecordRejected records an action that was refused before it ran, e.g.
// because another run held the lock.
func (a *AuditLogger) RecordRejected(action ActionType, actor, reason string) {
	a.Record(AuditEntry{
		Action: action,
		Actor:  actor,
		Result: ResultRejected,
		Error:  reason,
	})
}

// GetRecent returns the N most recent audit entries, oldest first
func (a *AuditLogger) GetRecent(n int) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || n > len(a.entries) {
		n = len(a.entries)
	}

	start := len(a.entries) - n
	result := make([]AuditEntry, n)
	copy(result, a.entries[start:])

	return result
}

// GetByAction returns all audit entries for a specific action type
func (a *AuditLogger) GetByAction(action ActionType) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []AuditEntry
	for _, entry := range a.entries {
		if entry.Action == action {
			result = append(result, entry)
		}
	}

	return result
}

// Stats returns audit statistics
func (a *AuditLogger) Stats() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]interface{}{
		"total_entries": len(a.entries),
		"max_size":      a.maxSize,
	}

	actionCounts := make(map[ActionType]int)
	resultCounts := make(map[string]int)

	for _, entry := range a.entries {
		actionCounts[entry.Action]++
		resultCounts[entry.Result]++
	}

	stats["by_action"] = actionCounts
	stats["by_result"] = resultCounts

	if len(a.entries) > 0 {
		lastEntry := a.entries[len(a.entries)-1]
		stats["last_action"] = lastEntry.Action
		stats["last_timestamp"] = lastEntry.Timestamp
	}

	return stats
}

// String returns a human-readable audit log summary
func (a *AuditLogger) String() string {
	stats := a.Stats()
	statsJSON, _ := json.MarshalIndent(stats, "", "  ")
	return fmt.Sprintf("Audit Log Stats:\n%s", string(statsJSON))
}
