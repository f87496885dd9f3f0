package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_KeepsMostRecent(t *testing.T) {
	a := NewAuditLogger(2)

	a.RecordAction(ActionAnonymize, "worker", map[string]int64{"monitoring_event": 3}, time.Second, nil)
	a.RecordAction(ActionPurge, "worker", nil, time.Second, errors.New("db down"))
	a.RecordRejected(ActionPurge, "admin:op-1", "run in progress")

	recent := a.GetRecent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, ResultFailed, recent[0].Result)
	assert.Equal(t, "db down", recent[0].Error)
	assert.Equal(t, ResultRejected, recent[1].Result)
	assert.False(t, recent[1].Timestamp.IsZero())

	assert.Len(t, a.GetByAction(ActionPurge), 2)
	assert.Empty(t, a.GetByAction(ActionAnonymize))
}

func TestAuditLogger_Stats(t *testing.T) {
	a := NewAuditLogger(0)
	a.RecordAction(ActionErase, "subject", map[string]int64{"feedback_record": 1}, 0, nil)
	a.RecordAction(ActionErase, "subject", nil, 0, nil)

	stats := a.Stats()
	assert.Equal(t, 2, stats["total_entries"])
	assert.Equal(t, 1000, stats["max_size"])
	assert.Equal(t, map[ActionType]int{ActionErase: 2}, stats["by_action"])
	assert.Contains(t, a.String(), "Audit Log Stats")
}
