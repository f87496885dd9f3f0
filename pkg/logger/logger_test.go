package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN, &buf, false)

	l.Log(INFO, "dropped", nil)
	l.Log(WARN, "kept", map[string]interface{}{"k": "v"})

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "WARN: kept")
	assert.Contains(t, out, "k:v")
}

func TestLogger_JSONIncludesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, &buf, true)

	l.LogError(ERROR, "store failed", errors.New("db down"), map[string]interface{}{"entity": "event"})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "store failed", entry.Message)
	assert.Equal(t, "db down", entry.Error)
	assert.Equal(t, "event", entry.Fields["entity"])
}

func TestLogger_UnencodableFieldsStillLogged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, &buf, true)

	l.Log(INFO, "odd", map[string]interface{}{"ch": make(chan int)})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "odd", entry.Message)
	assert.Contains(t, entry.Fields, "fields_error")
}

func TestLogger_ConcurrentWritesProduceWholeLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, &buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Log(INFO, "ingested", map[string]interface{}{"n": 1})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		var entry LogEntry
		assert.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}

func TestFieldLogger_WithMergesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, &buf, true)

	base := l.WithFields(map[string]interface{}{"component": "retention", "op": "purge"})
	child := base.With(map[string]interface{}{"op": "anonymize"})
	child.Info("run")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "retention", entry.Fields["component"])
	assert.Equal(t, "anonymize", entry.Fields["op"])
	assert.Equal(t, "purge", base.fields["op"], "parent fields must not change")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel(" ERROR "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, &buf, true)

	fields := map[string]interface{}{"source_ip": "10.0.0.1", "User_Agent": "Mozilla", "event_type": "ui_error"}
	l.Log(INFO, "ingested", fields)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, redacted, entry.Fields["source_ip"])
	assert.Equal(t, redacted, entry.Fields["User_Agent"])
	assert.Equal(t, "ui_error", entry.Fields["event_type"])
	assert.Equal(t, "10.0.0.1", fields["source_ip"], "caller map untouched")
	assert.NotContains(t, buf.String(), "Mozilla")
}
