package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/retention"
)

func TestRenderAudit(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	renderAudit(&out, retention.AuditResult{
		GeneratedAt:    time.Now(),
		AnonymizeAfter: 90,
		PurgeAfter:     365,
		Events:         models.RetentionStats{Total: 10, NotAnonymized: 4, AnonymizeDue: 3, PurgeDue: 1},
	})

	text := out.String()
	assert.Contains(t, text, "anonymize after 90 days, purge after 365 days")
	assert.Contains(t, text, "monitoring_events")
	assert.Contains(t, text, "feedback_records")
	assert.Contains(t, text, "retentionctl purge")

	out.Reset()
	renderAudit(&out, retention.AuditResult{AnonymizeAfter: 90, PurgeAfter: 365})
	assert.Contains(t, out.String(), "Nothing is due")
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("purge\n"), &out, "? ", "purge"))
	assert.True(t, confirm(strings.NewReader("  purge"), &out, "? ", "purge"))
	assert.False(t, confirm(strings.NewReader("yes\n"), &out, "? ", "purge"))
	assert.False(t, confirm(strings.NewReader(""), &out, "? ", "purge"))
	assert.Equal(t, "? ? ? ? ", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"audit", "anonymize", "purge", "export", "erase", "token"} {
		assert.True(t, names[want], want)
	}
}
