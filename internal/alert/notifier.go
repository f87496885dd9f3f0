package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/logger"
)

// notifyTimeout bounds one asynchronous delivery.
const notifyTimeout = 10 * time.Second

// Alert is an operator page for one escalated event. It carries no user
// identifiers.
type Alert struct {
	Category   string
	EventType  string
	EventID    string
	Title      string
	Summary    string
	Fields     map[string]string
	Suppressed int // suppressed so far in the current window
	OccurredAt time.Time
}

// SummaryLimit is the longest Summary, in runes, that Summarize keeps.
const SummaryLimit = 300

// Summarize shortens s to at most SummaryLimit runes, marking the cut
// with "...". It never splits a multi-byte character.
func Summarize(s string) string {
	if utf8.RuneCountInString(s) <= SummaryLimit {
		return s
	}
	runes := 0
	for i := range s {
		if runes == SummaryLimit {
			return s[:i] + "..."
		}
		runes++
	}
	return s
}

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NopNotifier drops alerts; used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, a Alert) error { return nil }

// WebhookNotifier posts alerts to a Discord/Slack-compatible webhook.
type WebhookNotifier struct {
	url        string
	username   string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(url, username string) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		username: username,
		httpClient: &http.Client{
			Timeout: notifyTimeout,
		},
	}
}

// Notify sends a single alert embed
func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	payload := models.WebhookPayload{
		Username: n.username,
		Embeds:   []models.WebhookEmbed{n.buildEmbed(a)},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (n *WebhookNotifier) buildEmbed(a Alert) models.WebhookEmbed {
	embed := models.WebhookEmbed{
		Title:       a.Title,
		Description: a.Summary,
		Color:       categoryColor(a.Category),
		Footer: &models.WebhookEmbedFooter{
			Text: fmt.Sprintf("%s · event %s", a.Category, a.EventID),
		},
		Timestamp: a.OccurredAt.UTC().Format(time.RFC3339),
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		embed.Fields = append(embed.Fields, models.WebhookEmbedField{Name: k, Value: a.Fields[k], Inline: true})
	}
	if a.Suppressed > 0 {
		embed.Fields = append(embed.Fields, models.WebhookEmbedField{
			Name:  "suppressed this window",
			Value: fmt.Sprintf("%d", a.Suppressed),
		})
	}
	return embed
}

func categoryColor(category string) int {
	switch category {
	case CategoryError:
		return 15158332 // Red
	case CategoryPerformance:
		return 15105570 // Orange
	case CategoryAccessibility:
		return 10181046 // Purple
	default:
		return 3447003 // Blue
	}
}

// Dispatcher delivers alerts in the background so request handlers never
// wait on the webhook.
type Dispatcher struct {
	notifier Notifier
	wg       sync.WaitGroup
}

// NewDispatcher wraps n; a nil notifier drops everything.
func NewDispatcher(n Notifier) *Dispatcher {
	if n == nil {
		n = NopNotifier{}
	}
	return &Dispatcher{notifier: n}
}

// Dispatch starts delivery and returns immediately. Errors are logged.
func (d *Dispatcher) Dispatch(a Alert) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, a); err != nil {
			logger.Warn("THROTTLE: alert delivery failed", map[string]interface{}{
				"category": a.Category,
				"event_id": a.EventID,
				"error":    err.Error(),
			})
		}
	}()
}

// Wait blocks until every dispatched alert has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
