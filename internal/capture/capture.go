// Package capture is the client half of the observability pipeline: it
// turns runtime errors, metrics and explicit log calls into envelopes,
// drops duplicate error reports, and forwards the rest to the ingestion
// gateway without blocking the caller.
package capture

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/logger"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	defaultMaxInFlight   = 32
)

// ErrClosed is returned by SubmitFeedback after Close.
var ErrClosed = errors.New("capturer closed")

// Gateway is the server-side ingestion endpoint set.
type Gateway interface {
	Submit(ctx context.Context, env Envelope) (eventID string, err error)
	SubmitFeedback(ctx context.Context, fb Feedback) (id string, err error)
}

// TrackerTags cross-reference a tracker event with the gateway copy.
type TrackerTags struct {
	Fingerprint    string
	GatewayEventID string
}

// Tracker is an external error-tracking integration.
type Tracker interface {
	// Active reports whether the integration is configured and enabled.
	Active() bool
	CaptureException(ctx context.Context, report ErrorReport, tags TrackerTags) error
}

// ErrorReport describes one captured error.
type ErrorReport struct {
	ErrorType     string                 `json:"error_type"`
	Message       string                 `json:"message"`
	Stack         string                 `json:"stack,omitempty"`
	ComponentName string                 `json:"component_name,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	URL           string                 `json:"url,omitempty"`
	UserAgent     string                 `json:"user_agent,omitempty"`
}

// Fingerprint is the duplicate-detection key of the report.
func (r ErrorReport) Fingerprint() string {
	return Fingerprint(r.ErrorType, r.Message, r.Context)
}

// Payload is the ui_error wire body.
func (r ErrorReport) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"error_type": r.ErrorType,
		"message":    r.Message,
		"stack":      r.Stack,
		"url":        r.URL,
		"user_agent": r.UserAgent,
	}
	if r.ComponentName != "" {
		p["component_name"] = r.ComponentName
	}
	if r.Context != nil {
		p["context"] = r.Context
	}
	return p
}

// Feedback is a user-submitted feedback form.
type Feedback struct {
	FeedbackType string `json:"feedback_type"`
	Message      string `json:"message"`
	Page         string `json:"page,omitempty"`
	Browser      string `json:"browser,omitempty"`
	Theme        string `json:"theme,omitempty"`
}

// Envelope is a classified observation. Type selects the gateway
// endpoint; Report is set only for ui_error envelopes.
type Envelope struct {
	Type    models.EventType
	Payload map[string]interface{}
	Report  *ErrorReport

	fingerprint string
}

// Options configure a Capturer.
type Options struct {
	Gateway Gateway
	Tracker Tracker // optional
	Dedup   *DedupCache

	// ServerEventNames is the allow-list for LogEvent.
	ServerEventNames []string

	// URL and UserAgent describe the capturing client and are stamped on
	// every envelope that carries them.
	URL       string
	UserAgent string

	Clock         clock.Clock
	SubmitTimeout time.Duration
	MaxInFlight   int64
}

// Capturer forwards observations to the gateway. All Log and Capture
// methods return immediately; submission failures are logged and never
// retried.
type Capturer struct {
	gateway   Gateway
	tracker   Tracker
	dedup     *DedupCache
	allowed   map[string]struct{}
	url       string
	userAgent string
	clock     clock.Clock
	timeout   time.Duration

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a Capturer
func New(opts Options) *Capturer {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Dedup == nil {
		opts.Dedup = NewDedupCache(DefaultDedupWindow, DefaultDedupCapacity, opts.Clock)
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}

	allowed := make(map[string]struct{}, len(opts.ServerEventNames))
	for _, name := range opts.ServerEventNames {
		allowed[name] = struct{}{}
	}

	return &Capturer{
		gateway:   opts.Gateway,
		tracker:   opts.Tracker,
		dedup:     opts.Dedup,
		allowed:   allowed,
		url:       opts.URL,
		userAgent: opts.UserAgent,
		clock:     opts.Clock,
		timeout:   opts.SubmitTimeout,
		sem:       semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// CaptureError reports err. fields may be nil.
func (c *Capturer) CaptureError(err error, componentName string, fields map[string]interface{}) {
	if err == nil {
		return
	}
	c.CaptureReport(ErrorReport{
		ErrorType:     errorName(err),
		Message:       err.Error(),
		Stack:         string(debug.Stack()),
		ComponentName: componentName,
		Context:       fields,
	})
}

// CaptureReport reports a pre-built error report, e.g. one relayed from a
// browser. Empty URL and UserAgent are filled from Options.
func (c *Capturer) CaptureReport(report ErrorReport) {
	if report.URL == "" {
		report.URL = c.url
	}
	if report.UserAgent == "" {
		report.UserAgent = c.userAgent
	}
	c.process(c.classifyError(report))
}

// LogPerformanceMetric forwards a metric sample. Metrics are never
// deduplicated. A "path" entry in fields is sent as the metric path.
func (c *Capturer) LogPerformanceMetric(name string, value float64, fields map[string]interface{}) {
	payload := map[string]interface{}{
		"metric_name": name,
		"value":       value,
		"path":        c.url,
		"user_agent":  c.userAgent,
	}
	rest := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == "path" {
			if p, ok := v.(string); ok && p != "" {
				payload["path"] = p
				continue
			}
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		payload["context"] = rest
	}
	c.process(Envelope{Type: models.EventTypePerformanceMetric, Payload: payload})
}

// LogPerformanceIssue forwards a detected problem such as a long task or
// an accessibility violation.
func (c *Capturer) LogPerformanceIssue(issueType string, data map[string]interface{}) {
	c.process(Envelope{
		Type: models.EventTypePerformanceIssue,
		Payload: map[string]interface{}{
			"issue_type": issueType,
			"data":       nonNil(data),
		},
	})
}

// LogEvent forwards allow-listed events; anything else stays in the local
// debug log.
func (c *Capturer) LogEvent(name string, data map[string]interface{}) {
	if _, ok := c.allowed[name]; !ok {
		logger.Debug("CAPTURE: local event", map[string]interface{}{
			"event_name": name,
			"data":       data,
		})
		return
	}
	c.process(Envelope{
		Type: models.EventTypeUIEvent,
		Payload: map[string]interface{}{
			"event_name": name,
			"data":       nonNil(data),
		},
	})
}

// SubmitFeedback sends feedback synchronously so the form can tell the
// user whether it arrived.
func (c *Capturer) SubmitFeedback(ctx context.Context, fb Feedback) (string, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}
	if fb.Browser == "" {
		fb.Browser = c.userAgent
	}
	if fb.Page == "" {
		fb.Page = c.url
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.gateway.SubmitFeedback(ctx, fb)
	if err != nil {
		return "", fmt.Errorf("failed to submit feedback: %w", err)
	}
	return id, nil
}

// Flush waits for every in-flight submission.
func (c *Capturer) Flush() {
	c.wg.Wait()
}

// Close stops accepting observations and waits for in-flight submissions.
func (c *Capturer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Flush()
}

func (c *Capturer) classifyError(report ErrorReport) Envelope {
	return Envelope{
		Type:        models.EventTypeUIError,
		Payload:     report.Payload(),
		Report:      &report,
		fingerprint: report.Fingerprint(),
	}
}

// gate applies the duplicate rule: with an active tracker, a ui_error
// whose fingerprint was seen within the dedup window is dropped before it
// reaches either the gateway or the tracker.
func (c *Capturer) gate(env Envelope) bool {
	if env.Type != models.EventTypeUIError || !c.trackerActive() {
		return true
	}
	if c.dedup.Observe(env.fingerprint) {
		logger.Debug("CAPTURE: duplicate error dropped", map[string]interface{}{
			"fingerprint": env.fingerprint,
		})
		return false
	}
	return true
}

// fanOut sends env to the gateway and then, for errors, to the tracker
// tagged with the gateway's event id.
func (c *Capturer) fanOut(ctx context.Context, env Envelope) {
	eventID, err := c.gateway.Submit(ctx, env)
	if err != nil {
		logger.Warn("CAPTURE: submission failed", map[string]interface{}{
			"event_type": string(env.Type),
			"error":      err.Error(),
		})
	}

	if env.Report == nil || !c.trackerActive() {
		return
	}
	tags := TrackerTags{Fingerprint: env.fingerprint, GatewayEventID: eventID}
	if err := c.tracker.CaptureException(ctx, *env.Report, tags); err != nil {
		logger.Warn("CAPTURE: tracker forward failed", map[string]interface{}{
			"fingerprint": env.fingerprint,
			"error":       err.Error(),
		})
	}
}

// process takes a submission slot, then runs the gate on the caller's
// goroutine so the first caller to observe a fingerprint wins, and
// submits in the background. A drop for lack of a slot leaves the dedup
// cache untouched.
func (c *Capturer) process(env Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.gateway == nil {
		return
	}
	if !c.sem.TryAcquire(1) {
		logger.Warn("CAPTURE: too many submissions in flight, dropping", map[string]interface{}{
			"event_type": string(env.Type),
		})
		return
	}
	if !c.gate(env) {
		c.sem.Release(1)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		c.fanOut(ctx, env)
	}()
}

func (c *Capturer) trackerActive() bool {
	return c.tracker != nil && c.tracker.Active()
}

// errorName returns the bare type name of err, e.g. "PathError".
func errorName(err error) string {
	if named, ok := err.(interface{ Name() string }); ok {
		return named.Name()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

func nonNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
