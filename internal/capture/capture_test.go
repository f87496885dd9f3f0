package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/models"
)

type fakeGateway struct {
	mu        sync.Mutex
	envelopes []Envelope
	feedback  []Feedback
	err       error
	block     chan struct{}
}

func (g *fakeGateway) Submit(ctx context.Context, env Envelope) (string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.envelopes = append(g.envelopes, env)
	if g.err != nil {
		return "", g.err
	}
	return "ev-" + string(env.Type), nil
}

func (g *fakeGateway) SubmitFeedback(ctx context.Context, fb Feedback) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedback = append(g.feedback, fb)
	if g.err != nil {
		return "", g.err
	}
	return "fb-1", nil
}

func (g *fakeGateway) calls() []Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Envelope(nil), g.envelopes...)
}

type fakeTracker struct {
	active bool
	mu     sync.Mutex
	tags   []TrackerTags
}

func (t *fakeTracker) Active() bool { return t.active }

func (t *fakeTracker) CaptureException(ctx context.Context, r ErrorReport, tags TrackerTags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tags = append(t.tags, tags)
	return nil
}

func newTestCapturer(gw Gateway, tr Tracker, clk clock.Clock) *Capturer {
	return New(Options{
		Gateway:          gw,
		Tracker:          tr,
		Dedup:            NewDedupCache(5*time.Minute, 100, clk),
		ServerEventNames: []string{"page_view"},
		URL:              "https://app.example/budget",
		UserAgent:        "test-agent",
		Clock:            clk,
	})
}

func TestCaptureError_DuplicateWithinWindowSubmittedOnce(t *testing.T) {
	clk := clock.Fake(epoch)
	gw := &fakeGateway{}
	tr := &fakeTracker{active: true}
	c := newTestCapturer(gw, tr, clk)

	ctx := map[string]interface{}{"page": "/budget"}
	c.CaptureError(errors.New("x is undefined"), "Chart", ctx)
	clk.Advance(time.Minute)
	c.CaptureError(errors.New("x is undefined"), "Chart", ctx)
	c.Close()

	assert.Len(t, gw.calls(), 1)
	require.Len(t, tr.tags, 1, "a dropped duplicate never reaches the tracker")
	assert.Equal(t, "ev-ui_error", tr.tags[0].GatewayEventID)
	assert.NotEmpty(t, tr.tags[0].Fingerprint)
}

func TestCaptureError_OutsideWindowSubmittedTwice(t *testing.T) {
	clk := clock.Fake(epoch)
	gw := &fakeGateway{}
	c := newTestCapturer(gw, &fakeTracker{active: true}, clk)

	c.CaptureError(errors.New("boom"), "", nil)
	clk.Advance(6 * time.Minute)
	c.CaptureError(errors.New("boom"), "", nil)
	c.Close()

	assert.Len(t, gw.calls(), 2)
}

func TestCaptureError_NoTrackerNoDedup(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, &fakeTracker{active: false}, clock.Fake(epoch))

	c.CaptureError(errors.New("boom"), "", nil)
	c.CaptureError(errors.New("boom"), "", nil)
	c.Close()

	assert.Len(t, gw.calls(), 2)
}

func TestCaptureError_EnvelopeShape(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, nil, clock.Fake(epoch))

	c.CaptureError(&customError{}, "Ledger", map[string]interface{}{"row": 3})
	c.Close()

	calls := gw.calls()
	require.Len(t, calls, 1)
	p := calls[0].Payload
	assert.Equal(t, models.EventTypeUIError, calls[0].Type)
	assert.Equal(t, "customError", p["error_type"])
	assert.Equal(t, "custom failure", p["message"])
	assert.Equal(t, "Ledger", p["component_name"])
	assert.Equal(t, "https://app.example/budget", p["url"])
	assert.Equal(t, "test-agent", p["user_agent"])
	assert.NotEmpty(t, p["stack"])
}

type customError struct{}

func (*customError) Error() string { return "custom failure" }

func TestCapture_GatewayFailureIsSwallowedAndTrackerStillTagged(t *testing.T) {
	gw := &fakeGateway{err: errors.New("offline")}
	tr := &fakeTracker{active: true}
	c := newTestCapturer(gw, tr, clock.Fake(epoch))

	c.CaptureError(errors.New("boom"), "", nil)
	c.Close()

	require.Len(t, tr.tags, 1)
	assert.Empty(t, tr.tags[0].GatewayEventID)
}

func TestLogPerformanceMetric_NeverDeduplicated(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, &fakeTracker{active: true}, clock.Fake(epoch))

	c.LogPerformanceMetric("LCP", 1200, map[string]interface{}{"path": "/reports"})
	c.LogPerformanceMetric("LCP", 1200, map[string]interface{}{"path": "/reports"})
	c.Close()

	calls := gw.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, models.EventTypePerformanceMetric, calls[0].Type)
	assert.Equal(t, "/reports", calls[0].Payload["path"])
	assert.Equal(t, 1200.0, calls[0].Payload["value"])
	assert.NotContains(t, calls[0].Payload, "context")
}

func TestLogEvent_AllowList(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, nil, clock.Fake(epoch))

	c.LogEvent("page_view", map[string]interface{}{"page": "/"})
	c.LogEvent("button_hover", nil)
	c.LogPerformanceIssue("accessibility_contrast", nil)
	c.Close()

	calls := gw.calls()
	require.Len(t, calls, 2)
	types := []models.EventType{calls[0].Type, calls[1].Type}
	assert.ElementsMatch(t, []models.EventType{models.EventTypeUIEvent, models.EventTypePerformanceIssue}, types)
}

func TestCapture_DropsWhenSaturated(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{})}
	c := New(Options{Gateway: gw, Clock: clock.Fake(epoch), MaxInFlight: 1})

	c.LogPerformanceIssue("a", nil)
	c.LogPerformanceIssue("b", nil)
	close(gw.block)
	c.Close()

	assert.Len(t, gw.calls(), 1)
}

func TestCaptureError_SaturationDropDoesNotMarkDuplicate(t *testing.T) {
	clk := clock.Fake(epoch)
	gw := &fakeGateway{block: make(chan struct{})}
	tr := &fakeTracker{active: true}
	c := New(Options{Gateway: gw, Tracker: tr, Dedup: NewDedupCache(5*time.Minute, 100, clk), Clock: clk, MaxInFlight: 1})

	c.CaptureError(errors.New("first"), "Chart", nil)
	c.CaptureError(errors.New("second"), "Chart", nil)
	close(gw.block)
	c.wg.Wait()

	clk.Advance(time.Second)
	c.CaptureError(errors.New("second"), "Chart", nil)
	c.Close()

	var messages []string
	for _, env := range gw.calls() {
		messages = append(messages, env.Report.Message)
	}
	assert.Equal(t, []string{"first", "second"}, messages)
	assert.Len(t, tr.tags, 2)
}

func TestCapture_AfterCloseIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, nil, clock.Fake(epoch))
	c.Close()

	c.LogEvent("page_view", nil)
	c.Flush()
	assert.Empty(t, gw.calls())

	_, err := c.SubmitFeedback(context.Background(), Feedback{Message: "hi"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmitFeedback_SynchronousWithDefaults(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestCapturer(gw, nil, clock.Fake(epoch))
	defer c.Close()

	id, err := c.SubmitFeedback(context.Background(), Feedback{FeedbackType: "bug_report", Message: "totals wrong"})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", id)
	require.Len(t, gw.feedback, 1)
	assert.Equal(t, "test-agent", gw.feedback[0].Browser)

	gw.err = errors.New("down")
	_, err = c.SubmitFeedback(context.Background(), Feedback{Message: "again"})
	assert.Error(t, err)
}

func TestHTTPGateway_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/monitoring/ui-error", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "sess-1", r.Header.Get("X-Session-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TypeError", body["error_type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"event_id":"abc","persisted":true}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL+"/", "secret", WithSessionToken("tok"), WithSessionID("sess-1"))
	id, err := g.Submit(context.Background(), Envelope{
		Type:    models.EventTypeUIError,
		Payload: map[string]interface{}{"error_type": "TypeError", "message": "x is undefined"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestHTTPGateway_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"UNAUTHORIZED"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, "").Submit(context.Background(), Envelope{Type: models.EventTypeUIEvent})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestHTTPGateway_UnknownType(t *testing.T) {
	_, err := NewHTTPGateway("http://unused", "k").Submit(context.Background(), Envelope{Type: "bogus"})
	assert.ErrorIs(t, err, models.ErrUnknownEventType)
}
