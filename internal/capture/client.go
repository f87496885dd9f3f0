package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pennywise/observability/internal/models"
)

// Endpoint paths served by the ingestion gateway.
var endpoints = map[models.EventType]string{
	models.EventTypeUIError:           "/monitoring/ui-error",
	models.EventTypePerformanceMetric: "/monitoring/performance-metric",
	models.EventTypeUIEvent:           "/monitoring/ui-event",
	models.EventTypePerformanceIssue:  "/monitoring/performance-issue",
}

const feedbackEndpoint = "/monitoring/feedback"

// Endpoint returns the gateway path for t.
func Endpoint(t models.EventType) (string, bool) {
	p, ok := endpoints[t]
	return p, ok
}

// HTTPGateway submits envelopes to the ingestion HTTP API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	token      string
	sessionID  string
	httpClient *http.Client
}

// HTTPGatewayOption customizes an HTTPGateway.
type HTTPGatewayOption func(*HTTPGateway)

// WithSessionToken authenticates as a logged-in session.
func WithSessionToken(token string) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.token = token }
}

// WithSessionID correlates anonymous submissions from one client session.
func WithSessionID(id string) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.sessionID = id }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.httpClient = c }
}

// NewHTTPGateway creates a gateway client. apiKey may be empty when a
// session token is supplied or the server runs in trusted mode.
func NewHTTPGateway(baseURL, apiKey string, opts ...HTTPGatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type submitResponse struct {
	EventID   string `json:"event_id"`
	Persisted *bool  `json:"persisted,omitempty"`
}

type feedbackResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Submit posts env to its endpoint and returns the event id.
func (g *HTTPGateway) Submit(ctx context.Context, env Envelope) (string, error) {
	path, ok := Endpoint(env.Type)
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownEventType, env.Type)
	}

	var resp submitResponse
	if err := g.post(ctx, path, env.Payload, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// SubmitFeedback posts a feedback form and returns the record id.
func (g *HTTPGateway) SubmitFeedback(ctx context.Context, fb Feedback) (string, error) {
	var resp feedbackResponse
	if err := g.post(ctx, feedbackEndpoint, fb, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if g.sessionID != "" {
		req.Header.Set("X-Session-ID", g.sessionID)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}
