package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/ingest"
	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/monitoring"
	"github.com/pennywise/observability/internal/service"
)

// maxEnvelopeBytes bounds one ingestion request body.
const maxEnvelopeBytes = 64 << 10

// Headers read from anonymous ingestion clients
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderSessionID = "X-Session-ID"
)

type MonitoringHandler struct {
	gateway  *ingest.Gateway
	feedback *service.FeedbackService
}

func NewMonitoringHandler(gateway *ingest.Gateway, feedback *service.FeedbackService) *MonitoringHandler {
	return &MonitoringHandler{
		gateway:  gateway,
		feedback: feedback,
	}
}

// Ingest returns the handler for POST /monitoring/<event-type>
func (h *MonitoringHandler) Ingest(t models.EventType) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEnvelopeBytes+1))
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError("Failed to read request body"))
			return
		}
		if len(body) > maxEnvelopeBytes {
			middleware.HandleAppError(c, middleware.NewPayloadTooLargeError(maxEnvelopeBytes))
			return
		}

		caller := callerFrom(c)
		// Unauthorized callers get 401 before any body validation.
		if err := h.gateway.Authorize(caller); err != nil {
			monitoring.RecordRejected("unauthorized")
			h.fail(c, err)
			return
		}

		payload, err := ingest.DecodeRequest(t, body)
		if err != nil {
			monitoring.RecordRejected("validation")
			h.fail(c, err)
			return
		}

		receipt, err := h.gateway.Submit(c.Request.Context(), string(t), payload, caller)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

func (h *MonitoringHandler) fail(c *gin.Context, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.Is(err, ingest.ErrUnauthorized):
		middleware.HandleAppError(c, middleware.NewUnauthorizedError("Authentication required"))
	case errors.As(err, &verr):
		middleware.HandleAppError(c, middleware.NewValidationError(verr))
	default:
		middleware.HandleAppError(c, middleware.NewInternalError(err))
	}
}

// callerFrom describes the request's submitter. A session from the auth
// middleware wins over a client supplied session header.
func callerFrom(c *gin.Context) ingest.Caller {
	caller := ingest.Caller{
		UserID:    middleware.GetUserID(c),
		SessionID: middleware.GetSessionID(c),
		APIKey:    c.GetHeader(HeaderAPIKey),
		UserAgent: c.Request.UserAgent(),
		SourceIP:  c.ClientIP(),
	}
	caller.Authenticated = caller.UserID != ""
	if caller.SessionID == "" {
		caller.SessionID = c.GetHeader(HeaderSessionID)
	}
	return caller
}

// SubmitFeedback handles POST /monitoring/feedback
func (h *MonitoringHandler) SubmitFeedback(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEnvelopeBytes)
	var req service.FeedbackInput
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.HandleAppError(c, middleware.NewPayloadTooLargeError(maxEnvelopeBytes))
			return
		}
		middleware.HandleAppError(c, middleware.NewBadRequestError("Invalid feedback: "+err.Error()))
		return
	}

	var userID *string
	if uid := middleware.GetUserID(c); uid != "" {
		userID = &uid
	}

	record, err := h.feedback.Submit(c.Request.Context(), req, userID)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			middleware.HandleAppError(c, middleware.NewValidationError(verr))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit feedback. Please try again later.",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      record.ID,
		"message": "Thank you for your feedback!",
	})
}
