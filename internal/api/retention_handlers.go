package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/retention"
)

// RetentionHandler exposes the retention pipeline to operators
type RetentionHandler struct {
	pipeline *retention.Pipeline
	worker   *retention.Worker
}

// NewRetentionHandler creates the handler; worker may be nil when no
// scheduled cycle runs in this process.
func NewRetentionHandler(pipeline *retention.Pipeline, worker *retention.Worker) *RetentionHandler {
	return &RetentionHandler{pipeline: pipeline, worker: worker}
}

// Audit handles GET /retention/audit?format=json|text
func (h *RetentionHandler) Audit(c *gin.Context) {
	result, err := h.pipeline.Audit(c.Request.Context())
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "text":
		c.String(http.StatusOK, result.Text())
	case "json":
		c.JSON(http.StatusOK, result)
	default:
		middleware.HandleAppError(c, middleware.NewBadRequestError("format must be json or text"))
	}
}

// Anonymize handles POST /retention/anonymize
func (h *RetentionHandler) Anonymize(c *gin.Context) {
	h.run(c, retention.OpAnonymize, h.pipeline.AnonymizeDue)
}

// Purge handles POST /retention/purge
func (h *RetentionHandler) Purge(c *gin.Context) {
	h.run(c, retention.OpPurge, h.pipeline.PurgeDue)
}

func (h *RetentionHandler) run(c *gin.Context, op retention.Operation, fn func(context.Context) (retention.Counts, error)) {
	ctx := retention.WithActor(c.Request.Context(), "admin:"+middleware.GetUserID(c))

	counts, err := fn(ctx)
	if err != nil {
		writeRetentionError(c, err, counts)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"operation": op,
		"counts":    counts,
		"total":     counts.Total(),
	})
}

// writeRetentionError maps pipeline errors: busy → 409, partial → 500 with
// the committed counts.
func writeRetentionError(c *gin.Context, err error, counts retention.Counts) {
	var partial *retention.PartialFailure
	switch {
	case errors.Is(err, retention.ErrRunInProgress):
		middleware.HandleAppError(c, middleware.NewConflictError(middleware.CodeRetentionBusy, err.Error()))
	case errors.As(err, &partial):
		appErr := middleware.NewInternalError(err)
		appErr.Code = middleware.CodeRetentionPartial
		appErr.Message = err.Error()
		middleware.HandleAppError(c, appErr.WithDetails(map[string]interface{}{
			"counts": partial.Counts,
			"entity": partial.Entity,
		}))
	case errors.Is(err, retention.ErrEmptySubject):
		middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
	default:
		middleware.HandleAppError(c, middleware.NewInternalError(err).WithDetails(map[string]interface{}{
			"counts": counts,
		}))
	}
}

// History handles GET /retention/history?limit=
func (h *RetentionHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	entries := h.pipeline.History(limit)
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// Policy handles GET /retention/policy
func (h *RetentionHandler) Policy(c *gin.Context) {
	p := h.pipeline.Policy()
	body := gin.H{
		"anonymize_after": p.AnonymizeAfter.String(),
		"purge_after":     p.PurgeAfter.String(),
		"batch_size":      p.BatchSize,
	}
	if h.worker != nil {
		body["worker"] = h.worker.GetStats()
	}
	c.JSON(http.StatusOK, body)
}
