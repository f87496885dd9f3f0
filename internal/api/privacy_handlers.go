package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/retention"
)

// PrivacyHandler serves subject access and erasure requests
type PrivacyHandler struct {
	pipeline *retention.Pipeline
}

func NewPrivacyHandler(pipeline *retention.Pipeline) *PrivacyHandler {
	return &PrivacyHandler{pipeline: pipeline}
}

// ExportOwn handles GET /privacy/export for the session's user
func (h *PrivacyHandler) ExportOwn(c *gin.Context) {
	h.export(c, retention.WithActor(c.Request.Context(), "subject"), middleware.GetUserID(c))
}

// EraseOwn handles POST /privacy/erase for the session's user
func (h *PrivacyHandler) EraseOwn(c *gin.Context) {
	h.erase(c, retention.WithActor(c.Request.Context(), "subject"), middleware.GetUserID(c))
}

// ExportSubject handles GET /admin/privacy/:user_id/export
func (h *PrivacyHandler) ExportSubject(c *gin.Context) {
	h.export(c, retention.WithActor(c.Request.Context(), "admin:"+middleware.GetUserID(c)), c.Param("user_id"))
}

// EraseSubject handles POST /admin/privacy/:user_id/erase
func (h *PrivacyHandler) EraseSubject(c *gin.Context) {
	h.erase(c, retention.WithActor(c.Request.Context(), "admin:"+middleware.GetUserID(c)), c.Param("user_id"))
}

func (h *PrivacyHandler) export(c *gin.Context, ctx context.Context, userID string) {
	export, err := h.pipeline.ExportSubjectData(ctx, userID)
	if err != nil {
		writeRetentionError(c, err, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="data-export.json"`)
	c.JSON(http.StatusOK, export)
}

func (h *PrivacyHandler) erase(c *gin.Context, ctx context.Context, userID string) {
	counts, err := h.pipeline.EraseSubjectData(ctx, userID)
	if err != nil {
		writeRetentionError(c, err, counts)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Personal data has been anonymized",
		"counts":  counts,
	})
}
