package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/internal/repository"
	"github.com/pennywise/observability/internal/service"
)

// FeedbackAdminHandler serves the operator feedback queue
type FeedbackAdminHandler struct {
	feedback *service.FeedbackService
}

func NewFeedbackAdminHandler(feedback *service.FeedbackService) *FeedbackAdminHandler {
	return &FeedbackAdminHandler{feedback: feedback}
}

// List handles GET /admin/feedback?resolved=&type=&limit=&offset=
func (h *FeedbackAdminHandler) List(c *gin.Context) {
	var filter repository.FeedbackFilter

	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError("resolved must be true or false"))
			return
		}
		filter.Resolved = &resolved
	}
	if v := c.Query("type"); v != "" {
		t, err := models.ParseFeedbackType(v)
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
			return
		}
		filter.FeedbackType = t
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := h.feedback.List(c.Request.Context(), filter)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"feedback": records,
		"count":    len(records),
	})
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

// Resolve handles POST /admin/feedback/:id/resolve
func (h *FeedbackAdminHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError(err.Error()))
			return
		}
	}

	record, err := h.feedback.Resolve(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// Reopen handles POST /admin/feedback/:id/reopen
func (h *FeedbackAdminHandler) Reopen(c *gin.Context) {
	record, err := h.feedback.Reopen(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *FeedbackAdminHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrFeedbackNotFound) {
		middleware.HandleAppError(c, middleware.NewNotFoundError("Feedback"))
		return
	}
	middleware.HandleAppError(c, middleware.NewInternalError(err))
}
