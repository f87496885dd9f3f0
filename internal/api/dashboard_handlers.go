package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/service"
)

type DashboardHandler struct {
	dashboard *service.DashboardService
}

func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Summary handles GET /admin/dashboard/summary?window=24h
func (h *DashboardHandler) Summary(c *gin.Context) {
	var window time.Duration
	if v := c.Query("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			middleware.HandleAppError(c, middleware.NewBadRequestError("window must be a positive duration such as 24h"))
			return
		}
		window = d
	}

	summary, err := h.dashboard.Summary(c.Request.Context(), window)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Throttle handles GET /admin/dashboard/throttle
func (h *DashboardHandler) Throttle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": h.dashboard.Throttle(),
	})
}
