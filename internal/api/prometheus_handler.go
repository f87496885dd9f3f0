package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler handles Prometheus metrics endpoint
type PrometheusHandler struct {
	handler http.Handler
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler() *PrometheusHandler {
	return &PrometheusHandler{handler: promhttp.Handler()}
}

// MetricsEndpoint serves Prometheus metrics
// GET /prometheus
func (h *PrometheusHandler) MetricsEndpoint(c *gin.Context) {
	h.handler.ServeHTTP(c.Writer, c.Request)
}
