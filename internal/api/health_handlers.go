package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 3 * time.Second

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	startTime time.Time
	db        Pinger
	mirrors   map[string]Pinger
	service   string
}

func NewHealthHandler(db Pinger, serviceName string) *HealthHandler {
	return &HealthHandler{
		startTime: time.Now(),
		db:        db,
		mirrors:   map[string]Pinger{},
		service:   serviceName,
	}
}

// WithMirror adds a best-effort store to the readiness report. A mirror
// that is down marks the service degraded but still ready, since
// ingestion only requires the primary database.
func (h *HealthHandler) WithMirror(name string, p Pinger) *HealthHandler {
	h.mirrors[name] = p
	return h
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
		"uptime":  time.Since(h.startTime).String(),
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "database_not_configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "database_unavailable",
			"error":  err.Error(),
		})
		return
	}

	status := "ready"
	mirrors := make(map[string]string, len(h.mirrors))
	names := make([]string, 0, len(h.mirrors))
	for name := range h.mirrors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.mirrors[name].Ping(ctx); err != nil {
			mirrors[name] = "unavailable: " + err.Error()
			status = "degraded"
			continue
		}
		mirrors[name] = "connected"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"database": "connected",
		"mirrors":  mirrors,
		"uptime":   time.Since(h.startTime).String(),
	})
}

// LivenessCheck handles GET /live
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "alive",
		"uptime":     time.Since(h.startTime).String(),
		"goroutines": runtime.NumGoroutine(),
	})
}
