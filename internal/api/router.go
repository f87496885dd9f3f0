package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/models"
	"github.com/pennywise/observability/pkg/config"
)

// Router dependencies. Nil handlers leave their route group out.
type Handlers struct {
	Monitoring *MonitoringHandler
	Feedback   *FeedbackAdminHandler
	Dashboard  *DashboardHandler
	Stream     *DashboardWebSocket
	Retention  *RetentionHandler
	Privacy    *PrivacyHandler
	Health     *HealthHandler
	Prometheus *PrometheusHandler
}

// Ingestion endpoints by event type
var ingestRoutes = map[models.EventType]string{
	models.EventTypeUIError:           "/ui-error",
	models.EventTypePerformanceMetric: "/performance-metric",
	models.EventTypeUIEvent:           "/ui-event",
	models.EventTypePerformanceIssue:  "/performance-issue",
}

func SetupRouter(h Handlers, tokens middleware.TokenValidator, ingestLimiter *middleware.RateLimiter, cfg *config.Config) *gin.Engine {
	// Set Gin mode
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with custom middleware
	router := gin.New()

	// Global middleware (in order)
	router.Use(gin.Recovery())                 // Panic recovery
	router.Use(middleware.ErrorHandler())      // Error handling
	router.Use(middleware.SessionAuth(tokens)) // Session from bearer token or cookie
	router.Use(middleware.RequestLogger())     // Request logging

	// CORS middleware (for development)
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Session-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoints (no auth required)
	if h.Health != nil {
		router.GET("/health", h.Health.HealthCheck)
		router.HEAD("/health", h.Health.HealthCheck)
		router.GET("/ready", h.Health.ReadinessCheck)
		router.GET("/live", h.Health.LivenessCheck)
	}

	// Prometheus metrics endpoint (no auth required for scraping)
	if h.Prometheus != nil {
		router.GET("/prometheus", h.Prometheus.MetricsEndpoint)
	}

	// Client ingestion: session, API key or trusted mode, checked by the gateway
	if h.Monitoring != nil {
		monitoring := router.Group("/monitoring")
		if ingestLimiter != nil {
			monitoring.Use(middleware.RateLimitMiddleware(ingestLimiter))
		}
		for eventType, path := range ingestRoutes {
			monitoring.POST(path, h.Monitoring.Ingest(eventType))
		}
		monitoring.POST("/feedback", h.Monitoring.SubmitFeedback)
	}

	// Subject self-service
	if h.Privacy != nil {
		privacy := router.Group("/privacy")
		privacy.Use(middleware.RequireSession())
		{
			privacy.GET("/export", h.Privacy.ExportOwn)
			privacy.POST("/erase", h.Privacy.EraseOwn)
		}
	}

	// Retention operations (admin only)
	if h.Retention != nil {
		retention := router.Group("/retention")
		retention.Use(middleware.RequireAdmin())
		{
			retention.GET("/audit", h.Retention.Audit)
			retention.GET("/history", h.Retention.History)
			retention.GET("/policy", h.Retention.Policy)
			retention.POST("/anonymize", h.Retention.Anonymize)
			retention.POST("/purge", h.Retention.Purge)
		}
	}

	admin := router.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		if h.Dashboard != nil {
			admin.GET("/dashboard/summary", h.Dashboard.Summary)
			admin.GET("/dashboard/throttle", h.Dashboard.Throttle)
		}
		if h.Stream != nil {
			admin.GET("/dashboard/stream", h.Stream.HandleConnection)
		}
		if h.Feedback != nil {
			admin.GET("/feedback", h.Feedback.List)
			admin.POST("/feedback/:id/resolve", h.Feedback.Resolve)
			admin.POST("/feedback/:id/reopen", h.Feedback.Reopen)
		}
		if h.Privacy != nil {
			admin.GET("/privacy/:user_id/export", h.Privacy.ExportSubject)
			admin.POST("/privacy/:user_id/erase", h.Privacy.EraseSubject)
		}
	}

	return router
}
