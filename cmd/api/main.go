package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pennywise/observability/internal/alert"
	"github.com/pennywise/observability/internal/api"
	"github.com/pennywise/observability/internal/audit"
	"github.com/pennywise/observability/internal/clock"
	"github.com/pennywise/observability/internal/events"
	"github.com/pennywise/observability/internal/ingest"
	"github.com/pennywise/observability/internal/middleware"
	"github.com/pennywise/observability/internal/monitoring"
	"github.com/pennywise/observability/internal/repository"
	"github.com/pennywise/observability/internal/retention"
	"github.com/pennywise/observability/internal/service"
	"github.com/pennywise/observability/internal/storage"
	"github.com/pennywise/observability/pkg/config"
	"github.com/pennywise/observability/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.NewLogger(logger.ParseLevel(cfg.LogLevel), os.Stdout, cfg.LogJSON)
	logger.SetDefault(appLogger)

	logger.Info("Starting application", map[string]interface{}{
		"app":          cfg.AppName,
		"env":          cfg.Env,
		"debug":        cfg.Debug,
		"port":         cfg.Port,
		"trusted_mode": cfg.TrustedMode,
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", err, nil)
	}

	// Initialize database
	if err := repository.InitDB(cfg); err != nil {
		logger.Fatal("Failed to initialize database", err, nil)
	}
	logger.Info("Database initialized", nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	db := repository.GetDB()
	eventRepo := repository.NewEventRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	bus := events.NewEventBus()

	// Event storage: PostgreSQL, plus the InfluxDB metric mirror when configured
	var eventStorage events.EventStorage = events.NewDatabaseEventStorage(db)
	var metricMeans service.MetricMeans
	health := api.NewHealthHandler(repository.GetDBProvider(), cfg.AppName)
	if cfg.InfluxDBURL != "" && cfg.InfluxDBToken != "" {
		influxClient, err := storage.NewInfluxDBClient(storage.InfluxDBConfig{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		})
		if err != nil {
			logger.Warn("Failed to initialize InfluxDB, falling back to database-only storage", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer influxClient.Close()
			eventStorage = events.NewMultiEventStorage(eventStorage, events.NewInfluxDBEventStorage(influxClient))
			metricMeans = influxClient
			health.WithMirror("influxdb", influxClient)
			logger.Info("Event storage initialized with InfluxDB mirror", map[string]interface{}{
				"influxdb_url": cfg.InfluxDBURL,
				"org":          cfg.InfluxDBOrg,
				"bucket":       cfg.InfluxDBBucket,
			})
		}
	} else {
		logger.Info("Event storage initialized with database only", nil)
	}

	// Alerting
	throttle := alert.NewThrottle(clk, alert.Policy{Cap: cfg.ThrottleDefaultCap, Window: cfg.ThrottleDefaultWindow}, throttleOverrides(cfg))
	var notifier alert.Notifier = alert.NopNotifier{}
	if cfg.AlertWebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.AlertWebhookURL, cfg.AppName)
	} else {
		logger.Warn("ALERT_WEBHOOK_URL not configured, alerts are only counted", nil)
	}
	dispatcher := alert.NewDispatcher(notifier)
	defer dispatcher.Wait()

	// Services
	gateway := ingest.NewGateway(ingest.Options{
		Storage:     eventStorage,
		Throttle:    throttle,
		Dispatcher:  dispatcher,
		Bus:         bus,
		Clock:       clk,
		APIKey:      cfg.MonitoringAPIKey,
		TrustedMode: cfg.TrustedMode,
	})
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.AppName, clk)
	feedbackService := service.NewFeedbackService(feedbackRepo, throttle, dispatcher, bus, clk)
	dashboardService := service.NewDashboardService(eventRepo, feedbackRepo, throttle, metricMeans, clk)

	// Retention
	pipeline := retention.New(retention.Options{
		Events:   eventRepo,
		Feedback: feedbackRepo,
		Policy: retention.Policy{
			AnonymizeAfter: cfg.AnonymizeAfter(),
			PurgeAfter:     cfg.PurgeAfter(),
			BatchSize:      cfg.RetentionBatchSize,
		},
		Clock: clk,
		Audit: audit.NewAuditLogger(1000),
		Bus:   bus,
	})
	retentionWorker := retention.NewWorker(pipeline, cfg.RetentionInterval)
	retentionWorker.Start(ctx)
	defer retentionWorker.Stop()

	// Metrics
	exporter := monitoring.NewPrometheusExporter(throttle)
	exporter.StartMetricsCollector(ctx, 15*time.Second)

	// Live dashboard stream
	dashboardWs := api.NewDashboardWebSocket(throttle)
	dashboardWs.Attach(bus)
	go dashboardWs.Run()
	defer dashboardWs.Shutdown()
	logger.Info("Dashboard WebSocket started", nil)

	ingestLimiter := middleware.NewRateLimiter(cfg.IngestRatePerSecond, cfg.IngestBurst)
	ingestLimiter.StartCleanup(ctx)

	// Setup router
	router := api.SetupRouter(api.Handlers{
		Monitoring: api.NewMonitoringHandler(gateway, feedbackService),
		Feedback:   api.NewFeedbackAdminHandler(feedbackService),
		Dashboard:  api.NewDashboardHandler(dashboardService),
		Stream:     dashboardWs,
		Retention:  api.NewRetentionHandler(pipeline, retentionWorker),
		Privacy:    api.NewPrivacyHandler(pipeline),
		Health:     health,
		Prometheus: api.NewPrometheusHandler(),
	}, tokens, ingestLimiter, cfg)

	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"address":      addr,
			"health_check": fmt.Sprintf("http://localhost%s/health", addr),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err, nil)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down gracefully...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", err, nil)
	}
	bus.Wait()
	logger.Info("Shutdown complete", nil)
}

func throttleOverrides(cfg *config.Config) map[string]alert.Policy {
	overrides := make(map[string]alert.Policy, len(cfg.ThrottlePolicies))
	for category, p := range cfg.ThrottlePolicies {
		overrides[category] = alert.Policy{Cap: p.Cap, Window: p.Window}
	}
	return overrides
}
