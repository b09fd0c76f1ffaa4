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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/irfndi/cashflow-ai-go/internal/api"
	"github.com/irfndi/cashflow-ai-go/internal/cache"
	"github.com/irfndi/cashflow-ai-go/internal/config"
	"github.com/irfndi/cashflow-ai-go/internal/database"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
	"github.com/irfndi/cashflow-ai-go/internal/metrics"
	"github.com/irfndi/cashflow-ai-go/internal/services"
	"github.com/irfndi/cashflow-ai-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, otlpLogger := logging.NewStandardOTLPLogger(otlpLogConfig(cfg))
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel)

	ctx := context.Background()
	provider, err := telemetry.InitTelemetryWithProvider(ctx, telemetryConfig(cfg), logger.Logger())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	retrier := services.NewRetrier(logrusLogger, services.DefaultRetryPolicies())

	var db *database.PostgresDB
	if err := retrier.Do(ctx, "database_connect", func(context.Context) error {
		db, err = database.NewPostgresConnection(cfg.Database)
		return err
	}); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	pool := database.NewTracedPool(db.Pool, logger)

	var redis *database.RedisClient
	if err := retrier.Do(ctx, "redis_connect", func(context.Context) error {
		redis, err = database.NewRedisConnection(cfg.Redis)
		return err
	}); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redis.Close()

	registry := newRegistry()
	recorder := metrics.NewRecorder(registry)

	forecastService, err := services.NewForecastService(
		services.NewForecastServiceConfig(cfg.Forecasting),
		services.ForecastServiceDeps{
			Series:  database.NewTransactionRepository(pool),
			Store:   database.NewForecastRepository(pool),
			Cache:   cache.NewRedisForecastCache(redis.Client, config.Duration(cfg.Cache.ForecastTTL, time.Hour), logrusLogger, logger, recorder),
			Metrics: recorder,
			Logger:  logrusLogger,
			Events:  logger,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create forecast service: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, api.RouterDeps{
		Forecasts:      forecastService,
		Database:       db,
		Redis:          redis,
		Generations:    forecastService,
		Metrics:        recorder,
		Gatherer:       registry,
		Logger:         logger,
		ServiceName:    cfg.Telemetry.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultDays:    cfg.Forecasting.DefaultHorizonDays,
	})

	// Generation runs in the background, so requests themselves stay short.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(telemetry.ServiceName, telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reason := "signal received"
	select {
	case <-quit:
	case err := <-serverErr:
		logrusLogger.WithError(err).Error("Server failed")
		reason = "server error"
	}
	logger.LogShutdown(telemetry.ServiceName, reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := forecastService.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("Cancelled in-flight forecast generations")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("Failed to shutdown telemetry")
	}
	if otlpLogger != nil {
		if err := otlpLogger.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown OTLP logger: %v\n", err)
		}
	}

	logrusLogger.Info("Server exited gracefully")
	if reason == "server error" {
		return errors.New("server stopped unexpectedly")
	}
	return nil
}

func telemetryConfig(cfg *config.Config) *telemetry.TelemetryConfig {
	tc := telemetry.DefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Exporter != "" {
		tc.Exporter = cfg.Telemetry.Exporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	tc.Environment = cfg.Environment
	tc.SampleRate = cfg.Telemetry.SampleRate
	return tc
}

func otlpLogConfig(cfg *config.Config) logging.OTLPConfig {
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = telemetry.ServiceName
	}
	return logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.OTLPLogsEnabled,
		Endpoint:       telemetry.OTLPLogEndpoint(cfg.Telemetry.OTLPEndpoint),
		ServiceName:    serviceName,
		ServiceVersion: telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	}
}

// newRegistry returns a registry carrying the Go runtime and process
// collectors alongside the application metrics.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}
