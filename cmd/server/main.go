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
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/api"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/coingecko"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/database"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/logging"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logrusLogger := logging.NewLogrus(cfg.LogLevel, cfg.Environment)
	logger := logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.LogExport,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    serviceName(cfg),
		ServiceVersion: telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry first so every component picks up the global tracer
	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    serviceName(cfg),
		ServiceVersion: telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	m := metrics.New()

	// Redis is only dialled for the redis cache backend
	var redisConn *database.RedisClient
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisConn, err = database.NewRedisConnection(cfg.Redis, logrusLogger)
		if err != nil {
			logrusLogger.WithError(err).Warn("Redis unavailable, falling back to the memory cache")
		} else {
			redisClient = redisConn.Client
		}
	}
	priceCache := services.NewPriceCache(cfg.Cache, redisClient, logrusLogger)

	client := coingecko.NewClient(cfg.CoinGecko, coingecko.WithObserver(m), coingecko.WithLogger(logrusLogger))
	breaker := services.NewCircuitBreaker("coingecko", services.CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
		ResetTimeout:     60 * time.Second,
	}, logrusLogger,
		services.WithFailurePredicate(services.IsUpstreamFailure),
		services.WithStateChangeHook(services.BreakerMetricsHook(m)),
	)

	market := services.NewMarketDataService(client, priceCache, breaker, m, cfg, logrusLogger)
	timeouts := services.NewTimeoutManager(services.TimeoutConfigFrom(cfg.Timeouts), logrusLogger)
	analytics := services.NewAnalyticsService(market, cfg, m, logrusLogger).WithTimeouts(timeouts)

	notifier, err := services.NewNotificationService(cfg.Telegram, logrusLogger)
	if err != nil {
		logrusLogger.WithError(err).Warn("Telegram notifier disabled")
		notifier = nil
	}
	var alertNotifier services.Notifier
	if notifier != nil {
		alertNotifier = notifier
	}
	alerts := services.NewAlertService(market, cfg.Analytics, alertNotifier, logrusLogger)

	var warming *services.CacheWarmingService
	if cfg.Warming.Enabled {
		warming = services.NewCacheWarmingService(market, cfg.Warming, m, logrusLogger).WithTimeouts(timeouts)
		go func() {
			if err := warming.WarmCache(ctx); err != nil {
				logrusLogger.WithError(err).Warn("Initial cache warming finished with errors")
			}
		}()
		if err := warming.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache warming: %w", err)
		}
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Dependencies{
		Config:    cfg,
		Market:    market,
		Analytics: analytics,
		Alerts:    alerts,
		Notifier:  notifier,
		Redis:     redisConn,
		Metrics:   m,
		Logger:    logger,
	})

	srv := newHTTPServer(cfg.Server, router)

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(serviceName(cfg), telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	reason := "signal received"
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			reason = "server error"
			logrusLogger.WithError(err).Error("HTTP server failed")
		}
	}
	logger.LogShutdown(serviceName(cfg), reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Error("Server forced to shutdown")
	}
	if warming != nil {
		warming.Stop(shutdownCtx)
	}
	redisConn.Close()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("Failed to shutdown telemetry")
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("Failed to shutdown log exporter")
	}

	logrusLogger.WithFields(logrus.Fields{"service": serviceName(cfg)}).Info("Server exited")
	return nil
}

func serviceName(cfg *config.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return telemetry.ServiceName
}

// newHTTPServer applies the configured timeouts, falling back to 10s reads and 30s writes.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	readTimeout := config.Duration(cfg.ReadTimeout)
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := config.Duration(cfg.WriteTimeout)
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
