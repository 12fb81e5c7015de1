package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/api/handlers"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/database"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/logging"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/middleware"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/telemetry"
)

// Dependencies are the services the routes are served from. Redis, Notifier, Metrics and
// Logger are optional.
type Dependencies struct {
	Config    *config.Config
	Market    *services.MarketDataService
	Analytics *services.AnalyticsService
	Alerts    *services.AlertService
	Notifier  *services.NotificationService
	Redis     *database.RedisClient
	Metrics   *metrics.Metrics
	Logger    *logging.StandardLogger
}

// SetupRoutes installs the middleware chain and every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	serviceName := deps.Config.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = telemetry.ServiceName
	}

	router.Use(
		middleware.TelemetryMiddleware(serviceName),
		middleware.RequestID(),
		middleware.RequestLogger(deps.Logger, deps.Metrics),
		middleware.CORS(deps.Config.Server.AllowedOrigins),
	)

	var redis handlers.Pinger
	if deps.Redis != nil {
		redis = deps.Redis
	}
	healthHandler := handlers.NewHealthHandler(redis, deps.Market, deps.Notifier, telemetry.ServiceVersion)
	marketHandler := handlers.NewMarketHandler(deps.Market, deps.Config.Analytics)
	analysisHandler := handlers.NewAnalysisHandler(deps.Analytics, deps.Market.VsCurrency())
	alertHandler := handlers.NewAlertHandler(deps.Alerts)
	cacheHandler := handlers.NewCacheHandler(deps.Market)

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		coins := v1.Group("/coins")
		{
			coins.GET("", marketHandler.ListCoins)
			coins.GET("/:id/info", marketHandler.GetCoinInfo)
			coins.GET("/:id/chart", marketHandler.GetChart)

			coins.GET("/:id/indicators", analysisHandler.GetIndicators)
			coins.GET("/:id/returns", analysisHandler.GetReturns)
			coins.GET("/:id/risk", analysisHandler.GetRisk)
			coins.GET("/:id/forecast", analysisHandler.GetForecast)
			coins.GET("/:id/summary", analysisHandler.GetSummary)
			coins.GET("/:id/compare/:other", analysisHandler.GetComparison)

			coins.GET("/:id/export.csv", analysisHandler.ExportDataset)
			coins.GET("/:id/summary.csv", analysisHandler.ExportSummary)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.POST("/check", alertHandler.CheckAlert)
		}

		cache := v1.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.GetCacheStats)
			cache.DELETE("", cacheHandler.InvalidateCache)
		}
	}
}
