package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

var startTime = time.Now()

// Pinger is satisfied by the Redis connection.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports dependency health.
type HealthHandler struct {
	redis    Pinger
	market   *services.MarketDataService
	notifier interface{ Enabled() bool }
	version  string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	System    *SystemStats      `json:"system,omitempty"`
}

// SystemStats is host memory usage.
type SystemStats struct {
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	MemoryUsedMB      uint64  `json:"memory_used_mb"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// NewHealthHandler creates a health handler. redis and notifier may be nil.
func NewHealthHandler(redis Pinger, market *services.MarketDataService, notifier interface{ Enabled() bool }, version string) *HealthHandler {
	return &HealthHandler{
		redis:    redis,
		market:   market,
		notifier: notifier,
		version:  version,
	}
}

// HealthCheck reports the cache backend, Redis, the upstream breaker and the notifier. A
// failing Redis makes the service unhealthy; an open breaker only degrades it since cached
// series are still served.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	deps := make(map[string]string)
	status := "healthy"

	deps["cache"] = h.market.CacheBackend()

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := h.redis.HealthCheck(ctx); err != nil {
			deps["redis"] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			deps["redis"] = "healthy"
		}
		cancel()
	}

	breaker := h.market.BreakerStats()
	deps["coingecko"] = "circuit " + breaker.State
	if breaker.State != "closed" && status == "healthy" {
		status = "degraded"
	}

	if h.notifier != nil && h.notifier.Enabled() {
		deps["telegram"] = "enabled"
	} else {
		deps["telegram"] = "disabled"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  deps,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
		System:    systemStats(c.Request.Context()),
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// LivenessCheck for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func systemStats(ctx context.Context) *SystemStats {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil
	}
	return &SystemStats{
		MemoryTotalMB:     vm.Total / 1024 / 1024,
		MemoryUsedMB:      vm.Used / 1024 / 1024,
		MemoryUsedPercent: vm.UsedPercent,
	}
}
