package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/cache"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

// CacheHandler handles price cache monitoring and invalidation endpoints
type CacheHandler struct {
	market *services.MarketDataService
}

// CacheStatsResponse reports cache counters and the upstream breaker state.
type CacheStatsResponse struct {
	Backend string                       `json:"backend"`
	Stats   cache.Stats                  `json:"stats"`
	HitRate float64                      `json:"hit_rate"`
	Breaker services.CircuitBreakerStats `json:"breaker"`
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(market *services.MarketDataService) *CacheHandler {
	return &CacheHandler{market: market}
}

// GetCacheStats returns cache hit/miss statistics
// @Summary Get cache statistics
// @Tags cache
// @Produce json
// @Router /api/v1/cache/stats [get]
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	stats := h.market.CacheStats()
	respondOK(c, CacheStatsResponse{
		Backend: h.market.CacheBackend(),
		Stats:   stats,
		HitRate: stats.HitRate(),
		Breaker: h.market.BreakerStats(),
	})
}

// InvalidateCache drops every cached price series so the next request refetches
// @Summary Clear the price cache
// @Tags cache
// @Produce json
// @Router /api/v1/cache [delete]
func (h *CacheHandler) InvalidateCache(c *gin.Context) {
	removed, err := h.market.InvalidateCache(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"removed": removed,
		"message": "Price cache cleared",
	})
}
