package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

// MarketHandler serves the coin catalogue, coin info and raw price chart endpoints.
type MarketHandler struct {
	market *services.MarketDataService
	cfg    config.AnalyticsConfig
}

// CoinsResponse lists the selectable coins and lookback options.
type CoinsResponse struct {
	Coins       []config.CoinConfig `json:"coins"`
	AllowedDays []int               `json:"allowed_days"`
	DefaultDays int                 `json:"default_days"`
	VsCurrency  string              `json:"vs_currency"`
}

// CoinInfoResponse is the coin header of the dashboard.
type CoinInfoResponse struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	Symbol                   string    `json:"symbol"`
	VsCurrency               string    `json:"vs_currency"`
	CurrentPrice             float64   `json:"current_price"`
	MarketCap                float64   `json:"market_cap"`
	TotalVolume              float64   `json:"total_volume"`
	MarketCapRank            int       `json:"market_cap_rank"`
	PriceChangePercentage24h float64   `json:"price_change_percentage_24h"`
	PriceChangePercentage7d  float64   `json:"price_change_percentage_7d"`
	PriceChangePercentage30d float64   `json:"price_change_percentage_30d"`
	LastUpdated              time.Time `json:"last_updated"`
}

// ChartResponse is a raw or daily-resampled candle series.
type ChartResponse struct {
	CoinID  string            `json:"coin_id"`
	Days    int               `json:"days"`
	Candles []analysis.Candle `json:"candles"`
	Daily   bool              `json:"daily"`
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(market *services.MarketDataService, cfg config.AnalyticsConfig) *MarketHandler {
	return &MarketHandler{market: market, cfg: cfg}
}

// ListCoins returns the configured coin catalogue
// @Summary List coins
// @Tags market
// @Produce json
// @Router /api/v1/coins [get]
func (h *MarketHandler) ListCoins(c *gin.Context) {
	respondOK(c, CoinsResponse{
		Coins:       h.market.Coins(),
		AllowedDays: h.cfg.AllowedDays,
		DefaultDays: h.cfg.DefaultDays,
		VsCurrency:  h.market.VsCurrency(),
	})
}

// GetCoinInfo returns current price, market cap and 24h/7d/30d change
// @Summary Get coin info
// @Tags market
// @Param id path string true "Coin id"
// @Router /api/v1/coins/{id}/info [get]
func (h *MarketHandler) GetCoinInfo(c *gin.Context) {
	coin, err := h.market.Coin(coinParam(c, "id"))
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := h.market.Info(c.Request.Context(), coin.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	vs := h.market.VsCurrency()
	md := info.MarketData
	respondOK(c, CoinInfoResponse{
		ID:                       coin.ID,
		Name:                     coin.Name,
		Symbol:                   strings.ToUpper(coin.Symbol),
		VsCurrency:               vs,
		CurrentPrice:             md.CurrentPrice[vs],
		MarketCap:                md.MarketCap[vs],
		TotalVolume:              md.TotalVolume[vs],
		MarketCapRank:            md.MarketCapRank,
		PriceChangePercentage24h: md.PriceChangePercentage24h,
		PriceChangePercentage7d:  md.PriceChangePercentage7d,
		PriceChangePercentage30d: md.PriceChangePercentage30d,
		LastUpdated:              md.LastUpdated,
	})
}

// GetChart returns the price series, optionally resampled to daily candles
// @Summary Get price chart
// @Tags market
// @Param id path string true "Coin id"
// @Param days query int false "Lookback in days"
// @Param candles query string false "daily for daily OHLC candles"
// @Router /api/v1/coins/{id}/chart [get]
func (h *MarketHandler) GetChart(c *gin.Context) {
	days, err := queryInt(c, "days", h.cfg.DefaultDays)
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.cfg.IsAllowedDays(days) {
		respondError(c, analysis.NewValidationErrorf("days", "must be one of %v, got %d", h.cfg.AllowedDays, days))
		return
	}

	daily := false
	switch mode := strings.ToLower(c.Query("candles")); mode {
	case "", "raw":
	case "daily":
		daily = true
	default:
		respondError(c, analysis.NewValidationErrorf("candles", "must be raw or daily, got %q", mode))
		return
	}

	coinID := coinParam(c, "id")
	series, err := h.market.PriceSeries(c.Request.Context(), coinID, days)
	if err != nil {
		respondError(c, err)
		return
	}
	if daily {
		series = analysis.ResampleDaily(series)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": ChartResponse{
			CoinID:  coinID,
			Days:    days,
			Candles: series.Candles(),
			Daily:   daily,
		},
	})
}
