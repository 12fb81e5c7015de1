package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/middleware"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

const csvContentType = "text/csv; charset=utf-8"

// AnalysisHandler serves the indicator, returns, risk, forecast and export endpoints.
type AnalysisHandler struct {
	analytics      *services.AnalyticsService
	currencySymbol string
}

// NewAnalysisHandler creates a new analysis handler. vsCurrency selects the currency symbol used
// in the summary CSV.
func NewAnalysisHandler(analytics *services.AnalyticsService, vsCurrency string) *AnalysisHandler {
	return &AnalysisHandler{
		analytics:      analytics,
		currencySymbol: services.CurrencySymbol(vsCurrency),
	}
}

func (h *AnalysisHandler) days(c *gin.Context) (int, error) {
	days, err := queryInt(c, "days", h.analytics.DefaultDays())
	if err != nil {
		return 0, err
	}
	if err := h.analytics.ValidateDays(days); err != nil {
		return 0, err
	}
	middleware.AddSpanAttribute(c, "analytics.days", days)
	return days, nil
}

// indicatorParams overlays query parameters on the configured defaults.
func (h *AnalysisHandler) indicatorParams(c *gin.Context) (services.IndicatorParams, error) {
	params := h.analytics.DefaultIndicatorParams()

	if windows, ok, err := queryIntList(c, "ma"); err != nil {
		return params, err
	} else if ok {
		params.MovingAverages = params.MovingAverages[:0]
		for _, w := range windows {
			params.MovingAverages = append(params.MovingAverages, analysis.MovingAverageConfig{Window: w})
		}
	}
	if windows, ok, err := queryIntList(c, "ema"); err != nil {
		return params, err
	} else if ok {
		for _, w := range windows {
			params.EMAs = append(params.EMAs, analysis.EMAConfig{Window: w})
		}
	}

	var err error
	if params.Bollinger.Window, err = queryInt(c, "bb_window", params.Bollinger.Window); err != nil {
		return params, err
	}
	if k, ok, err := queryFloat(c, "bb_k"); err != nil {
		return params, err
	} else if ok {
		params.Bollinger.K = k
	}
	if params.RSI.Window, err = queryInt(c, "rsi_window", params.RSI.Window); err != nil {
		return params, err
	}
	if params.MACD.Fast, err = queryInt(c, "macd_fast", params.MACD.Fast); err != nil {
		return params, err
	}
	if params.MACD.Slow, err = queryInt(c, "macd_slow", params.MACD.Slow); err != nil {
		return params, err
	}
	if params.MACD.Signal, err = queryInt(c, "macd_signal", params.MACD.Signal); err != nil {
		return params, err
	}
	return params, nil
}

// GetIndicators returns moving averages, Bollinger bands, RSI and MACD for a coin
// @Summary Get technical indicators
// @Tags analysis
// @Param id path string true "Coin id"
// @Param days query int false "Lookback in days"
// @Param ma query string false "Comma separated moving average windows"
// @Produce json
// @Router /api/v1/coins/{id}/indicators [get]
func (h *AnalysisHandler) GetIndicators(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}
	params, err := h.indicatorParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analytics.Indicators(c.Request.Context(), coinParam(c, "id"), days, params)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GetReturns returns daily (or log) returns, rolling volatility and return statistics
// @Summary Get returns and volatility
// @Tags analysis
// @Param id path string true "Coin id"
// @Param vol_window query int false "Rolling volatility window"
// @Param log query bool false "Use log returns"
// @Router /api/v1/coins/{id}/returns [get]
func (h *AnalysisHandler) GetReturns(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var window *int
	if v, ok, err := queryOptionalInt(c, "vol_window"); err != nil {
		respondError(c, err)
		return
	} else if ok {
		window = &v
	}
	logReturns, err := queryBool(c, "log")
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analytics.Returns(c.Request.Context(), coinParam(c, "id"), days, services.ReturnsParams{
		VolatilityWindow: window,
		Log:              logReturns,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GetRisk returns the Sharpe ratio, maximum drawdown and annualized volatility
// @Summary Get risk summary
// @Tags analysis
// @Param id path string true "Coin id"
// @Param risk_free_rate query number false "Annual risk-free rate"
// @Router /api/v1/coins/{id}/risk [get]
func (h *AnalysisHandler) GetRisk(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var rf *float64
	if v, ok, err := queryFloat(c, "risk_free_rate"); err != nil {
		respondError(c, err)
		return
	} else if ok {
		rf = &v
	}

	report, err := h.analytics.Risk(c.Request.Context(), coinParam(c, "id"), days, rf)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GetForecast returns a closing price forecast with confidence bounds
// @Summary Get price forecast
// @Tags analysis
// @Param id path string true "Coin id"
// @Param horizon query int false "Days to forecast"
// @Param model query string false "arima or ar1"
// @Router /api/v1/coins/{id}/forecast [get]
func (h *AnalysisHandler) GetForecast(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}
	horizon, err := queryInt(c, "horizon", h.analytics.DefaultHorizon())
	if err != nil {
		respondError(c, err)
		return
	}
	if horizon <= 0 {
		respondError(c, analysis.NewValidationErrorf("horizon", "must be >= 1, got %d", horizon))
		return
	}

	report, err := h.analytics.Forecast(c.Request.Context(), coinParam(c, "id"), days, services.ForecastParams{
		Horizon: horizon,
		Model:   c.Query("model"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GetSummary returns the dashboard metric row
// @Summary Get summary metrics
// @Tags analysis
// @Param id path string true "Coin id"
// @Router /api/v1/coins/{id}/summary [get]
func (h *AnalysisHandler) GetSummary(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analytics.Summary(c.Request.Context(), coinParam(c, "id"), days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// GetComparison overlays a second coin normalized to the first coin's starting price
// @Summary Compare two coins
// @Tags analysis
// @Param id path string true "Base coin id"
// @Param other path string true "Compared coin id"
// @Router /api/v1/coins/{id}/compare/{other} [get]
func (h *AnalysisHandler) GetComparison(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analytics.Compare(c.Request.Context(), coinParam(c, "id"), coinParam(c, "other"), days)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

// ExportDataset streams the full time series with every derived column as CSV
// @Summary Export time series CSV
// @Tags export
// @Produce text/csv
// @Router /api/v1/coins/{id}/export.csv [get]
func (h *AnalysisHandler) ExportDataset(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}

	ds, err := h.analytics.Dataset(c.Request.Context(), coinParam(c, "id"), days)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := ds.WriteCSV(&buf); err != nil {
		respondError(c, fmt.Errorf("failed to encode dataset: %w", err))
		return
	}
	attachment(c, ds.FileName())
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

// ExportSummary returns the summary metrics as a two column CSV
// @Summary Export summary CSV
// @Tags export
// @Produce text/csv
// @Router /api/v1/coins/{id}/summary.csv [get]
func (h *AnalysisHandler) ExportSummary(c *gin.Context) {
	days, err := h.days(c)
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := h.analytics.Summary(c.Request.Context(), coinParam(c, "id"), days)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := services.WriteSummaryCSV(&buf, report, h.currencySymbol); err != nil {
		respondError(c, fmt.Errorf("failed to encode summary: %w", err))
		return
	}
	attachment(c, services.SummaryFileName(report))
	c.Data(http.StatusOK, csvContentType, buf.Bytes())
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
