package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

// AlertHandler evaluates price alerts.
type AlertHandler struct {
	alerts *services.AlertService
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(alerts *services.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// CheckAlert evaluates a target price against the latest close and reports RSI warnings
// @Summary Check a price alert
// @Tags alerts
// @Accept json
// @Produce json
// @Param request body services.AlertRequest true "Alert"
// @Router /api/v1/alerts/check [post]
func (h *AlertHandler) CheckAlert(c *gin.Context) {
	var req services.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    CodeInvalidParameter,
		})
		return
	}
	req.CoinID = coinParamValue(req.CoinID)

	result, err := h.alerts.Check(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, result)
}
