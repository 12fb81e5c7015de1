package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/middleware"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/services"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeInvalidParameter = "invalid_parameter"
	CodeInsufficientData = "insufficient_data"
	CodeNonConvergence   = "non_convergence"
	CodeUnknownCoin      = "unknown_coin"
	CodeUpstream         = "upstream_unavailable"
	CodeTimeout          = "timeout"
	CodeInternal         = "internal_error"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrInvalidParameter):
		return http.StatusBadRequest, CodeInvalidParameter
	case errors.Is(err, services.ErrUnknownCoin):
		return http.StatusNotFound, CodeUnknownCoin
	case errors.Is(err, analysis.ErrNonConvergence):
		return http.StatusUnprocessableEntity, CodeNonConvergence
	case errors.Is(err, analysis.ErrInsufficientData):
		return http.StatusUnprocessableEntity, CodeInsufficientData
	case errors.Is(err, services.ErrUpstreamUnavailable):
		return http.StatusBadGateway, CodeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes err as an ErrorResponse and records it on the request span.
func respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Success: false, Error: err.Error(), Code: code}

	var verr *analysis.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, code)
	}
	middleware.AddSpanAttribute(c, "error.code", code)
	c.JSON(status, resp)
}

// respondOK writes the success envelope.
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	v, ok, err := queryOptionalInt(c, name)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// queryOptionalInt parses an optional integer query parameter. The second result reports presence.
func queryOptionalInt(c *gin.Context, name string) (int, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, analysis.NewValidationErrorf(name, "must be an integer, got %q", raw)
	}
	return v, true, nil
}

// queryFloat parses an optional float query parameter. The second result reports presence.
func queryFloat(c *gin.Context, name string) (float64, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, analysis.NewValidationErrorf(name, "must be a number, got %q", raw)
	}
	return v, true, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, analysis.NewValidationErrorf(name, "must be a boolean, got %q", raw)
	}
	return v, nil
}

// queryIntList parses a comma separated list such as "7,30". ok is false when absent.
func queryIntList(c *gin.Context, name string) ([]int, bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, false, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, false, analysis.NewValidationErrorf(name, "must be a comma separated list of integers, got %q", raw)
		}
		out = append(out, v)
	}
	return out, true, nil
}

// coinParam returns the normalised :id path parameter.
func coinParam(c *gin.Context, name string) string {
	return coinParamValue(c.Param(name))
}

func coinParamValue(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
