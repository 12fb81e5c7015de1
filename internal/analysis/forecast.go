package analysis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Model names accepted by ForecastConfig.Model.
const (
	ModelARIMA = "arima"
	ModelAR1   = "ar1"
)

// ForecastResult holds a point forecast and its confidence interval. All three sequences have
// length Horizon and are aligned positionally.
type ForecastResult struct {
	Model      string    `json:"model"`
	Horizon    int       `json:"horizon"`
	Confidence float64   `json:"confidence"`
	Predicted  []float64 `json:"predicted"`
	LowerBound []float64 `json:"lower_bound"`
	UpperBound []float64 `json:"upper_bound"`
}

// ARIMAOrder is the (p, d, q) order of an ARIMA model.
type ARIMAOrder struct {
	P int `json:"p" mapstructure:"p"`
	D int `json:"d" mapstructure:"d"`
	Q int `json:"q" mapstructure:"q"`
}

// String formats the order as ARIMA(p,d,q).
func (o ARIMAOrder) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// ForecastConfig selects and tunes the forecast model.
type ForecastConfig struct {
	Model      string     `json:"model" mapstructure:"model"`
	Order      ARIMAOrder `json:"order" mapstructure:"order"`
	Confidence float64    `json:"confidence" mapstructure:"confidence"`
	// Drift adds a constant to the differenced series when D > 0.
	Drift bool `json:"drift" mapstructure:"drift"`
	// MaxIterations bounds the optimizer; hitting the bound is reported as non-convergence.
	MaxIterations int `json:"max_iterations" mapstructure:"max_iterations"`
}

// DefaultForecastConfig returns ARIMA(2,1,2) with a 95% interval.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Model:         ModelARIMA,
		Order:         ARIMAOrder{P: 2, D: 1, Q: 2},
		Confidence:    0.95,
		MaxIterations: 2000,
	}
}

// Validate checks the model name, order and confidence level.
func (c ForecastConfig) Validate() error {
	switch strings.ToLower(c.Model) {
	case ModelARIMA, ModelAR1:
	default:
		return NewValidationErrorf("model", "unknown forecast model %q", c.Model)
	}
	if c.Order.P < 0 || c.Order.D < 0 || c.Order.Q < 0 {
		return NewValidationErrorf("order", "orders must be non-negative, got %s", c.Order)
	}
	if c.Order.D > 2 {
		return NewValidationErrorf("order", "differencing above 2 is not supported, got %d", c.Order.D)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return NewValidationErrorf("confidence", "must be in (0, 1), got %g", c.Confidence)
	}
	if c.MaxIterations <= 0 {
		return NewValidationErrorf("max_iterations", "must be >= 1, got %d", c.MaxIterations)
	}
	return nil
}

// MinObservations is the shortest series the configured model accepts.
func (c ForecastConfig) MinObservations() int {
	if strings.ToLower(c.Model) == ModelAR1 {
		return ar1MinObservations
	}
	return c.Order.D + max(10, 2*(c.Order.P+c.Order.Q)+1)
}

// forecaster is a fitted model able to extrapolate.
type forecaster interface {
	forecast(horizon int, z float64) (predicted, lower, upper []float64)
}

// Forecast fits the configured model to the closing prices and predicts horizon steps ahead.
// Fitting is stateless: nothing is cached between calls.
func Forecast(closes []float64, horizon int, cfg ForecastConfig) (ForecastResult, error) {
	if horizon <= 0 {
		return ForecastResult{}, NewValidationErrorf("horizon", "must be >= 1, got %d", horizon)
	}
	if err := cfg.Validate(); err != nil {
		return ForecastResult{}, err
	}
	if !allFinite(closes) {
		return ForecastResult{}, NewValidationErrorf("closes", "series contains non-finite values")
	}
	if need := cfg.MinObservations(); len(closes) < need {
		return ForecastResult{}, insufficientDataf("forecast needs at least %d observations, got %d", need, len(closes))
	}

	var (
		fitted forecaster
		name   string
		err    error
	)
	switch strings.ToLower(cfg.Model) {
	case ModelAR1:
		name = "AR(1)"
		fitted, err = fitAR1Model(closes)
	default:
		name = cfg.Order.String()
		fitted, err = fitARIMA(closes, cfg)
	}
	if err != nil {
		return ForecastResult{}, err
	}

	z := distuv.UnitNormal.Quantile(1 - (1-cfg.Confidence)/2)
	predicted, lower, upper := fitted.forecast(horizon, z)
	if !allFinite(predicted) || !allFinite(lower) || !allFinite(upper) {
		return ForecastResult{}, nonConvergencef("%s produced non-finite forecasts", name)
	}

	return ForecastResult{
		Model:      name,
		Horizon:    horizon,
		Confidence: cfg.Confidence,
		Predicted:  predicted,
		LowerBound: lower,
		UpperBound: upper,
	}, nil
}
