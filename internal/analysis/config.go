package analysis

// MovingAverageConfig configures a simple moving average of the closing price.
type MovingAverageConfig struct {
	Window int `json:"window" mapstructure:"window"`
}

// EMAConfig configures an exponential moving average of the closing price.
type EMAConfig struct {
	Window int `json:"window" mapstructure:"window"`
}

// BollingerConfig configures Bollinger Bands.
type BollingerConfig struct {
	Window int     `json:"window" mapstructure:"window"`
	K      float64 `json:"k" mapstructure:"k"`
}

// RSIConfig configures the Relative Strength Index.
type RSIConfig struct {
	Window int `json:"window" mapstructure:"window"`
}

// MACDConfig configures Moving Average Convergence Divergence.
type MACDConfig struct {
	Fast   int `json:"fast" mapstructure:"fast"`
	Slow   int `json:"slow" mapstructure:"slow"`
	Signal int `json:"signal" mapstructure:"signal"`
}

// RiskConfig configures return-based risk statistics.
type RiskConfig struct {
	// RiskFreeRate is the annual risk-free rate, e.g. 0.02 for 2%.
	RiskFreeRate float64 `json:"risk_free_rate" mapstructure:"risk_free_rate"`
	// PeriodsPerYear annualizes per-period statistics. Crypto markets trade every day.
	PeriodsPerYear int `json:"periods_per_year" mapstructure:"periods_per_year"`
}

// DefaultMovingAverageConfigs returns the short and long averages shown on the price chart.
func DefaultMovingAverageConfigs() []MovingAverageConfig {
	return []MovingAverageConfig{{Window: 7}, {Window: 30}}
}

// DefaultBollingerConfig returns the 20-period, 2-sigma bands.
func DefaultBollingerConfig() BollingerConfig {
	return BollingerConfig{Window: 20, K: 2}
}

// DefaultRSIConfig returns the 14-period RSI.
func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Window: 14}
}

// DefaultMACDConfig returns MACD(12, 26, 9).
func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: 12, Slow: 26, Signal: 9}
}

// DefaultRiskConfig returns a zero risk-free rate over a 365-day year.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{RiskFreeRate: 0, PeriodsPerYear: 365}
}

// Validate checks the moving average window.
func (c MovingAverageConfig) Validate() error {
	return requirePositive("window", c.Window)
}

// Validate checks the EMA window.
func (c EMAConfig) Validate() error {
	return requirePositive("window", c.Window)
}

// Validate checks the band window and multiplier.
func (c BollingerConfig) Validate() error {
	if err := requirePositive("window", c.Window); err != nil {
		return err
	}
	if c.K < 0 {
		return NewValidationErrorf("k", "must be >= 0, got %g", c.K)
	}
	return nil
}

// Validate checks the RSI window.
func (c RSIConfig) Validate() error {
	return requirePositive("window", c.Window)
}

// Validate checks all three MACD windows and their ordering.
func (c MACDConfig) Validate() error {
	if err := requirePositive("fast", c.Fast); err != nil {
		return err
	}
	if err := requirePositive("slow", c.Slow); err != nil {
		return err
	}
	if err := requirePositive("signal", c.Signal); err != nil {
		return err
	}
	if c.Fast >= c.Slow {
		return NewValidationErrorf("slow", "must be greater than fast (%d <= %d)", c.Slow, c.Fast)
	}
	return nil
}

// Validate checks the annualization factor.
func (c RiskConfig) Validate() error {
	return requirePositive("periods_per_year", c.PeriodsPerYear)
}
