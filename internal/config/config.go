package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/analysis"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	CoinGecko   CoinGeckoConfig `mapstructure:"coingecko"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Analytics   AnalyticsConfig `mapstructure:"analytics"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	Warming     WarmingConfig   `mapstructure:"warming"`
	Timeouts    TimeoutsConfig  `mapstructure:"timeouts"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Coins       []CoinConfig    `mapstructure:"coins"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
}

type CoinGeckoConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key" json:"-" yaml:"-"`
	VsCurrency string `mapstructure:"vs_currency"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// CacheConfig selects where fetched price series are kept.
type CacheConfig struct {
	// Backend is "redis" or "memory".
	Backend    string `mapstructure:"backend"`
	TTL        string `mapstructure:"ttl"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AnalyticsConfig holds the indicator and risk parameters used when a request does not override them.
type AnalyticsConfig struct {
	DefaultDays       int                            `mapstructure:"default_days"`
	AllowedDays       []int                          `mapstructure:"allowed_days"`
	MovingAverages    []analysis.MovingAverageConfig `mapstructure:"moving_averages"`
	Bollinger         analysis.BollingerConfig       `mapstructure:"bollinger"`
	RSI               analysis.RSIConfig             `mapstructure:"rsi"`
	MACD              analysis.MACDConfig            `mapstructure:"macd"`
	Risk              analysis.RiskConfig            `mapstructure:"risk"`
	VolatilityWindow  int                            `mapstructure:"volatility_window"`
	RSIOverbought     float64                        `mapstructure:"rsi_overbought"`
	RSIOversold       float64                        `mapstructure:"rsi_oversold"`
	AlertNearFraction float64                        `mapstructure:"alert_near_fraction"`
}

type ForecastConfig struct {
	analysis.ForecastConfig `mapstructure:",squash"`
	MinHorizon              int `mapstructure:"min_horizon"`
	MaxHorizon              int `mapstructure:"max_horizon"`
	DefaultHorizon          int `mapstructure:"default_horizon"`
}

type WarmingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Days     []int  `mapstructure:"days"`
}

// TimeoutsConfig bounds analytics requests and cache warming fetches.
type TimeoutsConfig struct {
	Computation string `mapstructure:"computation"`
	Forecast    string `mapstructure:"forecast"`
	Refresh     string `mapstructure:"refresh"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	LogExport    bool    `mapstructure:"log_export"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// CoinConfig is one entry of the selectable coin catalogue.
type CoinConfig struct {
	ID     string `mapstructure:"id" json:"id"`
	Name   string `mapstructure:"name" json:"name"`
	Symbol string `mapstructure:"symbol" json:"symbol"`
}

// Load reads configuration from ./configs/config.yaml or ./config.yaml, a .env file and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom("./configs", ".")
}

// LoadFrom is Load with explicit config search paths.
func LoadFrom(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind secrets to their conventional names
	if err := v.BindEnv("coingecko.api_key", "COINGECKO_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind COINGECKO_API_KEY environment variable: %w", err)
	}
	if err := v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)
	config.Cache.Backend = strings.ToLower(config.Cache.Backend)
	config.Forecast.Model = strings.ToLower(config.Forecast.Model)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field constraints that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	for _, o := range c.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("server allowed_origins entry %q must be \"*\" or start with http:// or https://", o)
		}
	}
	for name, d := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"coingecko.timeout":    c.CoinGecko.Timeout,
		"cache.ttl":            c.Cache.TTL,
		"timeouts.computation": c.Timeouts.Computation,
		"timeouts.forecast":    c.Timeouts.Forecast,
		"timeouts.refresh":     c.Timeouts.Refresh,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s duration: %w", name, err)
		}
	}

	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("cache backend must be redis or memory, got %q", c.Cache.Backend)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}

	if len(c.Analytics.AllowedDays) == 0 {
		return errors.New("analytics allowed_days must not be empty")
	}
	if !c.Analytics.IsAllowedDays(c.Analytics.DefaultDays) {
		return fmt.Errorf("analytics default_days %d is not one of %v", c.Analytics.DefaultDays, c.Analytics.AllowedDays)
	}
	for _, ma := range c.Analytics.MovingAverages {
		if err := ma.Validate(); err != nil {
			return fmt.Errorf("analytics moving_averages: %w", err)
		}
	}
	if err := c.Analytics.Bollinger.Validate(); err != nil {
		return fmt.Errorf("analytics bollinger: %w", err)
	}
	if err := c.Analytics.RSI.Validate(); err != nil {
		return fmt.Errorf("analytics rsi: %w", err)
	}
	if err := c.Analytics.MACD.Validate(); err != nil {
		return fmt.Errorf("analytics macd: %w", err)
	}
	if err := c.Analytics.Risk.Validate(); err != nil {
		return fmt.Errorf("analytics risk: %w", err)
	}

	if err := c.Forecast.ForecastConfig.Validate(); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if c.Forecast.MinHorizon <= 0 || c.Forecast.MinHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast horizon range [%d, %d] is invalid", c.Forecast.MinHorizon, c.Forecast.MaxHorizon)
	}
	if c.Forecast.DefaultHorizon < c.Forecast.MinHorizon || c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast default_horizon %d is outside [%d, %d]",
			c.Forecast.DefaultHorizon, c.Forecast.MinHorizon, c.Forecast.MaxHorizon)
	}

	if len(c.Coins) == 0 {
		return errors.New("at least one coin must be configured")
	}
	return nil
}

// IsAllowedDays reports whether days is one of the configured lookback options.
func (a AnalyticsConfig) IsAllowedDays(days int) bool {
	for _, d := range a.AllowedDays {
		if d == days {
			return true
		}
	}
	return false
}

// Coin looks up a catalogue entry by its CoinGecko id.
func (c *Config) Coin(id string) (CoinConfig, bool) {
	for _, coin := range c.Coins {
		if coin.ID == id {
			return coin, true
		}
	}
	return CoinConfig{}, false
}

// Duration parses a duration that Validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	// CoinGecko
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.timeout", "10s")
	v.SetDefault("coingecko.max_retries", 3)

	// Cache
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.max_entries", 32)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Analytics
	bb := analysis.DefaultBollingerConfig()
	macd := analysis.DefaultMACDConfig()
	risk := analysis.DefaultRiskConfig()
	v.SetDefault("analytics.default_days", 90)
	v.SetDefault("analytics.allowed_days", []int{7, 30, 90, 180, 365})
	v.SetDefault("analytics.moving_averages", []map[string]interface{}{{"window": 7}, {"window": 30}})
	v.SetDefault("analytics.bollinger.window", bb.Window)
	v.SetDefault("analytics.bollinger.k", bb.K)
	v.SetDefault("analytics.rsi.window", analysis.DefaultRSIConfig().Window)
	v.SetDefault("analytics.macd.fast", macd.Fast)
	v.SetDefault("analytics.macd.slow", macd.Slow)
	v.SetDefault("analytics.macd.signal", macd.Signal)
	v.SetDefault("analytics.risk.risk_free_rate", risk.RiskFreeRate)
	v.SetDefault("analytics.risk.periods_per_year", risk.PeriodsPerYear)
	v.SetDefault("analytics.volatility_window", 30)
	v.SetDefault("analytics.rsi_overbought", 70.0)
	v.SetDefault("analytics.rsi_oversold", 30.0)
	v.SetDefault("analytics.alert_near_fraction", 0.95)

	// Forecast
	fc := analysis.DefaultForecastConfig()
	v.SetDefault("forecast.model", fc.Model)
	v.SetDefault("forecast.order.p", fc.Order.P)
	v.SetDefault("forecast.order.d", fc.Order.D)
	v.SetDefault("forecast.order.q", fc.Order.Q)
	v.SetDefault("forecast.confidence", fc.Confidence)
	v.SetDefault("forecast.drift", fc.Drift)
	v.SetDefault("forecast.max_iterations", fc.MaxIterations)
	v.SetDefault("forecast.min_horizon", 7)
	v.SetDefault("forecast.max_horizon", 90)
	v.SetDefault("forecast.default_horizon", 30)

	// Cache warming
	v.SetDefault("warming.enabled", false)
	v.SetDefault("warming.schedule", "@every 10m")
	v.SetDefault("warming.days", []int{30, 90})

	// Timeouts
	v.SetDefault("timeouts.computation", "20s")
	v.SetDefault("timeouts.forecast", "30s")
	v.SetDefault("timeouts.refresh", "20s")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "crypto-analytics")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.log_export", false)

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)

	// Coins
	v.SetDefault("coins", []map[string]interface{}{
		{"id": "bitcoin", "name": "Bitcoin", "symbol": "BTC"},
		{"id": "ethereum", "name": "Ethereum", "symbol": "ETH"},
		{"id": "solana", "name": "Solana", "symbol": "SOL"},
		{"id": "cardano", "name": "Cardano", "symbol": "ADA"},
		{"id": "ripple", "name": "Ripple", "symbol": "XRP"},
		{"id": "polkadot", "name": "Polkadot", "symbol": "DOT"},
		{"id": "dogecoin", "name": "Dogecoin", "symbol": "DOGE"},
	})
}
