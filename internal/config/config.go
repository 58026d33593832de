package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	OperatorID  string           `mapstructure:"operator_id"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Venues      []VenueConfig    `mapstructure:"venues"`
	PriceCache  PriceCacheConfig `mapstructure:"price_cache"`
	Scanner     ScannerConfig    `mapstructure:"scanner"`
	Risk        RiskConfig       `mapstructure:"risk"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Execution   ExecutionConfig  `mapstructure:"execution"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VenueConfig describes one spot-trading venue the engine talks to.
type VenueConfig struct {
	Name            string   `mapstructure:"name"`
	BaseURL         string   `mapstructure:"base_url"`
	Pairs           []string `mapstructure:"pairs"`
	TakerFee        float64  `mapstructure:"taker_fee"`
	MinIntervalMs   int      `mapstructure:"min_interval_ms"`
	HasNativeSpread bool     `mapstructure:"has_native_spread"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
}

type PriceCacheConfig struct {
	IntervalSeconds    int     `mapstructure:"interval_seconds"`
	ReferenceQuote     string  `mapstructure:"reference_quote"`
	SyntheticSpread    float64 `mapstructure:"synthetic_spread"`
	CrossRateMaxDev    float64 `mapstructure:"cross_rate_max_deviation"`
	SnapshotTTLSeconds int     `mapstructure:"snapshot_ttl_seconds"`
}

type ScannerConfig struct {
	MinProfitPercent   float64  `mapstructure:"min_profit_percent"`
	AllowCrossCurrency bool     `mapstructure:"allow_cross_currency"`
	BridgeAssets       []string `mapstructure:"bridge_assets"`
	RotationSeconds    int      `mapstructure:"rotation_seconds"`
	RotationEnabled    bool     `mapstructure:"rotation_enabled"`
}

type RiskConfig struct {
	MaxBalancePercent   float64 `mapstructure:"max_balance_percent"`
	MaxTradeAmountUSD   float64 `mapstructure:"max_trade_amount_usd"`
	MinReservePercent   float64 `mapstructure:"min_reserve_percent"`
	MaxConcurrentTrades int     `mapstructure:"max_concurrent_trades"`
	MaxDailyTrades      int     `mapstructure:"max_daily_trades"`
}

type RateLimitConfig struct {
	DefaultIntervalMs int `mapstructure:"default_interval_ms"`
	GlobalDelayMs     int `mapstructure:"global_delay_ms"`
	QueueSize         int `mapstructure:"queue_size"`
}

type ExecutionConfig struct {
	DepositPollSeconds    int     `mapstructure:"deposit_poll_seconds"`
	DepositTimeoutMinutes int     `mapstructure:"deposit_timeout_minutes"`
	DepositArrivalRatio   float64 `mapstructure:"deposit_arrival_ratio"`
	FeeBufferPercent      float64 `mapstructure:"fee_buffer_percent"`
	HistorySize           int     `mapstructure:"history_size"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Load reads configuration from config.yaml plus environment overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind TELEGRAM_BOT_TOKEN environment variable: %w", err)
	}
	if err := viper.BindEnv("database.password", "DATABASE_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_PASSWORD environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that would let the engine run with unsafe limits.
func (c *Config) Validate() error {
	if c.PriceCache.IntervalSeconds <= 0 {
		return errors.New("price_cache.interval_seconds must be positive")
	}
	if c.PriceCache.CrossRateMaxDev <= 0 || c.PriceCache.CrossRateMaxDev >= 1 {
		return fmt.Errorf("price_cache.cross_rate_max_deviation must be in (0, 1), got %f", c.PriceCache.CrossRateMaxDev)
	}
	if c.Risk.MinReservePercent < 0 || c.Risk.MinReservePercent > 100 {
		return fmt.Errorf("risk.min_reserve_percent must be in [0, 100], got %f", c.Risk.MinReservePercent)
	}
	if c.Risk.MaxBalancePercent <= 0 || c.Risk.MaxBalancePercent > 100 {
		return fmt.Errorf("risk.max_balance_percent must be in (0, 100], got %f", c.Risk.MaxBalancePercent)
	}
	if c.Execution.DepositArrivalRatio <= 0 || c.Execution.DepositArrivalRatio > 1 {
		return fmt.Errorf("execution.deposit_arrival_ratio must be in (0, 1], got %f", c.Execution.DepositArrivalRatio)
	}
	if c.Execution.DepositTimeoutMinutes <= 0 {
		return errors.New("execution.deposit_timeout_minutes must be positive")
	}
	for _, v := range c.Venues {
		if v.Name == "" {
			return errors.New("venue name must not be empty")
		}
		if v.TakerFee < 0 || v.TakerFee >= 0.1 {
			return fmt.Errorf("venue %s: taker_fee must be in [0, 0.1), got %f", v.Name, v.TakerFee)
		}
	}
	return nil
}

// PollInterval returns the price cache poll period as a duration.
func (c *PriceCacheConfig) PollInterval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Venue returns the configuration for a named venue, or nil when unknown.
func (c *Config) Venue(name string) *VenueConfig {
	for i := range c.Venues {
		if c.Venues[i].Name == name {
			return &c.Venues[i]
		}
	}
	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("operator_id", "")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "crossarb")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Price cache
	viper.SetDefault("price_cache.interval_seconds", 5)
	viper.SetDefault("price_cache.reference_quote", "USDT")
	viper.SetDefault("price_cache.synthetic_spread", 0.0005)
	viper.SetDefault("price_cache.cross_rate_max_deviation", 0.30)
	viper.SetDefault("price_cache.snapshot_ttl_seconds", 30)

	// Scanner
	viper.SetDefault("scanner.min_profit_percent", 0.5)
	viper.SetDefault("scanner.allow_cross_currency", false)
	viper.SetDefault("scanner.bridge_assets", []string{"XRP", "LTC", "XLM"})
	viper.SetDefault("scanner.rotation_seconds", 60)
	viper.SetDefault("scanner.rotation_enabled", false)

	// Risk
	viper.SetDefault("risk.max_balance_percent", 25.0)
	viper.SetDefault("risk.max_trade_amount_usd", 1000.0)
	viper.SetDefault("risk.min_reserve_percent", 10.0)
	viper.SetDefault("risk.max_concurrent_trades", 2)
	viper.SetDefault("risk.max_daily_trades", 20)

	// Rate limiting
	viper.SetDefault("rate_limit.default_interval_ms", 1000)
	viper.SetDefault("rate_limit.global_delay_ms", 200)
	viper.SetDefault("rate_limit.queue_size", 64)

	// Execution
	viper.SetDefault("execution.deposit_poll_seconds", 5)
	viper.SetDefault("execution.deposit_timeout_minutes", 10)
	viper.SetDefault("execution.deposit_arrival_ratio", 0.95)
	viper.SetDefault("execution.fee_buffer_percent", 0.5)
	viper.SetDefault("execution.history_size", 100)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)
}
