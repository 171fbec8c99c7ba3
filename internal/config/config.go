package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/polysleuth/internal/models"
	"github.com/rewired-gh/polysleuth/internal/scoring"
)

// Config represents the complete application configuration
type Config struct {
	Scoring    scoring.Config   `mapstructure:"scoring"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DetectorConfig holds batch analysis configuration
type DetectorConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	// Watchlist wallets are re-indexed before every scheduled scan.
	Watchlist    []string      `mapstructure:"watchlist"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// PolymarketConfig holds Polymarket API configuration
type PolymarketConfig struct {
	DataAPIURL  string        `mapstructure:"data_api_url"`
	GammaAPIURL string        `mapstructure:"gamma_api_url"`
	PageSize    int           `mapstructure:"page_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
	MinRisk  string `mapstructure:"min_risk"`

	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MaxReports int    `mapstructure:"max_reports"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// A .env file in the working directory is loaded first if present.
// An empty path or a missing file leaves defaults and environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. POLYSLEUTH_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("POLYSLEUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	d := scoring.DefaultConfig()

	// Scoring defaults
	v.SetDefault("scoring.weights.wallet_freshness", d.Weights.WalletFreshness)
	v.SetDefault("scoring.weights.outcome_certainty", d.Weights.OutcomeCertainty)
	v.SetDefault("scoring.weights.entry_timing", d.Weights.EntryTiming)
	v.SetDefault("scoring.weights.market_focus", d.Weights.MarketFocus)
	v.SetDefault("scoring.weights.position_size", d.Weights.PositionSize)
	v.SetDefault("scoring.weights.surgical_behavior", d.Weights.SurgicalBehavior)
	v.SetDefault("scoring.tiers.critical", d.Tiers.Critical)
	v.SetDefault("scoring.tiers.high", d.Tiers.High)
	v.SetDefault("scoring.tiers.medium", d.Tiers.Medium)
	v.SetDefault("scoring.freshness.critical_hours", d.Freshness.CriticalHours)
	v.SetDefault("scoring.freshness.suspicious_hours", d.Freshness.SuspiciousHours)
	v.SetDefault("scoring.freshness.moderate_hours", d.Freshness.ModerateHours)
	v.SetDefault("scoring.freshness.bridge_score", d.Freshness.BridgeScore)
	v.SetDefault("scoring.certainty.min_price", d.Certainty.MinPrice)
	v.SetDefault("scoring.certainty.max_price", d.Certainty.MaxPrice)
	v.SetDefault("scoring.certainty.min_payout_ratio", d.Certainty.MinPayoutRatio)
	v.SetDefault("scoring.timing.critical_pct", d.Timing.CriticalPct)
	v.SetDefault("scoring.timing.suspicious_pct", d.Timing.SuspiciousPct)
	v.SetDefault("scoring.timing.moderate_pct", d.Timing.ModeratePct)
	v.SetDefault("scoring.timing.default_lifetime", d.Timing.DefaultLifetime)
	v.SetDefault("scoring.focus.single_market_score", d.Focus.SingleMarketScore)
	v.SetDefault("scoring.focus.two_markets_score", d.Focus.TwoMarketsScore)
	v.SetDefault("scoring.focus.three_markets_score", d.Focus.ThreeMarketsScore)
	v.SetDefault("scoring.focus.decay_per_market", d.Focus.DecayPerMarket)
	v.SetDefault("scoring.focus.floor", d.Focus.Floor)
	v.SetDefault("scoring.size.large_usd", d.Size.LargeUSD)
	v.SetDefault("scoring.size.medium_usd", d.Size.MediumUSD)
	v.SetDefault("scoring.size.small_usd", d.Size.SmallUSD)
	v.SetDefault("scoring.surgical.full_pattern_score", d.Surgical.FullPatternScore)
	v.SetDefault("scoring.surgical.partial_pattern_score", d.Surgical.PartialPatternScore)
	v.SetDefault("scoring.surgical.redeemed_score", d.Surgical.RedeemedScore)
	v.SetDefault("scoring.surgical.trades_only_score", d.Surgical.TradesOnlyScore)
	v.SetDefault("scoring.surgical.min_profit_ratio", d.Surgical.MinProfitRatio)
	v.SetDefault("scoring.surgical.funding_grace", d.Surgical.FundingGrace)
	v.SetDefault("scoring.strict_weights", false)

	// Detector defaults
	v.SetDefault("detector.concurrency", 8)
	v.SetDefault("detector.watchlist", []string{})
	v.SetDefault("detector.scan_interval", "0s")

	// Polymarket defaults
	v.SetDefault("polymarket.data_api_url", "https://data-api.polymarket.com")
	v.SetDefault("polymarket.gamma_api_url", "https://gamma-api.polymarket.com")
	v.SetDefault("polymarket.page_size", 100)
	v.SetDefault("polymarket.timeout", "30s")
	v.SetDefault("polymarket.max_retries", 3)
	v.SetDefault("polymarket.retry_delay", "2s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.min_risk", string(models.RiskHigh))
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/polysleuth.db")
	v.SetDefault("storage.max_reports", 10000)

	// Server defaults
	v.SetDefault("server.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	// Validate Detector config
	if c.Detector.Concurrency < 1 {
		return fmt.Errorf("detector.concurrency must be at least 1")
	}
	if c.Detector.ScanInterval < 0 {
		return fmt.Errorf("detector.scan_interval must not be negative")
	}
	for _, w := range c.Detector.Watchlist {
		if _, err := models.NormalizeAddress(w); err != nil {
			return fmt.Errorf("detector.watchlist contains an invalid address: %q", w)
		}
	}

	// Validate Polymarket config
	if c.Polymarket.DataAPIURL == "" {
		return fmt.Errorf("polymarket.data_api_url is required")
	}
	if c.Polymarket.GammaAPIURL == "" {
		return fmt.Errorf("polymarket.gamma_api_url is required")
	}
	if c.Polymarket.PageSize < 1 || c.Polymarket.PageSize > 500 {
		return fmt.Errorf("polymarket.page_size must be between 1 and 500")
	}
	if c.Polymarket.Timeout <= 0 {
		return fmt.Errorf("polymarket.timeout must be positive")
	}
	if c.Polymarket.MaxRetries < 0 {
		return fmt.Errorf("polymarket.max_retries must not be negative")
	}
	if c.Polymarket.RetryDelay < 0 {
		return fmt.Errorf("polymarket.retry_delay must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}
	if _, err := models.ParseRiskLevel(c.Telegram.MinRisk); err != nil {
		return fmt.Errorf("telegram.min_risk must be one of: LOW, MEDIUM, HIGH, CRITICAL")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxReports < 1 {
		return fmt.Errorf("storage.max_reports must be at least 1")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// TelegramMinRisk returns the parsed notification floor.
func (c *Config) TelegramMinRisk() models.RiskLevel {
	r, err := models.ParseRiskLevel(c.Telegram.MinRisk)
	if err != nil {
		return models.RiskHigh
	}
	return r
}
