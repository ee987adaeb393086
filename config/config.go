// Package config loads runtime configuration from config.json with
// environment variable overrides. A .env file, when present, is loaded
// first so both sources look the same to the rest of the process.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"asian-sweep-bot/internal/api"
	"asian-sweep-bot/internal/circuit"
	"asian-sweep-bot/internal/feed"
	"asian-sweep-bot/internal/logging"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/risk"
	"asian-sweep-bot/internal/store"
)

type Config struct {
	StrategyConfig StrategyConfig       `json:"strategy"`
	FeedConfig     FeedConfig           `json:"feed"`
	ServerConfig   api.Config           `json:"server"`
	PostgresConfig store.PostgresConfig `json:"postgres"`
	RedisConfig    store.RedisConfig    `json:"redis"`
	BreakerConfig  circuit.Config       `json:"breaker"`
	RiskConfig     risk.Config          `json:"risk"`
	LoggingConfig  logging.Config       `json:"logging"`

	PostgresEnabled bool `json:"postgres_enabled"`
	RedisEnabled    bool `json:"redis_enabled"`
}

// StrategyConfig holds the detection and lifecycle parameters
type StrategyConfig struct {
	Symbols     []string `json:"symbols"`
	WindowStart string   `json:"window_start"` // "HH:MM" UTC
	WindowEnd   string   `json:"window_end"`

	MinRangeBars int `json:"min_range_bars"`

	// Sweep threshold. StaticThresholdPips > 0 bypasses the dynamic formula.
	StaticThresholdPips float64 `json:"static_threshold_pips"`
	ThresholdFloorPips  float64 `json:"threshold_floor_pips"`
	ThresholdRangePct   float64 `json:"threshold_range_pct"`
	ThresholdATRMult    float64 `json:"threshold_atr_mult"`
	TieBreak            string  `json:"tie_break"` // midpoint, excursion, reject

	ConfirmationLookaheadBars int           `json:"confirmation_lookahead_bars"`
	ConfirmationLookahead     time.Duration `json:"confirmation_lookahead"`
	DisplacementK             float64       `json:"displacement_k"`
	AcceptanceOutsideCloses   int           `json:"acceptance_outside_closes"`

	MaxSpreadPips     float64       `json:"max_spread_pips"`
	AssumedSpreadPips float64       `json:"assumed_spread_pips"`
	ConfluenceMaxWait time.Duration `json:"confluence_max_wait"`

	Cooldown  time.Duration `json:"cooldown"`
	Retention time.Duration `json:"retention"`

	StopBufferPips float64 `json:"stop_buffer_pips"`
	AccountBalance float64 `json:"account_balance"`

	PollInterval time.Duration `json:"poll_interval"`
}

// FeedConfig selects and configures the bar source
type FeedConfig struct {
	// Mode is "rest" or "stream". Stream mode still needs the REST feed
	// for history backfill.
	Mode   string            `json:"mode"`
	REST   feed.RESTConfig   `json:"rest"`
	Stream feed.StreamConfig `json:"stream"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win either way
	_ = godotenv.Load()

	// The file is unmarshalled over a fully populated default config, so
	// absent keys keep their defaults while explicit values, including
	// explicit false and zero, survive as written. A missing file just
	// leaves the defaults in place.
	cfg := DefaultConfig()
	_ = loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"), cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when neither the file nor
// the environment overrides a field
func DefaultConfig() *Config {
	return &Config{
		StrategyConfig: StrategyConfig{
			Symbols:                   []string{"EURUSD"},
			WindowStart:               "00:00",
			WindowEnd:                 "06:00",
			MinRangeBars:              12,
			ThresholdFloorPips:        10,
			ThresholdRangePct:         0.09,
			ThresholdATRMult:          0.5,
			TieBreak:                  "midpoint",
			ConfirmationLookaheadBars: 6,
			ConfirmationLookahead:     30 * time.Minute,
			DisplacementK:             1.3,
			AcceptanceOutsideCloses:   2,
			MaxSpreadPips:             2.0,
			AssumedSpreadPips:         1.0,
			ConfluenceMaxWait:         15 * time.Minute,
			Cooldown:                  time.Hour,
			Retention:                 4 * time.Hour,
			StopBufferPips:            5,
			AccountBalance:            10000,
			PollInterval:              30 * time.Second,
		},
		FeedConfig:     FeedConfig{Mode: "rest"},
		ServerConfig:   api.Config{Addr: ":8080"},
		PostgresConfig: store.PostgresConfig{SSLMode: "disable"},
		BreakerConfig:  circuit.DefaultConfig(),
		RiskConfig:     risk.DefaultConfig(),
		LoggingConfig:  logging.DefaultConfig(),
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.StrategyConfig.Symbols = strings.Split(v, ",")
	}
	cfg.StrategyConfig.WindowStart = getEnvOrDefault("SESSION_WINDOW_START", cfg.StrategyConfig.WindowStart)
	cfg.StrategyConfig.WindowEnd = getEnvOrDefault("SESSION_WINDOW_END", cfg.StrategyConfig.WindowEnd)
	cfg.StrategyConfig.StaticThresholdPips = getEnvFloatOrDefault("STATIC_THRESHOLD_PIPS", cfg.StrategyConfig.StaticThresholdPips)
	cfg.StrategyConfig.TieBreak = getEnvOrDefault("SWEEP_TIE_BREAK", cfg.StrategyConfig.TieBreak)
	cfg.StrategyConfig.Cooldown = getEnvDurationOrDefault("SESSION_COOLDOWN", cfg.StrategyConfig.Cooldown)
	cfg.StrategyConfig.PollInterval = getEnvDurationOrDefault("POLL_INTERVAL", cfg.StrategyConfig.PollInterval)

	cfg.FeedConfig.Mode = getEnvOrDefault("FEED_MODE", cfg.FeedConfig.Mode)
	cfg.FeedConfig.REST.BaseURL = getEnvOrDefault("FEED_BASE_URL", cfg.FeedConfig.REST.BaseURL)
	cfg.FeedConfig.REST.APIKey = getEnvOrDefault("FEED_API_KEY", cfg.FeedConfig.REST.APIKey)
	cfg.FeedConfig.Stream.URL = getEnvOrDefault("FEED_STREAM_URL", cfg.FeedConfig.Stream.URL)

	cfg.ServerConfig.Addr = getEnvOrDefault("SERVER_ADDR", cfg.ServerConfig.Addr)
	cfg.ServerConfig.Debug = getEnvOrDefault("SERVER_DEBUG", "false") == "true"

	cfg.PostgresEnabled = getEnvOrDefault("POSTGRES_ENABLED", strconv.FormatBool(cfg.PostgresEnabled)) == "true"
	cfg.PostgresConfig.Host = getEnvOrDefault("POSTGRES_HOST", cfg.PostgresConfig.Host)
	cfg.PostgresConfig.Port = getEnvIntOrDefault("POSTGRES_PORT", cfg.PostgresConfig.Port)
	cfg.PostgresConfig.User = getEnvOrDefault("POSTGRES_USER", cfg.PostgresConfig.User)
	cfg.PostgresConfig.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.PostgresConfig.Password)
	cfg.PostgresConfig.Database = getEnvOrDefault("POSTGRES_DB", cfg.PostgresConfig.Database)

	cfg.RedisEnabled = getEnvOrDefault("REDIS_ENABLED", strconv.FormatBool(cfg.RedisEnabled)) == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Format = getEnvOrDefault("LOG_FORMAT", cfg.LoggingConfig.Format)
}

// Validate rejects configs the engine cannot run with
func (c *Config) Validate() error {
	s := c.StrategyConfig
	if len(s.Symbols) == 0 {
		return &market.ConfigurationError{Field: "strategy.symbols", Reason: "at least one symbol is required"}
	}
	if _, err := market.ParseTimeOfDay(s.WindowStart); err != nil {
		return &market.ConfigurationError{Field: "strategy.window_start", Reason: err.Error()}
	}
	if _, err := market.ParseTimeOfDay(s.WindowEnd); err != nil {
		return &market.ConfigurationError{Field: "strategy.window_end", Reason: err.Error()}
	}
	switch s.TieBreak {
	case "midpoint", "excursion", "reject":
	default:
		return &market.ConfigurationError{Field: "strategy.tie_break", Reason: "must be midpoint, excursion or reject"}
	}
	if s.StaticThresholdPips < 0 {
		return &market.ConfigurationError{Field: "strategy.static_threshold_pips", Reason: "must not be negative"}
	}
	if s.ThresholdRangePct < 0 || s.ThresholdRangePct > 1 {
		return &market.ConfigurationError{Field: "strategy.threshold_range_pct", Reason: "must be in [0, 1]"}
	}
	if s.Cooldown <= 0 {
		return &market.ConfigurationError{Field: "strategy.cooldown", Reason: "must be positive"}
	}

	switch c.FeedConfig.Mode {
	case "rest", "stream":
	default:
		return &market.ConfigurationError{Field: "feed.mode", Reason: "must be rest or stream"}
	}
	if c.FeedConfig.REST.BaseURL == "" {
		return &market.ConfigurationError{Field: "feed.rest.base_url", Reason: "is required"}
	}
	if c.FeedConfig.Mode == "stream" && c.FeedConfig.Stream.URL == "" {
		return &market.ConfigurationError{Field: "feed.stream.url", Reason: "is required in stream mode"}
	}
	return nil
}

func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
