package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Signals   SignalsConfig   `mapstructure:"signals"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	History   HistoryConfig   `mapstructure:"history"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SignalsConfig holds signal service configuration
type SignalsConfig struct {
	DefaultServer string        `mapstructure:"default_server"` // used until the server preference is set
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Limit         int           `mapstructure:"limit"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds periodic job configuration
type SchedulerConfig struct {
	JobName       string        `mapstructure:"job_name"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`
}

// HistoryConfig holds seen history configuration
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// StorageConfig holds settings store configuration
type StorageConfig struct {
	Driver        string `mapstructure:"driver"` // sqlite or redis
	DBPath        string `mapstructure:"db_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
}

// HTTPConfig holds the local control API configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// SIGNALWATCH_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("SIGNALWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Signals defaults
	v.SetDefault("signals.default_server", "http://127.0.0.1:8000")
	v.SetDefault("signals.poll_interval", "15m")
	v.SetDefault("signals.limit", 20)
	v.SetDefault("signals.timeout", "30s")

	// Scheduler defaults
	v.SetDefault("scheduler.job_name", "signal-poll")
	v.SetDefault("scheduler.retry_delay", "1m")
	v.SetDefault("scheduler.retry_max_delay", "15m")

	v.SetDefault("history.capacity", 500)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.db_path", "./data/signalwatch.db")
	v.SetDefault("storage.redis_addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_prefix", "signalwatch")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.rate_per_second", 1.0)

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", "127.0.0.1:8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Signals config
	if err := ValidateServerURL(c.Signals.DefaultServer); err != nil {
		return fmt.Errorf("signals.default_server: %w", err)
	}
	if c.Signals.PollInterval < 1*time.Minute {
		return fmt.Errorf("signals.poll_interval must be at least 1 minute")
	}
	if c.Signals.Limit < 1 || c.Signals.Limit > 500 {
		return fmt.Errorf("signals.limit must be between 1 and 500")
	}
	if c.Signals.Timeout < 0 {
		return fmt.Errorf("signals.timeout must not be negative")
	}

	// Validate Scheduler config
	if strings.TrimSpace(c.Scheduler.JobName) == "" {
		return fmt.Errorf("scheduler.job_name is required")
	}
	if c.Scheduler.RetryDelay < 1*time.Second {
		return fmt.Errorf("scheduler.retry_delay must be at least 1 second")
	}
	if c.Scheduler.RetryMaxDelay < c.Scheduler.RetryDelay {
		return fmt.Errorf("scheduler.retry_max_delay must not be less than scheduler.retry_delay")
	}

	if c.History.Capacity < 1 {
		return fmt.Errorf("history.capacity must be at least 1")
	}

	// Validate Storage config
	switch c.Storage.Driver {
	case "sqlite":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required when storage.driver is redis")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: sqlite, redis")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.RatePerSecond <= 0 {
			return fmt.Errorf("telegram.rate_per_second must be positive")
		}
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
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

// ValidateServerURL checks that raw is an absolute http or https URL.
func ValidateServerURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}
