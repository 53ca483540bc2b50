package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string
	DataDir   string

	// Database
	DatabaseURL      string
	DatabaseMaxConns int

	// Redis
	RedisURL string

	// RabbitMQ
	RabbitMQURL string

	// Telegram
	TelegramBotToken string
	TelegramAPIURL   string
	AdminID          int64
	ExpiryNotices    bool

	// Capacity
	MaxUsers              int
	SoftLimit             int
	SoftLimitAlertWindow  time.Duration
	RAMWarnPercent        int
	RAMStopPercent        int
	ProbeFailureThreshold int

	// Trials
	TrialDays           int
	TrialMaxConnections int

	// Proxy
	ProxyContainer      string
	ProxyImage          string
	ProxyPort           int
	ProxyTag            string
	ServerIP            string
	ProxyRestartTimeout time.Duration
	ProxyProbeTimeout   time.Duration
	ProxyPullTimeout    time.Duration

	// Schedules
	HealthSchedule     string
	ExpirationSchedule string
	RestartSchedule    string

	// API
	APIAddr  string
	APIToken string
	APIURL   string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		DataDir:   getEnv("DATA_DIR", defaultDataDir()),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 4),
		RedisURL:         getEnv("REDIS_URL", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		AdminID:          getInt64Env("ADMIN_ID", 0),
		ExpiryNotices:    getBoolEnv("EXPIRY_NOTICES", true),

		MaxUsers:              getIntEnv("MAX_USERS", 50),
		SoftLimit:             getIntEnv("SOFT_LIMIT", 40),
		SoftLimitAlertWindow:  getDurationEnv("SOFT_LIMIT_ALERT_WINDOW", time.Hour),
		RAMWarnPercent:        getIntEnv("RAM_WARN_PERCENT", 80),
		RAMStopPercent:        getIntEnv("RAM_STOP_PERCENT", 90),
		ProbeFailureThreshold: getIntEnv("PROBE_FAILURE_THRESHOLD", 3),

		TrialDays:           getIntEnv("TRIAL_DAYS", 0),
		TrialMaxConnections: getIntEnv("TRIAL_MAX_CONNECTIONS", 1),

		ProxyContainer:      getEnv("PROXY_CONTAINER", "mtproxy"),
		ProxyImage:          getEnv("PROXY_IMAGE", "ghcr.io/skrashevich/mtproxy:latest"),
		ProxyPort:           getIntEnv("PROXY_PORT", 443),
		ProxyTag:            getEnv("PROXY_TAG", ""),
		ServerIP:            getEnv("SERVER_IP", ""),
		ProxyRestartTimeout: getDurationEnv("PROXY_RESTART_TIMEOUT", 30*time.Second),
		ProxyProbeTimeout:   getDurationEnv("PROXY_PROBE_TIMEOUT", 5*time.Second),
		ProxyPullTimeout:    getDurationEnv("PROXY_PULL_TIMEOUT", 2*time.Minute),

		HealthSchedule:     getEnv("HEALTH_SCHEDULE", "@every 5m"),
		ExpirationSchedule: getEnv("EXPIRATION_SCHEDULE", "*/30 * * * *"),
		RestartSchedule:    getEnv("RESTART_SCHEDULE", "0 3 * * *"),

		APIAddr:  getEnv("API_ADDR", "127.0.0.1:8080"),
		APIToken: getEnv("API_TOKEN", ""),
		APIURL:   getEnv("API_URL", "http://127.0.0.1:8080"),
	}

	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.MaxUsers <= 0 {
		add("MAX_USERS must be positive, got %d", c.MaxUsers)
	}
	if c.SoftLimit < 0 || c.SoftLimit > c.MaxUsers {
		add("SOFT_LIMIT must be within [0, MAX_USERS], got %d", c.SoftLimit)
	}
	if c.RAMWarnPercent <= 0 || c.RAMWarnPercent >= c.RAMStopPercent || c.RAMStopPercent > 100 {
		add("thresholds must satisfy 0 < RAM_WARN_PERCENT < RAM_STOP_PERCENT <= 100, got %d and %d",
			c.RAMWarnPercent, c.RAMStopPercent)
	}
	if c.TrialDays < 0 {
		add("TRIAL_DAYS must not be negative, got %d", c.TrialDays)
	}
	if c.TrialDays > 0 && c.TrialMaxConnections <= 0 {
		add("TRIAL_MAX_CONNECTIONS must be positive when trials are enabled")
	}
	if c.ProxyPort <= 0 || c.ProxyPort > 65535 {
		add("PROXY_PORT out of range: %d", c.ProxyPort)
	}
	if c.TelegramBotToken != "" && c.AdminID == 0 {
		add("ADMIN_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.IsProduction() {
		if c.TelegramBotToken == "" {
			add("TELEGRAM_BOT_TOKEN is required in production")
		}
		if c.AdminID == 0 {
			add("ADMIN_ID is required in production")
		}
		if c.ServerIP == "" {
			add("SERVER_IP is required in production")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// PublicServer is the host advertised in connection links.
func (c *Config) PublicServer() string {
	if c.ServerIP == "" {
		return "127.0.0.1"
	}
	return c.ServerIP
}

// SQLitePath is the database file used when DATABASE_URL is empty.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "mtgate.db")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mtgate"
	}
	return filepath.Join(home, ".mtgate")
}
