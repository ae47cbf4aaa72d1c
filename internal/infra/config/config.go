package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const (
	FastBackendBolt     = "bolt"
	FastBackendPostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	BackendBaseURL   string
	SessionToken     string
	HTTPTimeout      time.Duration
	DataDir          string
	FastBackend      string // bolt or postgres
	DatabaseURL      string // Only required for the postgres fast backend
	FastValueMaxSize int
	TelegramToken    string // Empty means notifications are only logged
	TelegramChatID   int64
	LogLevel         string
	Environment      string
	CronSpecPreload  string
	CronSpecQueue    string

	// Poller tuning, see scheduler and app defaults.
	CatchUpWindow       time.Duration
	NotificationBuffer  time.Duration
	RetentionWindow     time.Duration
	MinPollInterval     time.Duration
	MaxPollInterval     time.Duration
	EmptyCycleThreshold int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.BackendBaseURL = strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/")
	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is not set")
	}
	cfg.SessionToken = os.Getenv("SESSION_TOKEN")

	if cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}

	cfg.FastBackend = strings.ToLower(os.Getenv("CACHE_FAST_BACKEND"))
	if cfg.FastBackend == "" {
		cfg.FastBackend = FastBackendBolt
	}
	switch cfg.FastBackend {
	case FastBackendBolt:
	case FastBackendPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set (required by CACHE_FAST_BACKEND=postgres)")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_FAST_BACKEND %q (expected bolt or postgres)", cfg.FastBackend)
	}

	if cfg.FastValueMaxSize, err = intEnv("FAST_BACKEND_MAX_VALUE_BYTES", 8*1024); err != nil {
		return nil, err
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
		if chatIDStr == "" {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID is not set (required with TELEGRAM_TOKEN)")
		}
		cfg.TelegramChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecPreload = os.Getenv("CRON_SPEC_PRELOAD")
	if cfg.CronSpecPreload == "" {
		cfg.CronSpecPreload = "*/30 * * * *" // Default: every 30 minutes
	}
	cfg.CronSpecQueue = os.Getenv("CRON_SPEC_QUEUE_SYNC")
	if cfg.CronSpecQueue == "" {
		cfg.CronSpecQueue = "*/5 * * * *" // Default: every 5 minutes
	}

	if cfg.CatchUpWindow, err = durationEnv("NOTIFY_CATCH_UP_WINDOW", 36*time.Hour); err != nil {
		return nil, err
	}
	if cfg.NotificationBuffer, err = durationEnv("NOTIFY_BUFFER", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetentionWindow, err = durationEnv("NOTIFY_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MinPollInterval, err = durationEnv("POLL_MIN_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxPollInterval, err = durationEnv("POLL_MAX_INTERVAL", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.MinPollInterval > cfg.MaxPollInterval {
		return nil, fmt.Errorf("POLL_MIN_INTERVAL (%s) exceeds POLL_MAX_INTERVAL (%s)", cfg.MinPollInterval, cfg.MaxPollInterval)
	}
	if cfg.EmptyCycleThreshold, err = intEnv("POLL_EMPTY_CYCLE_THRESHOLD", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return n, nil
}
