package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"taxsync-pro/internal/broker"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Sync
	SyncSchedule string        // cron spec evaluated in IST
	SyncThrottle time.Duration // minimum gap between syncs per user
	ScoreTTL     time.Duration // efficiency score cache lifetime

	// Alerts
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string

	// Optional TOML file overriding the built-in broker catalog
	BrokersFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/taxsync.db"),

		// Default: 16:00 IST after the NSE close, Monday to Friday
		SyncSchedule: getEnv("SYNC_SCHEDULE", "0 16 * * 1-5"),
		SyncThrottle: getDuration("SYNC_THROTTLE", 5*time.Minute),
		ScoreTTL:     getDuration("SCORE_TTL", 10*time.Minute),

		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel:    getEnv("LOG_LEVEL", "info"),
		BrokersFile: getEnv("BROKERS_FILE", ""),
	}
}

// brokersFile is the layout of BROKERS_FILE:
//
//	[brokers.zerodha]
//	api_url = "https://kite.example/api"
//	is_live = false
//	requests_per_minute = 30
type brokersFile struct {
	Brokers map[string]broker.Override `toml:"brokers"`
}

// BrokerCatalog returns the default catalog with BrokersFile applied, if set.
func (c *Config) BrokerCatalog() (broker.Catalog, error) {
	catalog := broker.DefaultCatalog()
	if c.BrokersFile == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(c.BrokersFile)
	if err != nil {
		return nil, fmt.Errorf("read brokers file %s: %w", c.BrokersFile, err)
	}
	var f brokersFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse brokers file %s: %w", c.BrokersFile, err)
	}
	for name := range f.Brokers {
		if _, ok := catalog[name]; !ok {
			log.Printf("[config] ignoring override for unknown broker %q", name)
		}
	}
	return catalog.Apply(f.Brokers), nil
}

// Notifier channel names, in the order Notifier prefers them.
const (
	AlertTelegram = "telegram"
	AlertWebhook  = "webhook"
	AlertLog      = "log"
)

// AlertChannel reports which notifier the credentials present select.
func (c *Config) AlertChannel() string {
	switch {
	case c.TelegramBotToken != "" && c.TelegramChatID != "":
		return AlertTelegram
	case c.AlertWebhookURL != "":
		return AlertWebhook
	default:
		return AlertLog
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
