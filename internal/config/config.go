package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	BaseURL          string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RateLimit        string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
	OTELInsecure     bool
	OTELSampleRatio  float64

	EmailSyncSchedule string
	EmailFetchLimit   int

	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURL     string
	CalendarID            string
	CalendarLookaheadDays int

	// APITokenSecret enables bearer auth on /api routes when set
	APITokenSecret string
}

// Load reads an optional .env file and then loads configuration from environment variables
func Load() (*Config, error) {
	// A missing .env file is fine; real environment variables always win
	_ = godotenv.Load()
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	cfg := &Config{
		DatabaseURL:      e.str("DATABASE_URL", ""),
		ServerPort:       e.str("SERVER_PORT", "8080"),
		BaseURL:          e.str("BASE_URL", "http://localhost:8080"),
		FrontendURL:      e.str("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:       e.boolean("ENABLE_HSTS", false),
		RedisURL:         e.str("REDIS_URL", "redis://localhost:6379/0"),
		RateLimit:        e.str("RATE_LIMIT", "20-S"),
		RabbitMQURL:      e.str("RABBITMQ_URL", ""),
		RabbitMQPrefetch: e.integer("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:  e.boolean("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  e.boolean("SERVER_DEBUG_MODE", false),
		OTELEnabled:      e.boolean("OTEL_ENABLED", false),
		OTELEndpoint:     e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     e.boolean("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELSampleRatio:  e.float("OTEL_SAMPLE_RATIO", 1),

		EmailSyncSchedule: e.str("EMAIL_SYNC_SCHEDULE", "@every 5m"),
		EmailFetchLimit:   e.integer("EMAIL_FETCH_LIMIT", 50),

		GoogleClientID:        e.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    e.str("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:     e.str("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/calendar/callback"),
		CalendarID:            e.str("CALENDAR_ID", "primary"),
		CalendarLookaheadDays: e.integer("CALENDAR_LOOKAHEAD_DAYS", 7),

		APITokenSecret: e.str("API_TOKEN_SECRET", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RabbitMQPrefetch < 1 {
		return nil, fmt.Errorf("RABBITMQ_PREFETCH must be at least 1, got %d", cfg.RabbitMQPrefetch)
	}
	if cfg.EmailFetchLimit < 1 {
		return nil, fmt.Errorf("EMAIL_FETCH_LIMIT must be at least 1, got %d", cfg.EmailFetchLimit)
	}
	if cfg.OTELSampleRatio < 0 || cfg.OTELSampleRatio > 1 {
		return nil, fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %g", cfg.OTELSampleRatio)
	}
	if cfg.CalendarLookaheadDays < 1 {
		return nil, fmt.Errorf("CALENDAR_LOOKAHEAD_DAYS must be at least 1, got %d", cfg.CalendarLookaheadDays)
	}

	return cfg, nil
}

// CalendarConfigured reports whether Google OAuth client credentials are set
func (c *Config) CalendarConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// AsyncJobsEnabled reports whether a broker is configured
func (c *Config) AsyncJobsEnabled() bool {
	return c.RabbitMQURL != ""
}

// FrontendOrigins splits FRONTEND_URL into CORS origins
func (c *Config) FrontendOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

type env func(string) string

func (e env) str(key, defaultValue string) string {
	if value := e(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) boolean(key string, defaultValue bool) bool {
	if value := e(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func (e env) integer(key string, defaultValue int) int {
	if value := e(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e env) float(key string, defaultValue float64) float64 {
	if value := e(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	return env(os.Getenv).str(key, defaultValue)
}

func getEnvBool(key string, defaultValue bool) bool {
	return env(os.Getenv).boolean(key, defaultValue)
}
