// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/fortuna/clio/internal/scrape"
	"github.com/joho/godotenv"
)

type Config struct {
	Scrape   ScrapeConfig
	Fetch    FetchConfig
	Store    StoreConfig
	Redis    RedisConfig
	Server   ServerConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

type ScrapeConfig struct {
	BaseURL        string
	Letters        []string
	CutoffYear     int
	PerLetterLimit int
	OutputDir      string
}

type FetchConfig struct {
	UserAgent      string
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	MinInterval    time.Duration
	RequestTimeout time.Duration
	Headless       bool
}

type StoreConfig struct {
	AtlasDSN string
}

type RedisConfig struct {
	URL          string
	PageCacheTTL time.Duration
}

type ServerConfig struct {
	RESTPort string
	WSPort   string
}

// ScheduleConfig controls the daily re-scrape in service mode.
type ScheduleConfig struct {
	Enabled bool
	Hour    int
}

type LoggingConfig struct {
	Level string
	File  string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Scrape: ScrapeConfig{
			BaseURL:        getEnv("CLIO_BASE_URL", scrape.DefaultIndexURL),
			Letters:        parseCommaSeparated(getEnv("CLIO_LETTERS", "")),
			CutoffYear:     getEnvInt("CLIO_CUTOFF_YEAR", scrape.DefaultCutoffYear),
			PerLetterLimit: getEnvInt("CLIO_PER_LETTER_LIMIT", 0),
			OutputDir:      getEnv("CLIO_OUTPUT_DIR", "data"),
		},
		Fetch: FetchConfig{
			UserAgent:      getEnv("CLIO_USER_AGENT", fetch.DefaultUserAgent),
			MaxRetries:     getEnvInt("CLIO_MAX_RETRIES", fetch.DefaultMaxRetries),
			BaseBackoff:    getEnvDuration("CLIO_BASE_BACKOFF", fetch.DefaultBaseBackoff),
			MaxBackoff:     getEnvDuration("CLIO_MAX_BACKOFF", fetch.DefaultMaxBackoff),
			MinInterval:    getEnvDuration("CLIO_MIN_INTERVAL", 5*time.Second),
			RequestTimeout: getEnvDuration("CLIO_REQUEST_TIMEOUT", fetch.DefaultRequestTimeout),
			Headless:       getEnvBool("CLIO_HEADLESS", false),
		},
		Store: StoreConfig{
			AtlasDSN: getEnv("ATLAS_DSN", ""),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PageCacheTTL: getEnvDuration("CLIO_PAGE_CACHE_TTL", 24*time.Hour),
		},
		Server: ServerConfig{
			RESTPort: getEnv("REST_PORT", "8080"),
			WSPort:   getEnv("WS_PORT", "8081"),
		},
		Schedule: ScheduleConfig{
			Enabled: getEnvBool("CLIO_SCHEDULE_ENABLED", false),
			Hour:    getEnvInt("CLIO_SCHEDULE_HOUR", 3),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !strings.Contains(c.Scrape.BaseURL, scrape.LetterPlaceholder) {
		return fmt.Errorf("CLIO_BASE_URL must contain %s", scrape.LetterPlaceholder)
	}
	if _, err := scrape.NormalizeLetters(c.Scrape.Letters); err != nil {
		return fmt.Errorf("CLIO_LETTERS: %w", err)
	}
	if c.Scrape.PerLetterLimit < 0 {
		return fmt.Errorf("CLIO_PER_LETTER_LIMIT must not be negative")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("CLIO_MAX_RETRIES must be at least 1")
	}
	if c.Fetch.BaseBackoff < 0 || c.Fetch.MinInterval < 0 {
		return fmt.Errorf("backoff and interval must not be negative")
	}
	if c.Fetch.MaxBackoff < c.Fetch.BaseBackoff {
		return fmt.Errorf("CLIO_MAX_BACKOFF (%s) is below CLIO_BASE_BACKOFF (%s)", c.Fetch.MaxBackoff, c.Fetch.BaseBackoff)
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return fmt.Errorf("CLIO_SCHEDULE_HOUR must be between 0 and 23")
	}
	return nil
}

// RequireServices checks the settings needed by service mode.
func (c *Config) RequireServices() error {
	if c.Store.AtlasDSN == "" {
		return fmt.Errorf("ATLAS_DSN is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	return nil
}

// FetchOptions converts the fetch settings for fetch.New.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		MaxRetries:     c.Fetch.MaxRetries,
		BaseBackoff:    c.Fetch.BaseBackoff,
		MaxBackoff:     c.Fetch.MaxBackoff,
		MinInterval:    c.Fetch.MinInterval,
		RequestTimeout: c.Fetch.RequestTimeout,
		UserAgent:      c.Fetch.UserAgent,
	}
}

// RunSpec returns the configured run.
func (c *Config) RunSpec() scrape.RunSpec {
	return scrape.RunSpec{
		Letters:        c.Scrape.Letters,
		CutoffYear:     c.Scrape.CutoffYear,
		PerLetterLimit: c.Scrape.PerLetterLimit,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or whole seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
