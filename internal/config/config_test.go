package config

import (
	"testing"
	"time"

	"github.com/fortuna/clio/internal/ingest/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"CLIO_BASE_URL", "CLIO_LETTERS", "CLIO_CUTOFF_YEAR", "CLIO_MAX_RETRIES",
		"CLIO_BASE_BACKOFF", "CLIO_MAX_BACKOFF", "CLIO_MIN_INTERVAL", "ATLAS_DSN", "REDIS_URL",
		"CLIO_SCHEDULE_ENABLED", "CLIO_SCHEDULE_HOUR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.basketball-reference.com/players/{letter}/", cfg.Scrape.BaseURL)
	assert.Equal(t, 1980, cfg.Scrape.CutoffYear)
	assert.Nil(t, cfg.Scrape.Letters)
	assert.Equal(t, fetch.DefaultMaxRetries, cfg.Fetch.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Fetch.MinInterval)
	assert.Equal(t, "8080", cfg.Server.RESTPort)
	assert.False(t, cfg.Schedule.Enabled)
	assert.Equal(t, 3, cfg.Schedule.Hour)
	assert.Error(t, cfg.RequireServices())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLIO_BASE_URL", "http://localhost:9999/{letter}/")
	t.Setenv("CLIO_LETTERS", "a, b ,c")
	t.Setenv("CLIO_CUTOFF_YEAR", "1990")
	t.Setenv("CLIO_PER_LETTER_LIMIT", "2")
	t.Setenv("CLIO_MAX_RETRIES", "5")
	t.Setenv("CLIO_BASE_BACKOFF", "250ms")
	t.Setenv("CLIO_MAX_BACKOFF", "10")
	t.Setenv("CLIO_HEADLESS", "true")
	t.Setenv("ATLAS_DSN", "postgres://localhost/atlas")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, cfg.Scrape.Letters)
	assert.True(t, cfg.Fetch.Headless)
	assert.NoError(t, cfg.RequireServices())

	opts := cfg.FetchOptions()
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, opts.BaseBackoff)
	assert.Equal(t, 10*time.Second, opts.MaxBackoff)

	spec := cfg.RunSpec()
	assert.Equal(t, 1990, spec.CutoffYear)
	assert.Equal(t, 2, spec.PerLetterLimit)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Scrape: ScrapeConfig{BaseURL: "http://x/{letter}/"},
			Fetch:  FetchConfig{MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"no placeholder":    func(c *Config) { c.Scrape.BaseURL = "http://x/" },
		"bad letter":        func(c *Config) { c.Scrape.Letters = []string{"aa"} },
		"negative limit":    func(c *Config) { c.Scrape.PerLetterLimit = -1 },
		"zero retries":      func(c *Config) { c.Fetch.MaxRetries = 0 },
		"max below base":    func(c *Config) { c.Fetch.MaxBackoff = time.Millisecond },
		"negative interval": func(c *Config) { c.Fetch.MinInterval = -time.Second },
		"schedule hour":     func(c *Config) { c.Schedule.Hour = 24 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
