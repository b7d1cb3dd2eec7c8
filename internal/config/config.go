// Package config defines the application configuration. Values are
// taken from a config yml file or environment variables or both.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/adhound/adhound/internal/browser"
	"github.com/adhound/adhound/internal/fetch"
	"github.com/adhound/adhound/internal/output"
)

const (
	FILE_SETTINGS_PROVIDER     = "file"
	POSTGRES_SETTINGS_PROVIDER = "postgres"

	MEMORY_DEDUP_STORE = "memory"
	REDIS_DEDUP_STORE  = "redis"
)

// WorkerSpec names the sources one user polls. The engine starts one
// worker per (user, source) pair at boot.
type WorkerSpec struct {
	User    string   `yaml:"user"`
	Sources []string `yaml:"sources"`
}

// SettingsConfig selects where per-user search settings come from.
type SettingsConfig struct {
	Provider string `yaml:"provider" env:"SETTINGS_PROVIDER" env-default:"file"`
	Dir      string `yaml:"dir" env:"SETTINGS_DIR" env-default:"./settings"`
	DSN      string `yaml:"dsn" env:"SETTINGS_DSN"`
	MaxConns int    `yaml:"max_conns" env:"SETTINGS_MAX_CONNS" env-default:"4"`
}

// DedupConfig selects the fingerprint store that suppresses
// re-notification of already seen listings.
type DedupConfig struct {
	Store         string `yaml:"store" env:"DEDUP_STORE" env-default:"memory"`
	MaxEntries    int    `yaml:"max_entries" env:"DEDUP_MAX_ENTRIES"`
	TTLHours      int    `yaml:"ttl_hours" env:"DEDUP_TTL_HOURS"`
	RedisAddr     string `yaml:"redis_addr" env:"DEDUP_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"DEDUP_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"DEDUP_REDIS_DB"`
	DetectReposts bool   `yaml:"detect_reposts" env:"DEDUP_DETECT_REPOSTS"`
}

// BreakerConfig tunes the per-worker error budget.
type BreakerConfig struct {
	Threshold     int `yaml:"threshold" env:"BREAKER_THRESHOLD" env-default:"10"`
	WindowMinutes int `yaml:"window_minutes" env:"BREAKER_WINDOW_MINUTES" env-default:"60"`
}

// Config defines the overall structure of the application
// configuration.
type Config struct {
	Workers    []WorkerSpec `yaml:"workers"`
	SourcesDir string       `yaml:"sources_dir" env:"SOURCES_DIR"`

	Settings SettingsConfig        `yaml:"settings"`
	Fetcher  fetch.FetcherConfig   `yaml:"fetcher"`
	Browser  browser.Config        `yaml:"browser"`
	Dedup    DedupConfig           `yaml:"dedup"`
	Notifier output.NotifierConfig `yaml:"notifier"`
	Breaker  BreakerConfig         `yaml:"breaker"`

	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// NewConfig reads the configuration from the given path, overlaying
// environment variables.
func NewConfig(configPath string) (*Config, error) {
	var config Config
	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", configPath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the engine could not be built from.
func (c *Config) Validate() error {
	switch c.Settings.Provider {
	case FILE_SETTINGS_PROVIDER:
		if c.Settings.Dir == "" {
			return fmt.Errorf("settings provider %s needs a dir", c.Settings.Provider)
		}
	case POSTGRES_SETTINGS_PROVIDER:
		if c.Settings.DSN == "" {
			return fmt.Errorf("settings provider %s needs a dsn", c.Settings.Provider)
		}
	default:
		return fmt.Errorf("settings provider %s not implemented", c.Settings.Provider)
	}

	switch c.Dedup.Store {
	case MEMORY_DEDUP_STORE:
	case REDIS_DEDUP_STORE:
		if c.Dedup.RedisAddr == "" {
			return fmt.Errorf("dedup store %s needs a redis_addr", c.Dedup.Store)
		}
	default:
		return fmt.Errorf("dedup store %s not implemented", c.Dedup.Store)
	}

	for i, w := range c.Workers {
		if w.User == "" {
			return fmt.Errorf("worker %d has no user", i)
		}
		if len(w.Sources) == 0 {
			return fmt.Errorf("worker for user %s has no sources", w.User)
		}
	}
	return nil
}
