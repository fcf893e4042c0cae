package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	DBPath       string `envconfig:"DB_PATH" default:"foodbridge.db"`
	ClaimRetries int    `envconfig:"CLAIM_TX_RETRIES" default:"5"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`

	Geocoder struct {
		BaseURL           string        `split_words:"true" default:"https://nominatim.openstreetmap.org"`
		UserAgent         string        `split_words:"true" default:"FoodBridge/1.0"`
		Timeout           time.Duration `split_words:"true" default:"5s"`
		CachePath         string        `split_words:"true" default:"geocache"`
		CacheTTL          time.Duration `envconfig:"GEOCODER_CACHE_TTL" default:"168h"`
		FallbackLatitude  float64       `split_words:"true" default:"40.7128"`
		FallbackLongitude float64       `split_words:"true" default:"-74.0060"`
	}

	Telemetry struct {
		Enabled     bool   `split_words:"true" default:"true"`
		ServiceName string `split_words:"true" default:"foodbridge"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
