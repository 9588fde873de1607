// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// LocationConfig is one pre-configured location, supplied as JSON in the
// POLLEN_LOCATIONS environment variable.
type LocationConfig struct {
	Region    string  `json:"region" validate:"required"`
	Name      string  `json:"name" validate:"required,max=120"`
	Latitude  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lon" validate:"gte=-180,lte=180"`
	Postal    string  `json:"postal" validate:"omitempty,max=10"`
}

// Config holds the service configuration.
type Config struct {
	// Port the HTTP API listens on.
	Port string

	// Environment name for telemetry ("development", "production", ...).
	Environment string

	// RefreshInterval between scheduled refreshes per location.
	RefreshInterval time.Duration

	// RequestTimeout for a single upstream fetch.
	RequestTimeout time.Duration

	// FailureThreshold for escalating to a degraded state.
	FailureThreshold int

	// Locations configured at startup.
	Locations []LocationConfig

	// OTLPEndpoint for metric export.
	OTLPEndpoint string

	// TelemetryEnabled toggles OTLP export.
	TelemetryEnabled bool
}

var validate = validator.New()

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win over defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("APP_PORT", "8080"),
		Environment:      getEnv("APP_ENV", "development"),
		RefreshInterval:  time.Hour,
		RequestTimeout:   10 * time.Second,
		FailureThreshold: 3,
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("OTEL_ENABLED") == "true",
	}

	if v := os.Getenv("POLLEN_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing POLLEN_REFRESH_INTERVAL: %w", err)
		}
		cfg.RefreshInterval = d
	}
	if v := os.Getenv("POLLEN_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parsing POLLEN_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("POLLEN_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("parsing POLLEN_FAILURE_THRESHOLD: %q is not a positive integer", v)
		}
		cfg.FailureThreshold = n
	}

	if v := os.Getenv("POLLEN_LOCATIONS"); v != "" {
		if err := json.Unmarshal([]byte(v), &cfg.Locations); err != nil {
			return nil, fmt.Errorf("parsing POLLEN_LOCATIONS: %w", err)
		}
		for i, loc := range cfg.Locations {
			if err := validate.Struct(loc); err != nil {
				return nil, fmt.Errorf("location %d (%s): %w", i, loc.Name, err)
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
