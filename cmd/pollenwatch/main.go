// Package main provides the entrypoint for the pollenwatch API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pollenwatch/pollenwatch/internal/config"
	"github.com/pollenwatch/pollenwatch/internal/httpapi"
	"github.com/pollenwatch/pollenwatch/internal/httpapi/middleware"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/pollen/kleenex"
	"github.com/pollenwatch/pollenwatch/internal/pollen/usradar"
	"github.com/pollenwatch/pollenwatch/internal/telemetry"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	const serviceName = "pollenwatch"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("refresh_interval", cfg.RefreshInterval).
		Int("configured_locations", len(cfg.Locations)).
		Msg("starting pollenwatch")

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.TelemetryEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	fetchMetrics, err := telemetry.NewFetchMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize fetch metrics")
	}

	// One client per endpoint family; both share the threshold table so
	// severity levels mean the same thing everywhere.
	thresholds := pollen.DefaultThresholds()
	currentClient := kleenex.NewClient(kleenex.ClientConfig{
		Thresholds: thresholds,
		Logger:     log,
	})
	legacyClient := usradar.NewClient(usradar.ClientConfig{
		Thresholds: thresholds,
		Logger:     log,
	})

	registry := pollen.NewRegistry(pollen.RegistryConfig{
		Factory: func(loc pollen.Location) (pollen.Client, error) {
			if loc.Region.Legacy() {
				return legacyClient, nil
			}
			return currentClient, nil
		},
		Logger:           log,
		Interval:         cfg.RefreshInterval,
		Timeout:          cfg.RequestTimeout,
		FailureThreshold: cfg.FailureThreshold,
		Metrics:          fetchMetrics,
	})
	defer registry.Close()

	// A misconfigured location is a startup error, not something to limp
	// along with.
	for _, lc := range cfg.Locations {
		region, err := pollen.ParseRegion(lc.Region)
		if err != nil {
			log.Fatal().Err(err).Str("name", lc.Name).Msg("unsupported region in POLLEN_LOCATIONS")
		}
		if _, err := registry.Add(pollen.Location{
			Region:    region,
			Name:      lc.Name,
			Latitude:  lc.Latitude,
			Longitude: lc.Longitude,
			Postal:    lc.Postal,
		}); err != nil {
			log.Fatal().Err(err).Str("name", lc.Name).Msg("invalid location in POLLEN_LOCATIONS")
		}
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Version:  Version,
		Logger:   log,
		Metrics:  httpMetrics,
		Registry: registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
