package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/zerohunger/foodbridge/internal/booking"
	"github.com/zerohunger/foodbridge/internal/catalog"
	"github.com/zerohunger/foodbridge/internal/config"
	"github.com/zerohunger/foodbridge/internal/geo"
	"github.com/zerohunger/foodbridge/internal/http/rest"
	"github.com/zerohunger/foodbridge/internal/logctx"
	"github.com/zerohunger/foodbridge/internal/storage/sqlite"
	"github.com/zerohunger/foodbridge/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("foodbridge starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	// =========================================================================
	// Start Databases
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedListingRepositoryWithRetries(database, cfg.ClaimRetries, tel)

	geoCache, err := badger.Open(badger.DefaultOptions(cfg.Geocoder.CachePath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("failed to open geocode cache: %w", err)
	}
	defer geoCache.Close()

	// =========================================================================
	// Start Geocoder
	geocoder := buildGeocoder(cfg, geoCache, tel)

	// =========================================================================
	// Start Claim Coordinator and Query Service
	coordinator := booking.NewCoordinator(repo, tel)
	queries := catalog.NewQueryService(repo)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, coordinator, queries, repo, geocoder, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// buildGeocoder assembles the resolution chain: Badger cache in front of the
// Nominatim client, deterministic fallback around both so listing creation
// survives a geocoder outage.
func buildGeocoder(cfg *config.Config, cache *badger.DB, tel *telemetry.Telemetry) geo.Geocoder {
	client := geo.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout)
	cached := geo.NewCache(client, cache, cfg.Geocoder.CacheTTL, tel)

	return geo.NewFallback(cached, geo.Coordinates{
		Latitude:  cfg.Geocoder.FallbackLatitude,
		Longitude: cfg.Geocoder.FallbackLongitude,
	}, tel)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	coordinator *booking.Coordinator,
	queries *catalog.QueryService,
	repo *sqlite.InstrumentedListingRepository,
	geocoder geo.Geocoder,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	handler := rest.NewListingHandler(coordinator, queries, repo, geocoder, tel)
	httpMiddleware := telemetry.NewHTTPMiddleware(tel)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(httpMiddleware.Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", handler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
