// Package main provides the entrypoint for the air quality forecast service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/aqforecast/aqforecast/internal/api"
	"github.com/aqforecast/aqforecast/internal/api/middleware"
	"github.com/aqforecast/aqforecast/internal/config"
	"github.com/aqforecast/aqforecast/internal/forecast"
	"github.com/aqforecast/aqforecast/internal/forecast/aeronet"
	"github.com/aqforecast/aqforecast/internal/forecast/geojson"
	"github.com/aqforecast/aqforecast/internal/forecast/sites"
	"github.com/aqforecast/aqforecast/internal/provider/resilience"
	"github.com/aqforecast/aqforecast/internal/telemetry"
	"github.com/aqforecast/aqforecast/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aqforecast"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML, JSON or TOML config file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("aqforecast exited")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := telemetry.NewLogger(telemetry.LogConfig{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Level:          cfg.Log.Level,
		Pretty:         cfg.Log.Pretty,
	}, os.Stdout)
	if err != nil {
		return err
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Server.Env).
		Msg("starting aqforecast")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Sources:        sourceNames(cfg.SourceConfigs()),
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	forecastMetrics, err := forecast.NewMetrics()
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	service := forecast.NewService(forecast.ServiceConfig{
		Providers:      newProviders(cfg, registry, log),
		Coordinates:    newCoordinateSource(cfg, registry, log),
		DefaultSources: cfg.DefaultSources(),
		MaxStepsBack:   cfg.Forecast.MaxStepsBack,
		ProbeTimeout:   cfg.Forecast.ProbeTimeout,
		Concurrency:    cfg.Forecast.Concurrency,
		Logger:         log,
		Metrics:        forecastMetrics,
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Refresher: service,
		Logger:    log.With().Str("component", "refresh").Logger(),
	})

	// Initial load runs in the background; readiness reports it.
	go func() {
		_, _ = job.Run(ctx, nil, time.Time{})
	}()

	scheduler := worker.NewScheduler(job, cfg.Forecast.RefreshInterval, log)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	if cfg.PubSub.Enabled() {
		subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			RefreshJob:       job,
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := subscriber.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()

		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		Service:     service,
		Registry:    registry,
		RequireTLS:  cfg.Server.RequireTLS,
		Worker:      scheduler,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

// newProviders builds one wire adapter per configured source. CSV sources use
// the legacy AERONET table endpoint; everything else reads GeoJSON snapshots.
func newProviders(cfg *config.Config, registry *resilience.Registry, log zerolog.Logger) map[forecast.Source]forecast.Provider {
	providers := make(map[forecast.Source]forecast.Provider)
	for _, src := range cfg.SourceConfigs() {
		httpClient := newHTTPClient(resilience.SnapshotClientConfig(string(src.Name)), cfg, registry, log)

		switch src.Format {
		case forecast.FormatCSV:
			providers[src.Name] = aeronet.NewClient(aeronet.ClientConfig{
				Source:     src.Name,
				BaseURL:    src.BaseURL,
				HTTPClient: httpClient,
				Logger:     log,
			})
		default:
			providers[src.Name] = geojson.NewClient(geojson.ClientConfig{
				Source:     src.Name,
				BaseURL:    src.BaseURL,
				HTTPClient: httpClient,
				Logger:     log,
			})
		}
	}
	return providers
}

// newCoordinateSource returns nil when no source has a reference dataset.
func newCoordinateSource(cfg *config.Config, registry *resilience.Registry, log zerolog.Logger) forecast.CoordinateSource {
	urls := make(map[forecast.Source]string)
	for _, src := range cfg.SourceConfigs() {
		if src.CoordinatesURL != "" {
			urls[src.Name] = src.CoordinatesURL
		}
	}
	if len(urls) == 0 {
		return nil
	}

	httpClient := newHTTPClient(resilience.DefaultClientConfig("site-reference"), cfg, registry, log)
	return sites.NewClient(sites.ClientConfig{
		URLs:       urls,
		HTTPClient: httpClient,
		CacheTTL:   cfg.Forecast.CoordinatesTTL,
		Logger:     log,
	})
}

func newHTTPClient(rc resilience.ClientConfig, cfg *config.Config, registry *resilience.Registry, log zerolog.Logger) *resilience.Client {
	rc.Timeout = cfg.Forecast.ProbeTimeout
	rc.MaxRetries = uint64(cfg.Forecast.HTTPRetries) //nolint:gosec // validated non-negative
	rc.Registry = registry
	rc.Logger = log
	return resilience.NewClient(rc)
}

func sourceNames(sources []forecast.SourceConfig) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s.Name))
	}
	return names
}
