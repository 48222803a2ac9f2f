package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/api"
	"github.com/fpaludi/SatelliteTraker/internal/auth"
	"github.com/fpaludi/SatelliteTraker/internal/cache"
	"github.com/fpaludi/SatelliteTraker/internal/config"
	"github.com/fpaludi/SatelliteTraker/internal/health"
	"github.com/fpaludi/SatelliteTraker/internal/logging"
	"github.com/fpaludi/SatelliteTraker/internal/metrics"
	"github.com/fpaludi/SatelliteTraker/internal/observability"
	"github.com/fpaludi/SatelliteTraker/internal/passes"
	"github.com/fpaludi/SatelliteTraker/internal/propagation"
	"github.com/fpaludi/SatelliteTraker/internal/stream"
	"github.com/fpaludi/SatelliteTraker/internal/tle"
	"github.com/fpaludi/SatelliteTraker/internal/track"
	"github.com/fpaludi/SatelliteTraker/internal/valkey"
)

func main() {
	cfg, err := config.Load(os.Getenv("SATTRACK_CONFIG_FILE"))
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		slog.Error("invalid log configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	store := tle.NewStore()
	source := tle.NewSource(cfg.Catalog.Path)
	if c, err := store.Reload(source, logger); err != nil {
		// Serve anyway; /readyz stays 503 until a reload succeeds.
		logger.Warn("no catalog loaded at startup", "path", cfg.Catalog.Path, "error", err)
	} else {
		logger.Info("catalog loaded", "source", c.Source, "satellites", len(c.Satellites))
	}

	propCfg := propagation.PropConfig{
		Model:               cfg.Propagation.Model,
		Gravity:             cfg.Propagation.Gravity,
		Workers:             cfg.Propagation.Workers,
		KeplerTolerance:     cfg.Propagation.KeplerTolerance,
		KeplerMaxIterations: cfg.Propagation.KeplerMaxIterations,
	}
	if propCfg.Workers == 0 {
		propCfg.Workers = runtime.NumCPU()
	}
	model, err := propagation.NewModel(propCfg)
	if err != nil {
		logger.Error("invalid propagation configuration", "error", err)
		os.Exit(1)
	}
	prop := propagation.NewPropagator(model, propCfg, logger)
	metrics.SetPropagationWorkersActive(propCfg.Workers)
	logger.Info("propagation config",
		"model", prop.ModelName(),
		"gravity", propCfg.Gravity,
		"workers", propCfg.Workers,
	)

	results := cache.New(cache.Config{Capacity: cfg.Cache.Capacity}, logger)
	sampler := track.NewSampler(prop, results)
	predictor := passes.NewPredictor(prop, propCfg.Workers)

	ready := map[string]health.Pinger{}
	var responses api.ResponseCache
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr, "sattrack:")
		if err != nil {
			logger.Error("valkey connection failed", "addr", cfg.Valkey.Addr, "error", err)
			os.Exit(1)
		}
		defer vc.Close()
		responses = vc
		ready["valkey"] = vc
		logger.Info("response cache enabled", "addr", cfg.Valkey.Addr, "ttl", cfg.Valkey.TTL)
	}

	streamHandler := stream.NewHandler(store, sampler, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		MaxTotal:           cfg.Stream.MaxTotal,
		MaxSamples:         cfg.Stream.MaxSamples,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.Server.TrustProxy,
	}, logger)

	srv := api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Auth:         auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
		TrustProxy:   cfg.Server.TrustProxy,
		MaxSamples:   cfg.API.MaxSamples,
		DefaultStep:  cfg.API.DefaultStep,
		MaxPassDays:  cfg.API.MaxPassDays,
		ResponseTTL:  cfg.Valkey.TTL,
	}, api.Deps{
		Store:      store,
		Source:     source,
		Propagator: prop,
		Sampler:    sampler,
		Predictor:  predictor,
		Results:    results,
		Responses:  responses,
		Stream:     streamHandler,
		Ready:      ready,
	}, logger)

	go updateCatalogAge(ctx, store)
	if cfg.Catalog.ReloadInterval > 0 {
		go reloadCatalog(ctx, store, source, cfg.Catalog.ReloadInterval, logger)
	}
	if cfg.Catalog.Watch {
		go func() {
			if err := store.Watch(ctx, source, tle.DefaultWatchDebounce, logger); err != nil {
				logger.Warn("catalog watch disabled", "path", source.Path(), "error", err)
			}
		}()
	}

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// updateCatalogAge keeps the catalog age gauge current.
func updateCatalogAge(ctx context.Context, store *tle.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if age := store.AgeSeconds(); age >= 0 {
				metrics.SetCatalogAge(age)
			}
		case <-ctx.Done():
			return
		}
	}
}

// reloadCatalog re-reads the catalog source every interval. A failed reload
// keeps serving the previous catalog.
func reloadCatalog(ctx context.Context, store *tle.Store, source *tle.Source, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c, err := store.Reload(source, logger)
			if err != nil {
				logger.Warn("scheduled catalog reload failed", "path", source.Path(), "error", err)
				continue
			}
			logger.Info("catalog reloaded", "source", c.Source, "satellites", len(c.Satellites))
		case <-ctx.Done():
			return
		}
	}
}
