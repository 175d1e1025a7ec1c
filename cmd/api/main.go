// Package main provides the entrypoint for the SkyAware query API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api"
	"github.com/skyaware/skyaware/internal/api/handler"
	"github.com/skyaware/skyaware/internal/api/middleware"
	"github.com/skyaware/skyaware/internal/auth"
	"github.com/skyaware/skyaware/internal/config"
	"github.com/skyaware/skyaware/internal/database"
	"github.com/skyaware/skyaware/internal/resilience"
	"github.com/skyaware/skyaware/internal/snapshot"
	"github.com/skyaware/skyaware/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "skyaware-api"

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
	log = log.Level(cfg.App.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Msg("starting SkyAware API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
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

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	registry := resilience.NewRegistry()
	store := snapshot.NewPostgresStore(pool)

	checks := []handler.Check{{Name: "postgres", Pinger: store, Required: true}}

	// A nil interface, not a nil *RedisCache, disables the fast path.
	var cache airquality.SnapshotCache
	if cfg.Cache.Enabled() {
		client := snapshot.NewRedisClient(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB,
			cfg.Cache.DialTimeout, cfg.Cache.IOTimeout)
		defer func() { _ = client.Close() }()

		redisCache := snapshot.NewRedisCache(snapshot.RedisCacheConfig{
			Client:   client,
			Logger:   log,
			Compress: cfg.Cache.Compress,
			Registry: registry,
		})
		cache = redisCache
		checks = append(checks, handler.Check{Name: "redis", Pinger: redisCache})
		log.Info().Str("addr", cfg.Cache.Addr).Msg("redis cache enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, every query is served from the database")
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Store:           store,
		Cache:           cache,
		Logger:          log,
		Metrics:         tp.AQI,
		Tracer:          tp.Tracer,
		MaxProcess:      cfg.Query.MaxProcess,
		DefaultRadiusKM: cfg.Query.DefaultRadiusKM,
		DefaultLimit:    cfg.Query.DefaultLimit,
		MaxLimit:        cfg.Query.MaxLimit,
	})

	routerCfg := api.RouterConfig{
		Logger:     log,
		Tracer:     tp.Tracer,
		Metrics:    httpMetrics,
		AQIService: service,
		Ops: handler.OpsHandlerConfig{
			Version:   Version,
			BuildTime: BuildTime,
			Checks:    checks,
			Registry:  registry,
			Snapshots: store,
		},
		QueryRateLimit: cfg.Query.RateLimit,
		RequireTLS:     cfg.App.RequireTLS,
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})
	if tokens.Enabled() {
		routerCfg.TokenValidator = tokens
	} else {
		log.Warn().Msg("OPS_TOKEN_SIGNING_KEY not set, /v1/ops/status is disabled")
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
