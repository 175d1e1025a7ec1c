// Package main provides the entrypoint for the SkyAware ingest worker.
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

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skyaware/skyaware/internal/airquality"
	"github.com/skyaware/skyaware/internal/api/middleware"
	"github.com/skyaware/skyaware/internal/api/response"
	"github.com/skyaware/skyaware/internal/config"
	"github.com/skyaware/skyaware/internal/database"
	"github.com/skyaware/skyaware/internal/granule"
	"github.com/skyaware/skyaware/internal/resilience"
	"github.com/skyaware/skyaware/internal/snapshot"
	"github.com/skyaware/skyaware/internal/telemetry"
	"github.com/skyaware/skyaware/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "skyaware-worker"

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
	if err := cfg.Ingest.RequireSource(); err != nil {
		log.Fatal().Err(err).Msg("invalid ingest configuration")
	}
	log = log.Level(cfg.App.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Msg("starting SkyAware worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database") //nolint:gocritic // telemetry cleanup is best-effort
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	registry := resilience.NewRegistry()
	store := snapshot.NewPostgresStore(pool)

	var cache airquality.SnapshotCache
	if cfg.Cache.Enabled() {
		client := snapshot.NewRedisClient(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB,
			cfg.Cache.DialTimeout, cfg.Cache.IOTimeout)
		defer func() { _ = client.Close() }()

		cache = snapshot.NewRedisCache(snapshot.RedisCacheConfig{
			Client:   client,
			Logger:   log,
			Compress: cfg.Cache.Compress,
			Registry: registry,
		})
	} else {
		log.Warn().Msg("REDIS_ADDR not set, snapshots are written to the database only")
	}

	var source worker.GranuleSource
	if cfg.Ingest.GranuleURL != "" {
		source = granule.NewHTTPSource(granule.HTTPSourceConfig{
			URL:      cfg.Ingest.GranuleURL,
			Registry: registry,
		})
	} else {
		source = &granule.FileSource{Path: cfg.Ingest.GranulePath}
	}

	publisher := airquality.NewPublisher(airquality.PublisherConfig{
		Store:    store,
		Cache:    cache,
		Logger:   log,
		Metrics:  tp.AQI,
		Tracer:   tp.Tracer,
		CacheTTL: cfg.Cache.TTL,
	})

	job := worker.NewIngestJob(worker.IngestJobConfig{
		Config: worker.IngestConfig{
			ChunkSize: cfg.Ingest.ChunkSize,
			Timeout:   cfg.Ingest.Timeout,
		},
		Source:    source,
		Publisher: publisher,
		Logger:    log,
	})

	g, ctx := errgroup.WithContext(ctx)

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Job:        job,
		Interval:   cfg.Ingest.Interval,
		RunOnStart: cfg.Ingest.RunOnStart,
		Logger:     log,
	})
	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if cfg.PubSub.Enabled() {
		dispatcher := worker.NewDispatcher(job, store.Ping, log)
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() { _ = handler.Close() }()

		g.Go(func() error {
			return handler.Start(ctx)
		})
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.HealthPort),
		Handler:           healthRouter(log, job, store),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped with error")
		return
	}
	log.Info().Msg("worker stopped")
}

// healthRouter serves liveness and the last ingest run for Cloud Run and
// operators.
func healthRouter(log zerolog.Logger, job *worker.IngestJob, store *snapshot.PostgresStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, r, "database unreachable")
			return
		}
		response.JSON(w, r, http.StatusOK, map[string]string{
			"status":  "OK",
			"version": Version,
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, job.MetricsSnapshot())
	})
	return r
}
