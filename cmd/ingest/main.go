package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/telemetry-sink/internal/adapter/api"
	"github.com/V4T54L/telemetry-sink/internal/adapter/api/middleware"
	"github.com/V4T54L/telemetry-sink/internal/adapter/forwarder"
	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/adapter/pii"
	"github.com/V4T54L/telemetry-sink/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/telemetry-sink/internal/adapter/repository/redis"
	"github.com/V4T54L/telemetry-sink/internal/domain"
	"github.com/V4T54L/telemetry-sink/internal/pkg/config"
	"github.com/V4T54L/telemetry-sink/internal/pkg/logger"
	"github.com/V4T54L/telemetry-sink/internal/usecase"

	_ "github.com/lib/pq" // Keep for postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	m := metrics.NewSinkMetrics(prometheus.DefaultRegisterer)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage Backend ---
	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	// --- Initialize Use Cases ---
	dispatcher := usecase.NewDispatchBatchUseCase(repo, logger, m)

	var forwardUseCase *usecase.ForwardBatchUseCase
	if cfg.ForwardingEnabled() {
		anonymizer := pii.NewAnonymizer(pii.DefaultRules(), logger)
		client := forwarder.New(cfg.ForwardTimeout, logger)
		forwardUseCase = usecase.NewForwardBatchUseCase(client, anonymizer, cfg.AnonymousDataURL, true, logger, m)
		logger.Info("anonymized forwarding enabled", "url", cfg.AnonymousDataURL)
	}

	sink := usecase.NewSink(dispatcher, forwardUseCase, logger)

	var lifecycle *slog.Logger
	hostname, _ := os.Hostname()
	if cfg.LifecycleEvents {
		lifecycle = newLifecycleLogger(sink, logger)
		emitLifecycle(ctx, lifecycle, "START", hostname)
	}

	// --- Start Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	adminServer := &http.Server{
		Addr:    cfg.AdminServerAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Initialize Ingest Server ---
	ingestRouter := api.NewRouter(cfg, logger, sink, m)
	ingestServer := &http.Server{
		Addr:         cfg.IngestServerAddr,
		Handler:      middleware.Logging(logger)(ingestRouter),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("starting ingest server", "addr", ingestServer.Addr, "collection", cfg.CollectionName())
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ingest server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ingest server shutdown failed", "error", err)
	}

	if lifecycle != nil {
		emitLifecycle(shutdownCtx, lifecycle, "END", hostname)
	}

	// Let in-flight forwards finish; each is bounded by the forward timeout.
	sink.Wait()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}

// openRepository connects the configured storage backend and returns its
// record repository together with a close function.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.RecordRepository, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageBackendRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		redisClient := redis.NewClient(redisOpts)
		repo := redisrepo.NewRecordRepository(redisClient, cfg.CollectionName(), cfg.RedisStreamMaxLen, logger)
		if err := repo.Ping(ctx); err != nil {
			redisClient.Close()
			return nil, nil, err
		}
		return repo, func() { redisClient.Close() }, nil

	default:
		db, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo := postgres.NewRecordRepository(db, cfg.CollectionName(), logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, func() { db.Close() }, nil
	}
}
