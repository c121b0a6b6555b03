package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pagopa/io-functions-admin-sub002/internal/notification"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/blob"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/config"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/httpserver"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/kafka"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/logger"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/middleware"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/orchestration"
	"github.com/pagopa/io-functions-admin-sub002/internal/platform/postgres"
	platformredis "github.com/pagopa/io-functions-admin-sub002/internal/platform/redis"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/activities"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/handler"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/metrics"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/recovery"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/service"
	"github.com/pagopa/io-functions-admin-sub002/internal/processing/store"
	"github.com/pagopa/io-functions-admin-sub002/internal/visibleservices"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit/publisher"
	auditpg "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit/store/postgres"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/circuit"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	auditDB, err := postgres.NewDB(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect audit store: %w", err)
	}
	defer auditDB.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	blobs := blob.NewRedisStore(redisClient.Client)

	auditStore := auditpg.New(auditDB)
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
	)
	defer auditPublisher.Close()

	producer, err := kafka.NewProducer(ctx, cfg.Kafka, kafka.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	defer producer.Close()
	notifier := notification.NewKafkaPublisher(producer,
		notification.WithLogger(log),
		notification.WithBreaker(circuit.New("notifications")),
	)

	procStore := store.NewPostgresStore(pool)

	downloader := activities.NewDownloader(
		[]activities.Collector{activities.NewAuditTrailCollector(auditStore)},
		blobs,
		notifier,
		cfg.Bundle.BaseURL,
		activities.WithDownloaderLogger(log),
	)
	deleter := activities.NewDeleter(
		[]activities.Purger{activities.NewBundlePurger(blobs)},
		activities.WithDeleterLogger(log),
	)

	engine := orchestration.NewEngine(orchestration.NewPostgresStore(pool),
		orchestration.WithLogger(log),
		orchestration.WithRetryPolicy(orchestration.RetryPolicy{
			MaxAttempts:        cfg.Workflow.MaxAttempts,
			InitialInterval:    cfg.Workflow.InitialInterval,
			BackoffCoefficient: cfg.Workflow.BackoffCoefficient,
		}),
	)
	engine.Register(processing.NewWorkflow(procStore, downloader, deleter,
		processing.WithWorkflowLogger(log),
		processing.WithWorkflowAuditPublisher(auditPublisher)))

	driver := orchestration.NewDriver(engine, orchestration.WithDriverLogger(log))
	scanner := recovery.NewScanner(procStore, driver, recovery.WithLogger(log))

	svc := service.New(procStore, driver, scanner,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(metrics.New()),
	)

	updater := visibleservices.NewUpdater(blobs, cfg.Cache.BlobID, cfg.Cache.LeaseDuration,
		visibleservices.WithLogger(log),
		visibleservices.WithAuditPublisher(auditPublisher),
	)

	admin := handler.New(svc, updater, log,
		middleware.NewHMACValidator(cfg.Server.JWTSigningKey))

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Health(r.Context()); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	admin.Register(router)

	// Re-drive saga instances interrupted by the previous shutdown before
	// accepting new work.
	resumed, err := engine.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume workflow instances: %w", err)
	}
	if resumed > 0 {
		log.Info("resumed interrupted workflow instances", "count", resumed)
	}

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("admin server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return scanner.RunPeriodic(gctx, cfg.Recovery.Interval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Let in-flight saga runs reach a durable state before the stores close.
	engine.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
