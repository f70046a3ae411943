package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akanksha509/backend-task/internal/audit"
	"github.com/akanksha509/backend-task/internal/health"
	httpapi "github.com/akanksha509/backend-task/internal/http"
	identifyhandler "github.com/akanksha509/backend-task/internal/identify/handler"
	identifymetrics "github.com/akanksha509/backend-task/internal/identify/metrics"
	"github.com/akanksha509/backend-task/internal/identify/service"
	"github.com/akanksha509/backend-task/internal/identify/store"
	"github.com/akanksha509/backend-task/internal/platform/config"
	"github.com/akanksha509/backend-task/internal/platform/httpserver"
	"github.com/akanksha509/backend-task/internal/platform/logger"
	platformmetrics "github.com/akanksha509/backend-task/internal/platform/metrics"
	"github.com/akanksha509/backend-task/internal/platform/postgres"
	redisplatform "github.com/akanksha509/backend-task/internal/platform/redis"
	"github.com/akanksha509/backend-task/internal/ratelimit"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in internal/identify.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Error("schema setup failed", "error", err.Error())
		os.Exit(1)
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recorder := audit.NewRecorder(256, log)
	var publisher audit.Publisher = audit.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka connection failed", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	identityService := service.New(store.NewPostgres(db),
		service.WithTx(store.NewTxRunner(db, cfg.Identify.TxTimeout)),
		service.WithLogger(log),
		service.WithMetrics(identifymetrics.New()),
		service.WithAuditPublisher(recorder),
		service.WithMaxAttempts(cfg.Identify.MaxAttempts),
	)

	var bucketStore ratelimit.BucketStore = ratelimit.NewInMemoryBucketStore()
	if redisClient != nil {
		bucketStore = ratelimit.NewRedisBucketStore(redisClient.Client)
	}
	limiter := ratelimit.New(bucketStore, log, cfg.RateLimit.Limit, cfg.RateLimit.Window,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled))

	var cachePinger health.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}

	router := httpapi.NewRouter(
		identifyhandler.New(identityService, log,
			identifyhandler.WithMetrics(platformmetrics.New()),
			identifyhandler.WithRateLimiter(limiter.Middleware),
		),
		health.New(db, cachePinger, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting contact identity server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := recorder.Run(gctx, publisher); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("server stopped")
}
