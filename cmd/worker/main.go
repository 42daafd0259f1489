// Package main implements a standalone background worker process. It claims
// tasks from the shared Redis queue and runs the same processing pipeline as
// the in-server worker pool, allowing task throughput to scale independently
// of the API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/config"
	"github.com/phrazzld/printflow-api/internal/mail"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/platform/logger"
	"github.com/phrazzld/printflow-api/internal/platform/postgres"
	"github.com/phrazzld/printflow-api/internal/task"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

// stuckClaimAge is how long a task may sit claimed before the recovery loop
// assumes its worker died and returns it to the pending set.
const stuckClaimAge = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logg, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if cfg.Queue.RedisURL == "" {
		return fmt.Errorf("a standalone worker requires queue.redis_url to be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logg.Error("failed to close database", "error", err)
		}
	}()

	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer func() {
		if err := client.Close(); err != nil {
			logg.Error("failed to close redis client", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	objects, err := openObjectStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	backoff := task.DefaultBackoff()
	if cfg.Worker.BackoffBase > 0 {
		backoff.Base = cfg.Worker.BackoffBase
	}
	if cfg.Worker.BackoffCap > 0 {
		backoff.Cap = cfg.Worker.BackoffCap
	}
	queue := task.NewRedisQueue(client, cfg.Queue.KeyPrefix, backoff, logg)
	queue.SetMaxAttempts(cfg.Worker.MaxAttempts)

	supervisor := task.NewSupervisor(
		"worker-pool",
		func(runCtx context.Context) error {
			return runPool(runCtx, cfg, db, queue, objects, logg)
		},
		task.DefaultSupervisorConfig(),
		logg,
	)
	supervisor.Start()

	go recoverStuckLoop(ctx, queue, logg)

	logg.Info("Worker started", "worker_count", cfg.Worker.Count)
	<-ctx.Done()

	logg.Info("Shutting down worker...")
	supervisor.Stop()
	logg.Info("Worker stopped")
	return nil
}

// runPool is the supervised worker body: a fresh pool with all handlers
// registered, running until the context is canceled.
func runPool(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	queue task.Queue,
	objects objectstore.Store,
	logg *slog.Logger,
) error {
	caches := cache.NewPipeline(cache.DefaultOptions())
	orderStore := postgres.NewPostgresOrderStore(db, logg)

	var transport mail.Transport
	if cfg.Mail.SendGridAPIKey == "" {
		logg.Warn("no sendgrid api key configured, mail sends will be logged only")
		transport = mail.NewLogTransport(logg)
	} else {
		transport = mail.NewSendGridTransport(
			cfg.Mail.SendGridAPIKey, cfg.Mail.FromEmail, cfg.Mail.FromName)
	}

	pool := task.NewWorkerPool(queue, task.WorkerPoolConfig{
		WorkerCount:  cfg.Worker.Count,
		PollInterval: cfg.Worker.PollInterval,
	}, logg)

	pool.Register(task.KindThumbnail, task.NewThumbnailHandler(
		objects, caches, thumbnail.NewGenerator()))

	notifications := task.NewNotificationHandler(
		orderStore, caches, mail.DefaultRenderer{}, transport,
		cfg.Mail.ProductionTeam, logg)
	pool.Register(task.KindNotifyCustomer, notifications)
	pool.Register(task.KindNotifyProduction, notifications)

	pool.Register(task.KindSweepRecent, task.NewSweepHandler(
		orderStore, objects, caches, queue,
		cfg.Worker.SweepWindow, cfg.Worker.SweepMaxBatch, logg))

	pool.Start()
	<-ctx.Done()
	pool.Stop()
	return nil
}

// recoverStuckLoop returns tasks claimed by dead workers to the pending
// set, once at startup and then periodically.
func recoverStuckLoop(ctx context.Context, queue *task.RedisQueue, logg *slog.Logger) {
	recoverOnce := func() {
		recoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		recovered, err := queue.RecoverStuck(recoverCtx, stuckClaimAge)
		if err != nil {
			logg.Error("stuck-claim recovery failed", "error", err)
		} else if recovered > 0 {
			logg.Info("recovered stuck tasks", "count", recovered)
		}
	}
	recoverOnce()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recoverOnce()
		}
	}
}

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openObjectStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("a standalone worker requires storage.bucket to be configured")
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s3Store, err := objectstore.NewS3Store(setupCtx, cfg.Bucket, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	retryCfg := objectstore.DefaultRetryConfig()
	if cfg.RetryAttempts > 0 {
		retryCfg.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		retryCfg.Delay = cfg.RetryDelay
	}
	if cfg.CallTimeout > 0 {
		retryCfg.CallTimeout = cfg.CallTimeout
	}
	return objectstore.NewRetryingStore(s3Store, retryCfg), nil
}
