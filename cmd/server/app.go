package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/printflow-api/internal/api"
	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/config"
	"github.com/phrazzld/printflow-api/internal/mail"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/platform/logger"
	"github.com/phrazzld/printflow-api/internal/platform/postgres"
	"github.com/phrazzld/printflow-api/internal/service"
	"github.com/phrazzld/printflow-api/internal/task"
	"github.com/phrazzld/printflow-api/internal/upload"
)

// application holds the fully wired dependency graph of the server process.
type application struct {
	config *config.Config
	logger *slog.Logger

	db      *sql.DB
	redisC  *redis.Client
	objects objectstore.Store
	queue   task.Queue
	caches  *cache.Pipeline
	manager *upload.Manager
	orders  *service.OrderService
	router  http.Handler
}

// newApplication loads configuration and wires every component of the
// server: database, object store, queue, caches, upload session manager,
// order service, and the HTTP router.
func newApplication() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	app := &application{config: cfg, logger: log}

	if err := app.setupDatabase(); err != nil {
		return nil, err
	}
	if err := app.setupObjectStore(); err != nil {
		return nil, err
	}
	if err := app.setupQueue(); err != nil {
		return nil, err
	}

	app.caches = cache.NewPipeline(cacheOptions(cfg.Cache))

	orderStore := postgres.NewPostgresOrderStore(app.db, log)

	app.manager = upload.NewManager(
		app.objects,
		orderStore,
		app.queue,
		app.caches,
		upload.ManagerConfig{
			SessionTTL:         cfg.Upload.SessionTTL,
			ChunkRetryAttempts: cfg.Upload.ChunkRetryAttempts,
		},
		log,
	)

	app.orders = service.NewOrderService(orderStore, app.caches, log)

	app.router = api.NewRouter(
		api.NewUploadHandler(app.manager),
		api.NewOrderHandler(app.orders),
		log,
	)

	return app, nil
}

// setupDatabase opens the connection pool, verifies connectivity, and
// applies pending schema migrations.
func (app *application) setupDatabase() error {
	db, err := sql.Open("pgx", app.config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := postgres.MigrateUp(ctx, db); err != nil {
		return err
	}

	app.logger.Info("Database connection established")
	app.db = db
	return nil
}

// setupObjectStore builds the file storage backend. With no bucket
// configured the process keeps files in memory, which is only useful for
// local development.
func (app *application) setupObjectStore() error {
	if app.config.Storage.Bucket == "" {
		app.logger.Warn("no storage bucket configured, using in-memory object store")
		app.objects = objectstore.NewMemoryStore()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s3Store, err := objectstore.NewS3Store(ctx, app.config.Storage.Bucket, app.config.Storage.Region)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	retryCfg := objectstore.DefaultRetryConfig()
	if app.config.Storage.RetryAttempts > 0 {
		retryCfg.Attempts = app.config.Storage.RetryAttempts
	}
	if app.config.Storage.RetryDelay > 0 {
		retryCfg.Delay = app.config.Storage.RetryDelay
	}
	if app.config.Storage.CallTimeout > 0 {
		retryCfg.CallTimeout = app.config.Storage.CallTimeout
	}

	app.objects = objectstore.NewRetryingStore(s3Store, retryCfg)
	app.logger.Info("Object store initialized",
		"bucket", app.config.Storage.Bucket,
		"region", app.config.Storage.Region)
	return nil
}

// setupQueue builds the task queue. A configured Redis URL selects the
// shared Redis-backed queue; otherwise the process runs a single-node
// in-memory queue.
func (app *application) setupQueue() error {
	backoff := taskBackoff(app.config.Worker)

	if app.config.Queue.RedisURL == "" {
		app.logger.Warn("no redis url configured, using in-memory task queue")
		mq := task.NewMemoryQueue(backoff, app.logger)
		mq.SetMaxAttempts(app.config.Worker.MaxAttempts)
		app.queue = mq
		return nil
	}

	opts, err := redis.ParseURL(app.config.Queue.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	app.redisC = client
	rq := task.NewRedisQueue(client, app.config.Queue.KeyPrefix, backoff, app.logger)
	rq.SetMaxAttempts(app.config.Worker.MaxAttempts)
	app.queue = rq
	app.logger.Info("Redis task queue initialized")
	return nil
}

// mailTransport picks the outbound mail backend. Without an API key the
// pipeline logs sends instead of delivering them.
func (app *application) mailTransport() mail.Transport {
	if app.config.Mail.SendGridAPIKey == "" {
		app.logger.Warn("no sendgrid api key configured, mail sends will be logged only")
		return mail.NewLogTransport(app.logger)
	}
	return mail.NewSendGridTransport(
		app.config.Mail.SendGridAPIKey,
		app.config.Mail.FromEmail,
		app.config.Mail.FromName,
	)
}

// close releases process-wide resources.
func (app *application) close() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
	if app.redisC != nil {
		if err := app.redisC.Close(); err != nil {
			app.logger.Error("failed to close redis client", "error", err)
		}
	}
}

// cacheOptions maps the cache configuration onto cache bounds, keeping the
// production defaults for any unset value.
func cacheOptions(cfg config.CacheConfig) cache.Options {
	opts := cache.DefaultOptions()
	if cfg.OrderTTL > 0 {
		opts.OrderTTL = cfg.OrderTTL
	}
	if cfg.OrderListTTL > 0 {
		opts.OrderListTTL = cfg.OrderListTTL
	}
	if cfg.ThumbnailMissTTL > 0 {
		opts.ThumbnailMissTTL = cfg.ThumbnailMissTTL
	}
	if cfg.ThumbnailCapacity > 0 {
		opts.ThumbnailCapacity = cfg.ThumbnailCapacity
	}
	return opts
}

// taskBackoff maps the worker configuration onto the retry backoff, keeping
// the production defaults for any unset value.
func taskBackoff(cfg config.WorkerConfig) task.Backoff {
	backoff := task.DefaultBackoff()
	if cfg.BackoffBase > 0 {
		backoff.Base = cfg.BackoffBase
	}
	if cfg.BackoffCap > 0 {
		backoff.Cap = cfg.BackoffCap
	}
	return backoff
}
