package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/phrazzld/printflow-api/internal/config"
	"github.com/phrazzld/printflow-api/internal/mail"
	"github.com/phrazzld/printflow-api/internal/platform/postgres"
	"github.com/phrazzld/printflow-api/internal/task"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

// stuckClaimAge is how long a task may sit claimed before the recovery job
// assumes its worker died and returns it to the pending set.
const stuckClaimAge = 5 * time.Minute

// startBackgroundWorkers launches the supervised worker pool and the cron
// schedule (session expiry, catch-up sweep, stuck-claim recovery). The
// returned stop function blocks until everything has shut down.
func (app *application) startBackgroundWorkers() (stop func()) {
	supervisor := task.NewSupervisor(
		"worker-pool",
		app.runWorkerPool,
		supervisorConfig(app.config.Worker),
		app.logger,
	)
	supervisor.Start()

	schedule := cron.New()

	mustSchedule(schedule, "@every 1m", func() {
		app.manager.ExpireSessions(context.Background())
	})
	mustSchedule(schedule, "@every 1h", func() {
		app.enqueueSweep(context.Background())
	})
	if rq, ok := app.queue.(*task.RedisQueue); ok {
		mustSchedule(schedule, "@every 1m", func() {
			recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := rq.RecoverStuck(recoverCtx, stuckClaimAge); err != nil {
				app.logger.Error("stuck-claim recovery failed", "error", err)
			}
		})
	}
	schedule.Start()

	return func() {
		<-schedule.Stop().Done()
		supervisor.Stop()
	}
}

// runWorkerPool is the supervised worker body. Each invocation builds a
// fresh pool with all handlers registered, runs it until the context is
// canceled, and drains it on the way out.
func (app *application) runWorkerPool(ctx context.Context) error {
	orderStore := postgres.NewPostgresOrderStore(app.db, app.logger)

	pool := task.NewWorkerPool(app.queue, task.WorkerPoolConfig{
		WorkerCount:  app.config.Worker.Count,
		PollInterval: app.config.Worker.PollInterval,
	}, app.logger)

	pool.Register(task.KindThumbnail, task.NewThumbnailHandler(
		app.objects, app.caches, thumbnail.NewGenerator()))

	notifications := task.NewNotificationHandler(
		orderStore,
		app.caches,
		mail.DefaultRenderer{},
		app.mailTransport(),
		app.config.Mail.ProductionTeam,
		app.logger,
	)
	pool.Register(task.KindNotifyCustomer, notifications)
	pool.Register(task.KindNotifyProduction, notifications)

	pool.Register(task.KindSweepRecent, task.NewSweepHandler(
		orderStore,
		app.objects,
		app.caches,
		app.queue,
		app.config.Worker.SweepWindow,
		app.config.Worker.SweepMaxBatch,
		app.logger,
	))

	pool.Start()
	<-ctx.Done()
	pool.Stop()
	return nil
}

// enqueueSweep schedules one catch-up sweep over recently created orders.
func (app *application) enqueueSweep(ctx context.Context) {
	t, err := task.New(task.KindSweepRecent, task.SweepPayload{})
	if err != nil {
		app.logger.Error("failed to build sweep task", "error", err)
		return
	}
	if err := app.queue.Enqueue(ctx, t); err != nil {
		app.logger.Error("failed to enqueue sweep task", "error", err)
	}
}

// mustSchedule registers a cron entry, panicking on an invalid spec. Specs
// here are compile-time constants, so a failure is always a programming bug.
func mustSchedule(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		panic(err)
	}
}

// supervisorConfig maps the worker configuration onto the restart policy,
// keeping the production defaults for any unset value.
func supervisorConfig(cfg config.WorkerConfig) task.SupervisorConfig {
	sc := task.DefaultSupervisorConfig()
	if cfg.RestartBudget > 0 {
		sc.RestartBudget = cfg.RestartBudget
	}
	if cfg.RestartWindow > 0 {
		sc.RestartWindow = cfg.RestartWindow
	}
	if cfg.RestartCooldown > 0 {
		sc.Cooldown = cfg.RestartCooldown
	}
	return sc
}
