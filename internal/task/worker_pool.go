package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one kind of task. Returning nil completes the task;
// returning an error wrapping ErrNonRetryable fails it terminally; any
// other error retries with backoff while attempts remain.
type Handler interface {
	Handle(ctx context.Context, t *Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, t *Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, t *Task) error {
	return f(ctx, t)
}

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// PollInterval is how long an idle worker sleeps when the queue has no
	// ready task. If zero, defaults to one second.
	PollInterval time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:  2,
		PollInterval: time.Second,
	}
}

// WorkerPool runs a fixed set of worker goroutines that claim tasks from a
// queue and dispatch them to registered handlers. A panicking handler fails
// only its task, never the pool.
type WorkerPool struct {
	queue    Queue
	handlers map[Kind]Handler
	config   WorkerPoolConfig
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewWorkerPool creates a worker pool over the given queue.
func NewWorkerPool(queue Queue, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queue:    queue,
		handlers: make(map[Kind]Handler),
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register binds a handler to a task kind. Must be called before Start;
// registering the same kind twice panics, as that is always a wiring bug.
func (p *WorkerPool) Register(kind Kind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		panic("task: Register called after Start")
	}
	if _, dup := p.handlers[kind]; dup {
		panic(fmt.Sprintf("task: handler already registered for kind %q", kind))
	}
	p.handlers[kind] = h
}

// Start launches the worker goroutines. It returns immediately.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.Info("starting worker pool", "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals all workers to finish their current task and exit, then
// waits for them.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is the per-goroutine claim/execute loop.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			log.Debug("worker stopping")
			return
		default:
		}

		t, err := p.queue.ClaimNext(p.ctx, time.Now().UTC())
		if err != nil {
			if errors.Is(err, ErrNoTaskReady) {
				p.sleep()
				continue
			}
			if p.ctx.Err() != nil {
				return
			}
			log.Error("failed to claim task", "error", err)
			p.sleep()
			continue
		}

		p.execute(log, t)
	}
}

// execute runs one task through its handler and reports the outcome back
// to the queue.
func (p *WorkerPool) execute(log *slog.Logger, t *Task) {
	log = log.With(
		"task_id", t.ID,
		"task_kind", t.Kind,
		"attempt", t.Attempt)

	h, ok := p.handlers[t.Kind]
	if !ok {
		// No handler is a deployment bug; retrying will not fix it.
		log.Error("no handler registered for task kind")
		if _, err := p.queue.Fail(p.ctx, t, fmt.Errorf("no handler registered for kind %q", t.Kind), false); err != nil {
			log.Error("failed to record task failure", "error", err)
		}
		return
	}

	start := time.Now()
	err := p.runHandler(h, t)
	elapsed := time.Since(start)

	if err == nil {
		if cerr := p.queue.Complete(p.ctx, t); cerr != nil {
			log.Error("failed to complete task", "error", cerr)
			return
		}
		log.Info("task completed", "duration_ms", elapsed.Milliseconds())
		return
	}

	retryable := !errors.Is(err, ErrNonRetryable)
	retried, ferr := p.queue.Fail(p.ctx, t, err, retryable)
	if ferr != nil {
		log.Error("failed to record task failure", "error", ferr)
		return
	}
	log.Warn("task execution failed",
		"error", err,
		"retryable", retryable,
		"retried", retried,
		"duration_ms", elapsed.Milliseconds())
}

// runHandler invokes the handler with panic recovery. A recovered panic is
// treated as a non-retryable failure.
func (p *WorkerPool) runHandler(h Handler, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panicked: %v", ErrNonRetryable, r)
		}
	}()
	return h.Handle(p.ctx, t)
}

// sleep pauses for the poll interval, waking early on shutdown.
func (p *WorkerPool) sleep() {
	timer := time.NewTimer(p.config.PollInterval)
	defer timer.Stop()
	select {
	case <-p.ctx.Done():
	case <-timer.C:
	}
}
