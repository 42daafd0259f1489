package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SupervisorState describes where the supervisor loop currently is.
type SupervisorState string

// Supervisor states. Paused means the restart budget is exhausted and no
// restarts happen until the rolling window drains.
const (
	StateStarting           SupervisorState = "starting"
	StateRunning            SupervisorState = "running"
	StateCrashedCoolingDown SupervisorState = "crashed_cooling_down"
	StatePaused             SupervisorState = "paused"
	StateStopped            SupervisorState = "stopped"
)

// SupervisorConfig holds the restart policy for a supervised worker.
type SupervisorConfig struct {
	// RestartBudget is the maximum number of restarts allowed within
	// RestartWindow. Exceeding it pauses restarts until the window drains,
	// so a systemically broken worker does not turn into a restart storm.
	RestartBudget int

	// RestartWindow is the rolling window the budget applies to.
	RestartWindow time.Duration

	// Cooldown is the fixed pause before each restart.
	Cooldown time.Duration
}

// DefaultSupervisorConfig returns the restart policy used in production.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartBudget: 5,
		RestartWindow: time.Hour,
		Cooldown:      5 * time.Second,
	}
}

// Supervisor runs a worker body in a goroutine and restarts it when it
// crashes, subject to a cooldown and a rolling restart budget. It is a
// single loop driving an explicit state machine; the current state is
// observable for health reporting.
type Supervisor struct {
	name   string
	run    func(ctx context.Context) error
	config SupervisorConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    SupervisorState
	restarts []time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

// NewSupervisor creates a supervisor for the given worker body. run should
// block until the worker stops; a nil return is a clean exit and ends
// supervision, a non-nil return or a panic counts as a crash.
func NewSupervisor(name string, run func(ctx context.Context) error, config SupervisorConfig, logger *slog.Logger) *Supervisor {
	if config.RestartBudget <= 0 {
		config.RestartBudget = 5
	}
	if config.RestartWindow <= 0 {
		config.RestartWindow = time.Hour
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		name:   name,
		run:    run,
		config: config,
		logger: logger.With("supervised", name),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateStarting,
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
}

// Start launches the supervision loop. It returns immediately.
func (s *Supervisor) Start() {
	go s.loop()
}

// Stop cancels the supervised worker and waits for the loop to exit.
func (s *Supervisor) Stop() {
	s.cancel()
	<-s.done
}

// State returns the current supervisor state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) loop() {
	defer close(s.done)
	defer s.setState(StateStopped)

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateRunning)
		s.logger.Info("supervised worker starting")
		err := s.runOnce()

		if s.ctx.Err() != nil {
			return
		}
		if err == nil {
			s.logger.Info("supervised worker exited cleanly")
			return
		}

		s.logger.Error("supervised worker crashed", "error", err)
		s.setState(StateCrashedCoolingDown)
		s.sleep(s.ctx, s.config.Cooldown)

		if wait := s.recordRestart(); wait > 0 {
			s.setState(StatePaused)
			s.logger.Warn("restart budget exhausted, pausing restarts",
				"budget", s.config.RestartBudget,
				"window", s.config.RestartWindow,
				"resume_in", wait)
			s.sleep(s.ctx, wait)
		}
	}
}

// runOnce executes the worker body with panic recovery.
func (s *Supervisor) runOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return s.run(s.ctx)
}

// recordRestart logs a restart against the rolling window and returns how
// long to pause when the budget is exhausted, or zero when it is not.
func (s *Supervisor) recordRestart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.config.RestartWindow)
	kept := s.restarts[:0]
	for _, ts := range s.restarts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.restarts = append(kept, now)

	if len(s.restarts) <= s.config.RestartBudget {
		return 0
	}
	// Pause until the oldest restart in the window ages out.
	return s.restarts[0].Add(s.config.RestartWindow).Sub(now)
}

func (s *Supervisor) setState(state SupervisorState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// sleepCtx pauses for d, returning early when ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
