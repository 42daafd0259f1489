package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartBudget: 3,
		RestartWindow: time.Hour,
		Cooldown:      time.Millisecond,
	}
}

func TestSupervisorRestartsCrashedWorker(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewSupervisor("worker", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return assert.AnError
		}
		<-ctx.Done()
		return nil
	}, fastSupervisorConfig(), testLogger())

	s.Start()
	require.Eventually(t, func() bool {
		return runs.Load() == 3 && s.State() == StateRunning
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, int32(3), runs.Load())
}

func TestSupervisorCleanExitEndsSupervision(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewSupervisor("worker", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, fastSupervisorConfig(), testLogger())

	s.Start()
	require.Eventually(t, func() bool {
		return s.State() == StateStopped
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "clean exit is not restarted")
}

func TestSupervisorRecoversPanickingWorker(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewSupervisor("worker", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return nil
	}, fastSupervisorConfig(), testLogger())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSupervisorPausesWhenBudgetExhausted(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewSupervisor("worker", func(ctx context.Context) error {
		runs.Add(1)
		return assert.AnError
	}, fastSupervisorConfig(), testLogger())

	s.Start()
	defer s.Stop()

	// Budget is 3 in a one-hour window; after the budget is spent the
	// supervisor must sit in paused instead of restarting.
	require.Eventually(t, func() bool {
		return s.State() == StatePaused
	}, time.Second, 5*time.Millisecond)

	paused := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, runs.Load(), "no restarts while paused")
	assert.LessOrEqual(t, paused, int32(4))
}

func TestSupervisorResumesAfterWindowDrains(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s := NewSupervisor("worker", func(ctx context.Context) error {
		runs.Add(1)
		return assert.AnError
	}, SupervisorConfig{
		RestartBudget: 2,
		RestartWindow: 30 * time.Millisecond,
		Cooldown:      time.Millisecond,
	}, testLogger())

	s.Start()
	defer s.Stop()

	// With a tiny rolling window the pause drains quickly and restarts
	// continue well past the budget.
	require.Eventually(t, func() bool {
		return runs.Load() > 6
	}, time.Second, 5*time.Millisecond)
}
