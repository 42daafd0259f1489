package task

import (
	"context"
	"errors"
	"time"
)

// Queue errors.
var (
	// ErrNoTaskReady is returned by ClaimNext when no pending task has a
	// not-before time at or past now. Workers treat it as "poll again
	// later", never as a failure.
	ErrNoTaskReady = errors.New("no task ready")

	// ErrTaskNotFound is returned when the referenced task is not known to
	// the queue (or is no longer claimed by the caller).
	ErrTaskNotFound = errors.New("task not found")
)

// Queue is the single task queue contract; in-memory and Redis-backed
// implementations satisfy it. All implementations must be safe for
// concurrent producers and consumers, and ClaimNext must guarantee that no
// two workers claim the same task.
type Queue interface {
	// Enqueue adds a pending task. It never blocks on task execution.
	Enqueue(ctx context.Context, t *Task) error

	// ClaimNext atomically claims the pending task with the smallest
	// not-before time that is <= now, breaking ties by priority (higher
	// first) then enqueue order, and transitions it pending -> processing.
	// The claim counts as an execution attempt: the returned task's Attempt
	// is already incremented. Returns ErrNoTaskReady when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*Task, error)

	// Complete marks a claimed task done (terminal).
	Complete(ctx context.Context, t *Task) error

	// Fail records a failed execution of a claimed task. If retryable is
	// true and attempts remain, the task is re-enqueued as pending with
	// not_before = now + backoff(attempt) and retried=true is returned.
	// Otherwise the task is marked failed (terminal) with cause recorded
	// for operator inspection.
	Fail(ctx context.Context, t *Task, cause error, retryable bool) (retried bool, err error)
}

// Backoff computes the delay before a retry. Delays grow exponentially
// from Base, doubling per failed attempt, and are capped at Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff returns the retry backoff used in production.
func DefaultBackoff() Backoff {
	return Backoff{Base: 10 * time.Second, Cap: 10 * time.Minute}
}

// Delay returns the pause before the retry following the given failed
// attempt (attempt >= 1: Base, 2*Base, 4*Base, ... capped at Cap).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Cap > 0 && delay >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && delay > b.Cap {
		return b.Cap
	}
	return delay
}
