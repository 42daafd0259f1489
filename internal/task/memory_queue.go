package task

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is the in-memory Queue implementation. It is the default for
// single-node deployments and for tests. Failed tasks are retained for
// operator inspection; done tasks are dropped.
type MemoryQueue struct {
	mu      sync.Mutex
	pending pendingHeap
	claimed     map[uuid.UUID]*Task
	failed      map[uuid.UUID]*Task
	seq         uint64
	backoff     Backoff
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue using the given backoff
// policy for retries.
func NewMemoryQueue(backoff Backoff, logger *slog.Logger) *MemoryQueue {
	return &MemoryQueue{
		claimed:     make(map[uuid.UUID]*Task),
		failed:      make(map[uuid.UUID]*Task),
		backoff:     backoff,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxAttempts overrides the attempt bound applied to tasks enqueued
// without an explicit MaxAttempts.
func (q *MemoryQueue) SetMaxAttempts(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > 0 {
		q.maxAttempts = n
	}
}

// SetClock overrides the queue's time source. Tests use it to control
// retry scheduling.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a pending task.
func (q *MemoryQueue) Enqueue(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	t.Status = StatusPending
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = q.maxAttempts
	}
	q.push(t)

	q.logger.Debug("task enqueued",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"not_before", t.NotBefore,
		"queue_len", q.pending.Len())
	return nil
}

// ClaimNext claims the next ready task. The heap ordering makes the claim
// deterministic; holding the queue lock across pop-and-mark makes it
// atomic, so no two workers can claim the same task.
func (q *MemoryQueue) ClaimNext(ctx context.Context, now time.Time) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending.Len() == 0 {
		return nil, ErrNoTaskReady
	}
	next := q.pending.items[0].task
	if next.NotBefore.After(now) {
		return nil, ErrNoTaskReady
	}

	heap.Pop(&q.pending)
	next.Status = StatusProcessing
	next.Attempt++
	q.claimed[next.ID] = next
	return next, nil
}

// Complete marks a claimed task done.
func (q *MemoryQueue) Complete(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.claimed[t.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	delete(q.claimed, t.ID)
	t.Status = StatusDone
	return nil
}

// Fail records a failed execution, re-enqueueing with backoff when the
// failure is retryable and attempts remain.
func (q *MemoryQueue) Fail(ctx context.Context, t *Task, cause error, retryable bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.claimed[t.ID]; !ok {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	delete(q.claimed, t.ID)

	if cause != nil {
		t.LastError = cause.Error()
	}

	if retryable && t.Attempt < t.MaxAttempts {
		t.Status = StatusPending
		t.NotBefore = q.now().Add(q.backoff.Delay(t.Attempt))
		q.push(t)
		q.logger.Info("task scheduled for retry",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"attempt", t.Attempt,
			"max_attempts", t.MaxAttempts,
			"not_before", t.NotBefore,
			"error", t.LastError)
		return true, nil
	}

	t.Status = StatusFailed
	q.failed[t.ID] = t
	q.logger.Error("task failed terminally",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"attempt", t.Attempt,
		"max_attempts", t.MaxAttempts,
		"retryable", retryable,
		"error", t.LastError)
	return false, nil
}

// FailedTasks returns the tasks left in the terminal failed state, for
// operator inspection.
func (q *MemoryQueue) FailedTasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, 0, len(q.failed))
	for _, t := range q.failed {
		out = append(out, t)
	}
	return out
}

// StatusOf returns the queue's view of the task's current status. All
// status writes happen under the queue lock, so reading under it is safe
// from any goroutine.
func (q *MemoryQueue) StatusOf(t *Task) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return t.Status
}

// PendingLen reports the number of tasks waiting to be claimed.
func (q *MemoryQueue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// push must be called with q.mu held.
func (q *MemoryQueue) push(t *Task) {
	q.seq++
	heap.Push(&q.pending, pendingItem{task: t, seq: q.seq})
}

// pendingItem pairs a task with its enqueue sequence so ties on not-before
// and priority resolve FIFO.
type pendingItem struct {
	task *Task
	seq  uint64
}

type pendingHeap struct {
	items []pendingItem
}

func (h pendingHeap) Len() int { return len(h.items) }

func (h pendingHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if !a.task.NotBefore.Equal(b.task.NotBefore) {
		return a.task.NotBefore.Before(b.task.NotBefore)
	}
	if a.task.Priority != b.task.Priority {
		return a.task.Priority > b.task.Priority
	}
	return a.seq < b.seq
}

func (h pendingHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *pendingHeap) Push(x any) {
	h.items = append(h.items, x.(pendingItem))
}

func (h *pendingHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
