package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// claimScript atomically moves the due task with the smallest score from the
// pending set to the claimed set and returns its id. Running it as a script
// is what makes the claim safe across competing worker processes.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[1], ids[1])
return ids[1]
`)

// RedisQueue is the Redis-backed Queue implementation. Task records live as
// JSON under <prefix>:task:<id>; scheduling state lives in two sorted sets,
// <prefix>:pending scored by not-before and <prefix>:claimed scored by claim
// time. The claimed set makes tasks stuck by a dead worker recoverable.
//
// Ordering note: Redis resolves equal not-before scores lexicographically by
// id rather than by task priority. Priority-sensitive callers should stagger
// not-before instead.
type RedisQueue struct {
	client      *redis.Client
	prefix      string
	backoff     Backoff
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

// NewRedisQueue creates a queue on the given client. prefix namespaces all
// keys so several deployments can share one Redis.
func NewRedisQueue(client *redis.Client, prefix string, backoff Backoff, logger *slog.Logger) *RedisQueue {
	if prefix == "" {
		prefix = "printflow"
	}
	return &RedisQueue{
		client:      client,
		prefix:      prefix,
		backoff:     backoff,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMaxAttempts overrides the attempt bound applied to tasks enqueued
// without an explicit MaxAttempts.
func (q *RedisQueue) SetMaxAttempts(n int) {
	if n > 0 {
		q.maxAttempts = n
	}
}

func (q *RedisQueue) pendingKey() string { return q.prefix + ":pending" }
func (q *RedisQueue) claimedKey() string { return q.prefix + ":claimed" }
func (q *RedisQueue) taskKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:task:%s", q.prefix, id)
}

// Enqueue stores the task record and schedules it in the pending set.
func (q *RedisQueue) Enqueue(ctx context.Context, t *Task) error {
	t.Status = StatusPending
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = q.maxAttempts
	}
	if err := q.saveTask(ctx, t); err != nil {
		return err
	}
	err := q.client.ZAdd(ctx, q.pendingKey(), &redis.Z{
		Score:  float64(t.NotBefore.UnixMilli()),
		Member: t.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", t.ID, err)
	}
	q.logger.Debug("task enqueued",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"not_before", t.NotBefore)
	return nil
}

// ClaimNext claims the due task with the smallest not-before, if any.
func (q *RedisQueue) ClaimNext(ctx context.Context, now time.Time) (*Task, error) {
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(), q.claimedKey()},
		now.UnixMilli()).Result()
	if err == redis.Nil {
		return nil, ErrNoTaskReady
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next task: %w", err)
	}
	id, err := uuid.Parse(res.(string))
	if err != nil {
		return nil, fmt.Errorf("failed to parse claimed task id %q: %w", res, err)
	}

	t, err := q.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Status = StatusProcessing
	t.Attempt++
	if err := q.saveTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Complete removes a done task entirely; the record is not retained.
func (q *RedisQueue) Complete(ctx context.Context, t *Task) error {
	removed, err := q.client.ZRem(ctx, q.claimedKey(), t.ID.String()).Result()
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", t.ID, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	t.Status = StatusDone
	if err := q.client.Del(ctx, q.taskKey(t.ID)).Err(); err != nil {
		return fmt.Errorf("failed to delete task record %s: %w", t.ID, err)
	}
	return nil
}

// Fail re-schedules a retryable failure with backoff, or marks the task
// failed and keeps its record for operator inspection.
func (q *RedisQueue) Fail(ctx context.Context, t *Task, cause error, retryable bool) (bool, error) {
	removed, err := q.client.ZRem(ctx, q.claimedKey(), t.ID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to release task %s: %w", t.ID, err)
	}
	if removed == 0 {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	if cause != nil {
		t.LastError = cause.Error()
	}

	if retryable && t.Attempt < t.MaxAttempts {
		t.Status = StatusPending
		t.NotBefore = q.now().Add(q.backoff.Delay(t.Attempt))
		if err := q.saveTask(ctx, t); err != nil {
			return false, err
		}
		err := q.client.ZAdd(ctx, q.pendingKey(), &redis.Z{
			Score:  float64(t.NotBefore.UnixMilli()),
			Member: t.ID.String(),
		}).Err()
		if err != nil {
			return false, fmt.Errorf("failed to reschedule task %s: %w", t.ID, err)
		}
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
	if err := q.saveTask(ctx, t); err != nil {
		return false, err
	}
	q.logger.Error("task failed terminally",
		"task_id", t.ID,
		"task_kind", t.Kind,
		"attempt", t.Attempt,
		"max_attempts", t.MaxAttempts,
		"retryable", retryable,
		"error", t.LastError)
	return false, nil
}

// RecoverStuck returns to pending every claimed task whose claim is older
// than olderThan. Run periodically so tasks claimed by a crashed worker
// process are not lost; the re-claim counts as a fresh attempt.
func (q *RedisQueue) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := q.now().Add(-olderThan).UnixMilli()
	ids, err := q.client.ZRangeByScore(ctx, q.claimedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan stuck tasks: %w", err)
	}

	recovered := 0
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		t, err := q.loadTask(ctx, id)
		if err != nil {
			// Record gone; drop the orphaned claim entry.
			q.client.ZRem(ctx, q.claimedKey(), raw)
			continue
		}
		t.Status = StatusPending
		t.NotBefore = q.now()
		if err := q.saveTask(ctx, t); err != nil {
			return recovered, err
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.claimedKey(), raw)
		pipe.ZAdd(ctx, q.pendingKey(), &redis.Z{
			Score:  float64(t.NotBefore.UnixMilli()),
			Member: raw,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, fmt.Errorf("failed to recover task %s: %w", id, err)
		}
		recovered++
		q.logger.Warn("recovered stuck task",
			"task_id", t.ID,
			"task_kind", t.Kind,
			"attempt", t.Attempt)
	}
	return recovered, nil
}

func (q *RedisQueue) saveTask(ctx context.Context, t *Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
	}
	if err := q.client.Set(ctx, q.taskKey(t.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store task %s: %w", t.ID, err)
	}
	return nil
}

func (q *RedisQueue) loadTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	raw, err := q.client.Get(ctx, q.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &t, nil
}
