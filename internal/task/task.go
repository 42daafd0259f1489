package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the handler responsible for a task.
type Kind string

// Task kinds processed by the pipeline.
const (
	KindThumbnail        Kind = "thumbnail"
	KindNotifyCustomer   Kind = "notify_customer"
	KindNotifyProduction Kind = "notify_production"
	KindSweepRecent      Kind = "sweep_recent"
)

// Status represents the current state of a task.
type Status string

// Possible task status values. A task transitions
// pending -> processing -> done, or processing -> pending on a retryable
// failure with attempts remaining, or processing -> failed otherwise.
// done and failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts bounds how many times a task executes before it is
// marked failed.
const DefaultMaxAttempts = 4

// ErrNonRetryable marks a handler failure that will not succeed on retry
// (missing source object, invalid payload, permanently rejected recipient).
// The queue moves such tasks straight to failed regardless of the attempts
// remaining.
var ErrNonRetryable = errors.New("non-retryable task failure")

// Task is one unit of background work. Records are JSON-serializable so
// durable queue backings can store one keyed record per task id.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	NotBefore   time.Time       `json:"not_before"`
	Status      Status          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
}

// New creates a pending task of the given kind, scheduled to run
// immediately, with the payload marshalled to JSON. MaxAttempts is left
// zero; the queue fills in its configured bound on enqueue, so callers
// only set it to override the bound for one task.
func New(kind Kind, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s task: %w", kind, err)
	}
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: now,
		NotBefore: now,
		Status:    StatusPending,
	}, nil
}

// ThumbnailPayload is the payload of a thumbnail task.
type ThumbnailPayload struct {
	FileKey string `json:"file_key"`
}

// NotificationPayload is the payload of a notify_customer or
// notify_production task.
type NotificationPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// SweepPayload is the payload of a sweep_recent task. Zero values fall back
// to the handler's configured defaults.
type SweepPayload struct {
	Window   time.Duration `json:"window,omitempty"`
	MaxBatch int           `json:"max_batch,omitempty"`
}
