package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/store"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

// Sweep defaults, applied when the payload and config leave them zero.
const (
	DefaultSweepWindow   = 24 * time.Hour
	DefaultSweepMaxBatch = 20
)

// SweepHandler executes sweep_recent tasks: it scans orders created within a
// recent window and enqueues thumbnail tasks for items whose derived
// artifact is missing. The per-run batch is bounded so catch-up after an
// outage never produces an unbounded burst of work.
type SweepHandler struct {
	orders   store.OrderStore
	objects  objectstore.Store
	caches   *cache.Pipeline
	queue    Queue
	window   time.Duration
	maxBatch int
	logger   *slog.Logger
}

// NewSweepHandler creates the handler. window and maxBatch are the defaults
// used when the task payload does not override them; zero values fall back
// to DefaultSweepWindow and DefaultSweepMaxBatch.
func NewSweepHandler(
	orders store.OrderStore,
	objects objectstore.Store,
	caches *cache.Pipeline,
	queue Queue,
	window time.Duration,
	maxBatch int,
	logger *slog.Logger,
) *SweepHandler {
	if window <= 0 {
		window = DefaultSweepWindow
	}
	if maxBatch <= 0 {
		maxBatch = DefaultSweepMaxBatch
	}
	return &SweepHandler{
		orders:   orders,
		objects:  objects,
		caches:   caches,
		queue:    queue,
		window:   window,
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Handle runs one sweep. Store failures leave the task retryable; the next
// run re-scans from scratch, which is safe because enqueued thumbnail tasks
// are themselves idempotent.
func (h *SweepHandler) Handle(ctx context.Context, t *Task) error {
	var p SweepPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("%w: invalid sweep payload: %v", ErrNonRetryable, err)
	}
	window := p.Window
	if window <= 0 {
		window = h.window
	}
	maxBatch := p.MaxBatch
	if maxBatch <= 0 {
		maxBatch = h.maxBatch
	}

	since := time.Now().UTC().Add(-window)
	orders, err := h.orders.ListCreatedSince(ctx, since, 0)
	if err != nil {
		return fmt.Errorf("failed to list recent orders: %w", err)
	}

	enqueued := 0
	scanned := 0
	for _, order := range orders {
		for _, item := range order.Items {
			if enqueued >= maxBatch {
				h.logger.Info("sweep reached batch limit",
					"enqueued", enqueued,
					"scanned", scanned,
					"max_batch", maxBatch)
				return nil
			}
			scanned++

			missing, err := h.thumbnailMissing(ctx, item.FileKey)
			if err != nil {
				return err
			}
			if !missing {
				continue
			}

			task, err := New(KindThumbnail, ThumbnailPayload{FileKey: item.FileKey})
			if err != nil {
				return fmt.Errorf("failed to build thumbnail task for %s: %w", item.FileKey, err)
			}
			if err := h.queue.Enqueue(ctx, task); err != nil {
				return fmt.Errorf("failed to enqueue thumbnail task for %s: %w", item.FileKey, err)
			}
			enqueued++
		}
	}

	h.logger.Info("sweep completed",
		"enqueued", enqueued,
		"scanned", scanned,
		"window", window)
	return nil
}

// thumbnailMissing reports whether the derived artifact for fileKey is
// absent, consulting the existence cache before probing the store.
func (h *SweepHandler) thumbnailMissing(ctx context.Context, fileKey string) (bool, error) {
	derived := thumbnail.DerivedKey(fileKey)

	if exists, known := h.caches.ThumbnailExists(derived); known {
		return !exists, nil
	}

	_, err := h.objects.Get(ctx, derived)
	if err == nil {
		h.caches.MarkThumbnail(derived, true)
		return false, nil
	}
	if errors.Is(err, objectstore.ErrNotFound) {
		h.caches.MarkThumbnail(derived, false)
		return true, nil
	}
	return false, fmt.Errorf("failed to probe thumbnail %s: %w", derived, err)
}
