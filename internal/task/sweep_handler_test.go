package task

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/mocks"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

func seedOrderWithFiles(t *testing.T, orders *mocks.MockOrderStore, age time.Duration, files ...string) *domain.Order {
	t.Helper()
	draft := domain.OrderDraft{Email: "customer@example.com"}
	for _, f := range files {
		draft.Items = append(draft.Items, domain.DraftItem{Filename: f, Quantity: 1})
	}
	order, err := domain.NewOrder(domain.NewOrderNumber(), draft)
	require.NoError(t, err)
	for i, f := range files {
		order.Items[i].FileKey = fmt.Sprintf("orders/%s/%s", order.OrderNumber, f)
	}
	order.CreatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, orders.CreateWithItems(context.Background(), order))
	return order
}

func newSweepTask(t *testing.T, p SweepPayload) *Task {
	t.Helper()
	task, err := New(KindSweepRecent, p)
	require.NoError(t, err)
	return task
}

func drainThumbnailTasks(t *testing.T, q *MemoryQueue) []ThumbnailPayload {
	t.Helper()
	var out []ThumbnailPayload
	for {
		claimed, err := q.ClaimNext(context.Background(), time.Now().UTC())
		if err != nil {
			return out
		}
		require.Equal(t, KindThumbnail, claimed.Kind)
		var p ThumbnailPayload
		require.NoError(t, json.Unmarshal(claimed.Payload, &p))
		out = append(out, p)
		require.NoError(t, q.Complete(context.Background(), claimed))
	}
}

func TestSweepHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("enqueues thumbnails only for missing artifacts in the window", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		objects := objectstore.NewMemoryStore()
		caches := cache.NewPipeline(cache.DefaultOptions())
		q := NewMemoryQueue(DefaultBackoff(), testLogger())

		recent := seedOrderWithFiles(t, orders, time.Hour, "front.png", "back.png")
		seedOrderWithFiles(t, orders, 48*time.Hour, "stale.png")

		// back.png already has its artifact stored.
		covered := thumbnail.DerivedKey(recent.Items[1].FileKey)
		require.NoError(t, objects.Put(ctx, covered, []byte("thumb")))

		h := NewSweepHandler(orders, objects, caches, q, 24*time.Hour, 20, testLogger())
		require.NoError(t, h.Handle(ctx, newSweepTask(t, SweepPayload{})))

		enqueued := drainThumbnailTasks(t, q)
		require.Len(t, enqueued, 1)
		assert.Equal(t, recent.Items[0].FileKey, enqueued[0].FileKey)

		exists, known := caches.ThumbnailExists(covered)
		assert.True(t, known, "stored artifact is adopted into the cache")
		assert.True(t, exists)
	})

	t.Run("batch size bounds the enqueued burst", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		objects := objectstore.NewMemoryStore()
		q := NewMemoryQueue(DefaultBackoff(), testLogger())

		files := make([]string, 7)
		for i := range files {
			files[i] = fmt.Sprintf("design-%d.png", i)
		}
		seedOrderWithFiles(t, orders, time.Hour, files...)

		h := NewSweepHandler(orders, objects, cache.NewPipeline(cache.DefaultOptions()), q, 24*time.Hour, 3, testLogger())
		require.NoError(t, h.Handle(ctx, newSweepTask(t, SweepPayload{})))

		assert.Len(t, drainThumbnailTasks(t, q), 3)
	})

	t.Run("payload overrides window and batch size", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		objects := objectstore.NewMemoryStore()
		q := NewMemoryQueue(DefaultBackoff(), testLogger())

		seedOrderWithFiles(t, orders, 2*time.Hour, "a.png", "b.png")

		h := NewSweepHandler(orders, objects, cache.NewPipeline(cache.DefaultOptions()), q, 24*time.Hour, 20, testLogger())
		require.NoError(t, h.Handle(ctx, newSweepTask(t, SweepPayload{Window: time.Hour, MaxBatch: 1})))

		assert.Empty(t, drainThumbnailTasks(t, q), "order is outside the overridden window")
	})

	t.Run("store failure leaves the task retryable", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		orders.ListCreatedSinceFn = func(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error) {
			return nil, assert.AnError
		}
		q := NewMemoryQueue(DefaultBackoff(), testLogger())

		h := NewSweepHandler(orders, objectstore.NewMemoryStore(), cache.NewPipeline(cache.DefaultOptions()), q, 24*time.Hour, 20, testLogger())
		err := h.Handle(ctx, newSweepTask(t, SweepPayload{}))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNonRetryable)
	})
}
