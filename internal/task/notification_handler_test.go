package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/mail"
	"github.com/phrazzld/printflow-api/internal/mocks"
)

func seedOrder(t *testing.T, orders *mocks.MockOrderStore) *domain.Order {
	t.Helper()
	draft := domain.OrderDraft{
		Email: "customer@example.com",
		Items: []domain.DraftItem{{Filename: "front.png", Quantity: 2}},
	}
	order, err := domain.NewOrder(domain.NewOrderNumber(), draft)
	require.NoError(t, err)
	order.Items = []domain.OrderItem{{
		ID:       uuid.New(),
		OrderID:  order.ID,
		FileKey:  fmt.Sprintf("orders/%s/front.png", order.OrderNumber),
		Quantity: 2,
	}}
	require.NoError(t, orders.CreateWithItems(context.Background(), order))
	return order
}

func newNotifyTask(t *testing.T, kind Kind, orderID uuid.UUID) *Task {
	t.Helper()
	task, err := New(kind, NotificationPayload{OrderID: orderID})
	require.NoError(t, err)
	return task
}

// runThroughQueue executes a task to a terminal state the way the worker
// pool would: claim, handle, complete or fail with the handler's
// classification, advancing a synthetic clock past each backoff.
func runThroughQueue(t *testing.T, q *MemoryQueue, h Handler, task *Task) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	require.NoError(t, q.Enqueue(ctx, task))

	for i := 0; i < task.MaxAttempts+1; i++ {
		now = now.Add(time.Hour)
		claimed, err := q.ClaimNext(ctx, now)
		if errors.Is(err, ErrNoTaskReady) {
			return
		}
		require.NoError(t, err)

		herr := h.Handle(ctx, claimed)
		if herr == nil {
			require.NoError(t, q.Complete(ctx, claimed))
			return
		}
		_, err = q.Fail(ctx, claimed, herr, !errors.Is(herr, ErrNonRetryable))
		require.NoError(t, err)
	}
}

func TestNotificationHandlerDelivery(t *testing.T) {
	t.Parallel()

	team := []string{"production@example.com", "scheduling@example.com"}

	t.Run("customer confirmation goes to the order email", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		order := seedOrder(t, orders)
		transport := mocks.NewMockTransport()
		h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, transport, team, testLogger())

		require.NoError(t, h.Handle(context.Background(), newNotifyTask(t, KindNotifyCustomer, order.ID)))

		require.Len(t, transport.Sent, 1)
		assert.Equal(t, []string{order.Email}, transport.Sent[0].To)
		assert.Contains(t, transport.Sent[0].Subject, order.OrderNumber)
	})

	t.Run("production notice goes to every team member", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		order := seedOrder(t, orders)
		transport := mocks.NewMockTransport()
		h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, transport, team, testLogger())

		require.NoError(t, h.Handle(context.Background(), newNotifyTask(t, KindNotifyProduction, order.ID)))

		require.Len(t, transport.Sent, 2)
		assert.Equal(t, []string{team[0]}, transport.Sent[0].To)
		assert.Equal(t, []string{team[1]}, transport.Sent[1].To)
	})

	t.Run("cached order is used without a store lookup", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		order := seedOrder(t, orders)
		orders.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			t.Fatal("store lookup despite cached order")
			return nil, nil
		}
		caches := cache.NewPipeline(cache.DefaultOptions())
		caches.PutOrder(order)
		transport := mocks.NewMockTransport()
		h := NewNotificationHandler(orders, caches, mail.DefaultRenderer{}, transport, team, testLogger())

		require.NoError(t, h.Handle(context.Background(), newNotifyTask(t, KindNotifyCustomer, order.ID)))
		assert.Equal(t, 1, transport.SentCount())
	})

	t.Run("unknown order is non-retryable", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, mocks.NewMockTransport(), team, testLogger())

		err := h.Handle(context.Background(), newNotifyTask(t, KindNotifyCustomer, uuid.New()))
		assert.ErrorIs(t, err, ErrNonRetryable)
	})

	t.Run("empty production team is non-retryable", func(t *testing.T) {
		orders := mocks.NewMockOrderStore()
		order := seedOrder(t, orders)
		h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, mocks.NewMockTransport(), nil, testLogger())

		err := h.Handle(context.Background(), newNotifyTask(t, KindNotifyProduction, order.ID))
		assert.ErrorIs(t, err, ErrNonRetryable)
	})
}

func TestNotificationPermanentRejectionFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	orders := mocks.NewMockOrderStore()
	order := seedOrder(t, orders)
	transport := mocks.NewMockTransport()
	transport.SendFn = func(ctx context.Context, msg mail.Message) error {
		return mail.ClassifyStatus(400)
	}
	h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, transport, nil, testLogger())

	q := NewMemoryQueue(DefaultBackoff(), testLogger())
	task := newNotifyTask(t, KindNotifyCustomer, order.ID)
	runThroughQueue(t, q, h, task)

	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, 1, task.Attempt, "permanent rejection must not burn retries")
	assert.Equal(t, 1, transport.SentCount(), "exactly one send attempt")
	assert.NotEmpty(t, task.LastError)
}

func TestNotificationTransientFailureRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	orders := mocks.NewMockOrderStore()
	order := seedOrder(t, orders)
	transport := mocks.NewMockTransport()
	transport.SendFn = func(ctx context.Context, msg mail.Message) error {
		if transport.SentCount() <= 2 {
			return mail.ClassifyStatus(503)
		}
		return nil
	}
	h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, transport, nil, testLogger())

	q := NewMemoryQueue(DefaultBackoff(), testLogger())
	task := newNotifyTask(t, KindNotifyCustomer, order.ID)
	runThroughQueue(t, q, h, task)

	assert.Equal(t, StatusDone, task.Status)
	assert.Equal(t, 3, task.Attempt, "two transient failures then a success")
	assert.Equal(t, 3, transport.SentCount())
}

func TestNotificationRetriesAreBoundedByMaxAttempts(t *testing.T) {
	t.Parallel()

	orders := mocks.NewMockOrderStore()
	order := seedOrder(t, orders)
	transport := mocks.NewMockTransport()
	transport.SendFn = func(ctx context.Context, msg mail.Message) error {
		return mail.ClassifyStatus(503)
	}
	h := NewNotificationHandler(orders, cache.NewPipeline(cache.DefaultOptions()), mail.DefaultRenderer{}, transport, nil, testLogger())

	q := NewMemoryQueue(DefaultBackoff(), testLogger())
	task := newNotifyTask(t, KindNotifyCustomer, order.ID)
	runThroughQueue(t, q, h, task)

	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, task.MaxAttempts, task.Attempt)
	assert.Equal(t, task.MaxAttempts, transport.SentCount(), "no sends beyond the attempt bound")
}
