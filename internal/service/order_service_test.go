package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/mocks"
	"github.com/phrazzld/printflow-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*OrderService, *mocks.MockOrderStore, *cache.Pipeline) {
	t.Helper()
	orders := mocks.NewMockOrderStore()
	caches := cache.NewPipeline(cache.DefaultOptions())
	return NewOrderService(orders, caches, testLogger()), orders, caches
}

func seedOrders(t *testing.T, orders *mocks.MockOrderStore, n int) []*domain.Order {
	t.Helper()
	out := make([]*domain.Order, 0, n)
	for i := 0; i < n; i++ {
		order, err := domain.NewOrder(domain.NewOrderNumber(), domain.OrderDraft{
			Email: "customer@example.com",
			Items: []domain.DraftItem{{Filename: "front.png", Quantity: 1}},
		})
		require.NoError(t, err)
		require.NoError(t, orders.CreateWithItems(context.Background(), order))
		out = append(out, order)
	}
	return out
}

func TestGetOrderReadThrough(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	order := seedOrders(t, orders, 1)[0]

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, ok := caches.GetOrder(order.ID)
	assert.True(t, ok, "miss populates the cache")

	// Second read is served from the cache.
	orders.GetByIDFn = func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
		t.Fatal("store lookup despite cached order")
		return nil, nil
	}
	_, err = svc.GetOrder(ctx, order.ID)
	assert.NoError(t, err)
}

func TestGetOrderNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t)
	_, err := svc.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}

func TestListOrdersReadThrough(t *testing.T) {
	t.Parallel()

	svc, orders, _ := newService(t)
	ctx := context.Background()
	seedOrders(t, orders, 3)

	first, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	orders.ListFn = func(ctx context.Context) ([]*domain.Order, error) {
		t.Fatal("store list despite cached snapshot")
		return nil, nil
	}
	second, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 3)
}

func TestUpdateStatusInvalidatesCache(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	order := seedOrders(t, orders, 1)[0]

	_, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	_, err = svc.ListOrders(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped))

	_, ok := caches.GetOrder(order.ID)
	assert.False(t, ok, "order entry dropped")
	_, ok = caches.GetOrderList()
	assert.False(t, ok, "list snapshot dropped")

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, got.Status, "read after write sees the mutation")
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc, orders, _ := newService(t)
	order := seedOrders(t, orders, 1)[0]

	err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatus("lost"))
	assert.ErrorIs(t, err, domain.ErrInvalidOrderStatus)
}

func TestUpdateStatusFailureKeepsCache(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	order := seedOrders(t, orders, 1)[0]

	_, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)

	orders.UpdateStatusFn = func(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
		return assert.AnError
	}
	require.Error(t, svc.UpdateStatus(ctx, order.ID, domain.OrderStatusShipped))

	_, ok := caches.GetOrder(order.ID)
	assert.True(t, ok, "failed mutation does not drop the entry")
}

func TestUpdateInvoiceNumberInvalidatesCache(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	order := seedOrders(t, orders, 1)[0]

	_, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateInvoiceNumber(ctx, order.ID, "INV-1001"))

	_, ok := caches.GetOrder(order.ID)
	assert.False(t, ok)

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", got.InvoiceNumber)
}

func TestBulkUpdateStatusInvalidatesEveryEntry(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	seeded := seedOrders(t, orders, 10)

	ids := make([]uuid.UUID, 0, len(seeded))
	for _, order := range seeded {
		_, err := svc.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}
	_, err := svc.ListOrders(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.BulkUpdateStatus(ctx, ids, domain.OrderStatusInProduction))

	for _, id := range ids {
		_, ok := caches.GetOrder(id)
		assert.False(t, ok, "entry for %s survived the bulk update", id)
	}
	_, ok := caches.GetOrderList()
	assert.False(t, ok, "list snapshot survived the bulk update")

	for _, id := range ids {
		got, err := svc.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusInProduction, got.Status)
	}
}

func TestBulkDeleteInvalidatesEveryEntry(t *testing.T) {
	t.Parallel()

	svc, orders, caches := newService(t)
	ctx := context.Background()
	seeded := seedOrders(t, orders, 4)

	ids := make([]uuid.UUID, 0, len(seeded))
	for _, order := range seeded {
		_, err := svc.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	require.NoError(t, svc.BulkDelete(ctx, ids[:2]))

	for _, id := range ids[:2] {
		_, ok := caches.GetOrder(id)
		assert.False(t, ok)
		_, err := svc.GetOrder(ctx, id)
		assert.ErrorIs(t, err, store.ErrOrderNotFound)
	}
	for _, id := range ids[2:] {
		_, err := svc.GetOrder(ctx, id)
		assert.NoError(t, err)
	}
}
