package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/store"
)

// MockOrderStore implements store.OrderStore for testing.
type MockOrderStore struct {
	mu sync.Mutex

	// Function fields for customizable behavior
	CreateWithItemsFn     func(ctx context.Context, order *domain.Order) error
	GetByIDFn             func(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListFn                func(ctx context.Context) ([]*domain.Order, error)
	ListCreatedSinceFn    func(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error)
	UpdateStatusFn        func(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	UpdateInvoiceNumberFn func(ctx context.Context, id uuid.UUID, invoiceNumber string) error
	BulkUpdateStatusFn    func(ctx context.Context, ids []uuid.UUID, status domain.OrderStatus) error
	BulkDeleteFn          func(ctx context.Context, ids []uuid.UUID) error

	// Data for the default implementation
	Orders map[uuid.UUID]*domain.Order
}

// NewMockOrderStore creates a mock store with initialized defaults.
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		Orders: make(map[uuid.UUID]*domain.Order),
	}
}

// CreateWithItems implements the OrderStore interface.
func (m *MockOrderStore) CreateWithItems(ctx context.Context, order *domain.Order) error {
	if m.CreateWithItemsFn != nil {
		return m.CreateWithItemsFn(ctx, order)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Orders {
		if existing.OrderNumber == order.OrderNumber {
			return store.ErrOrderNumberExists
		}
	}
	m.Orders[order.ID] = order
	return nil
}

// GetByID implements the OrderStore interface.
func (m *MockOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return order, nil
}

// List implements the OrderStore interface.
func (m *MockOrderStore) List(ctx context.Context) ([]*domain.Order, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(), nil
}

// ListCreatedSince implements the OrderStore interface.
func (m *MockOrderStore) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error) {
	if m.ListCreatedSinceFn != nil {
		return m.ListCreatedSinceFn(ctx, since, limit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, order := range m.sortedLocked() {
		if order.CreatedAt.Before(since) {
			continue
		}
		out = append(out, order)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateStatus implements the OrderStore interface.
func (m *MockOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return store.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateInvoiceNumber implements the OrderStore interface.
func (m *MockOrderStore) UpdateInvoiceNumber(ctx context.Context, id uuid.UUID, invoiceNumber string) error {
	if m.UpdateInvoiceNumberFn != nil {
		return m.UpdateInvoiceNumberFn(ctx, id, invoiceNumber)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return store.ErrOrderNotFound
	}
	order.InvoiceNumber = invoiceNumber
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// BulkUpdateStatus implements the OrderStore interface.
func (m *MockOrderStore) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.OrderStatus) error {
	if m.BulkUpdateStatusFn != nil {
		return m.BulkUpdateStatusFn(ctx, ids, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		order, ok := m.Orders[id]
		if !ok {
			return store.ErrOrderNotFound
		}
		order.Status = status
		order.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// BulkDelete implements the OrderStore interface.
func (m *MockOrderStore) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	if m.BulkDeleteFn != nil {
		return m.BulkDeleteFn(ctx, ids)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.Orders, id)
	}
	return nil
}

// sortedLocked returns the stored orders newest first. Callers must hold
// m.mu.
func (m *MockOrderStore) sortedLocked() []*domain.Order {
	out := make([]*domain.Order, 0, len(m.Orders))
	for _, order := range m.Orders {
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
