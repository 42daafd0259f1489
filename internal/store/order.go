package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
)

// OrderStore defines the persistence operations the pipeline needs for
// orders and their line items. Implementations must never expose partial
// writes to readers: CreateWithItems is transactional, and bulk operations
// either apply to every listed order or fail as a whole.
type OrderStore interface {
	// CreateWithItems persists an order and all of its items in a single
	// transaction. Returns ErrOrderNumberExists if an order with the same
	// order number already exists.
	CreateWithItems(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its items.
	// Returns ErrOrderNotFound if no such order exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// List retrieves all orders with their items, newest first.
	List(ctx context.Context) ([]*domain.Order, error)

	// ListCreatedSince retrieves orders created at or after the given time,
	// newest first, up to limit (0 means no limit). Used by the catch-up
	// sweep over recent orders.
	ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error)

	// UpdateStatus sets the status of a single order.
	// Returns ErrOrderNotFound if no such order exists.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error

	// UpdateInvoiceNumber sets the invoice number of a single order.
	// Returns ErrOrderNotFound if no such order exists.
	UpdateInvoiceNumber(ctx context.Context, id uuid.UUID, invoiceNumber string) error

	// BulkUpdateStatus sets the status of every listed order.
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.OrderStatus) error

	// BulkDelete removes every listed order and its items.
	BulkDelete(ctx context.Context, ids []uuid.UUID) error
}
