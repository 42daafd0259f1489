package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/store"
)

// PostgresOrderStore implements the store.OrderStore interface using a
// PostgreSQL database as the storage backend.
type PostgresOrderStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresOrderStore creates a new PostgreSQL implementation of the
// OrderStore interface. If logger is nil, a default logger will be used.
func NewPostgresOrderStore(db *sql.DB, logger *slog.Logger) *PostgresOrderStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOrderStore{
		db:     db,
		logger: logger.With(slog.String("component", "order_store")),
	}
}

// Ensure PostgresOrderStore implements store.OrderStore interface
var _ store.OrderStore = (*PostgresOrderStore)(nil)

// CreateWithItems saves the order and all of its items in one transaction.
// A duplicate order number surfaces as store.ErrOrderNumberExists so commit
// retries can treat it as the original success.
func (s *PostgresOrderStore) CreateWithItems(ctx context.Context, order *domain.Order) error {
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, order_number, email, purchase_order, invoice_number, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, order.OrderNumber, order.Email, order.PurchaseOrder,
			order.InvoiceNumber, order.Status, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return MapError(err)
		}

		for _, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, file_key, quantity)
				VALUES ($1, $2, $3, $4)`,
				item.ID, item.OrderID, item.FileKey, item.Quantity,
			)
			if err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"items", len(order.Items))
	return nil
}

// GetByID retrieves an order with its items.
func (s *PostgresOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_number, email, purchase_order, invoice_number, status, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(
		&order.ID, &order.OrderNumber, &order.Email, &order.PurchaseOrder,
		&order.InvoiceNumber, &order.Status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrOrderNotFound
		}
		return nil, MapError(err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, file_key, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.FileKey, &item.Quantity); err != nil {
			return nil, MapError(err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return order, nil
}

// List retrieves all orders with their items, newest first.
func (s *PostgresOrderStore) List(ctx context.Context) ([]*domain.Order, error) {
	return s.list(ctx, `
		SELECT o.id, o.order_number, o.email, o.purchase_order, o.invoice_number, o.status, o.created_at, o.updated_at,
		       i.id, i.file_key, i.quantity
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		ORDER BY o.created_at DESC, o.id, i.id`)
}

// ListCreatedSince retrieves orders created at or after the given time,
// newest first, up to limit (0 means no limit).
func (s *PostgresOrderStore) ListCreatedSince(ctx context.Context, since time.Time, limit int) ([]*domain.Order, error) {
	orders, err := s.list(ctx, `
		SELECT o.id, o.order_number, o.email, o.purchase_order, o.invoice_number, o.status, o.created_at, o.updated_at,
		       i.id, i.file_key, i.quantity
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		WHERE o.created_at >= $1
		ORDER BY o.created_at DESC, o.id, i.id`, since)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// list runs an order/items join and folds the rows into orders. The query
// must select the order columns followed by the nullable item columns and
// keep each order's rows adjacent.
func (s *PostgresOrderStore) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*domain.Order
	var current *domain.Order
	for rows.Next() {
		var (
			order    domain.Order
			itemID   uuid.NullUUID
			fileKey  sql.NullString
			quantity sql.NullInt64
		)
		err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.Email, &order.PurchaseOrder,
			&order.InvoiceNumber, &order.Status, &order.CreatedAt, &order.UpdatedAt,
			&itemID, &fileKey, &quantity,
		)
		if err != nil {
			return nil, MapError(err)
		}

		if current == nil || current.ID != order.ID {
			copied := order
			current = &copied
			orders = append(orders, current)
		}
		if itemID.Valid {
			current.Items = append(current.Items, domain.OrderItem{
				ID:       itemID.UUID,
				OrderID:  current.ID,
				FileKey:  fileKey.String,
				Quantity: int(quantity.Int64),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return orders, nil
}

// UpdateStatus sets the status of a single order.
func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	if err != nil {
		return MapError(err)
	}
	return s.requireRow(res, id)
}

// UpdateInvoiceNumber sets the invoice number of a single order.
func (s *PostgresOrderStore) UpdateInvoiceNumber(ctx context.Context, id uuid.UUID, invoiceNumber string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET invoice_number = $1, updated_at = NOW() WHERE id = $2`,
		invoiceNumber, id)
	if err != nil {
		return MapError(err)
	}
	return s.requireRow(res, id)
}

// BulkUpdateStatus sets the status of every listed order in one statement.
func (s *PostgresOrderStore) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.OrderStatus) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idArgs(ids, 2)
	args = append([]any{status}, args...)

	query := fmt.Sprintf(`UPDATE orders SET status = $1, updated_at = NOW() WHERE id IN (%s)`, placeholders)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return MapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if int(affected) != len(ids) {
		return fmt.Errorf("%w: updated %d of %d orders", store.ErrUpdateFailed, affected, len(ids))
	}
	return nil
}

// BulkDelete removes every listed order; items follow via ON DELETE CASCADE.
func (s *PostgresOrderStore) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idArgs(ids, 1)

	query := fmt.Sprintf(`DELETE FROM orders WHERE id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return MapError(err)
	}

	s.logger.Info("orders deleted", "count", len(ids))
	return nil
}

// requireRow converts a zero-row update into ErrOrderNotFound.
func (s *PostgresOrderStore) requireRow(res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrOrderNotFound, id)
	}
	return nil
}

// idArgs builds "$start, $start+1, ..." placeholders and the matching args
// slice for an id list.
func idArgs(ids []uuid.UUID, start int) (string, []any) {
	parts := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(parts, ", "), args
}
