// Package service exposes the order read and mutation operations consumed
// by the request layer, layering the read-side caches over the order store
// and keeping them consistent with every mutation.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/store"
)

// OrderService reads orders through the cache pipeline and invalidates it
// synchronously on every mutation: a caller that saw a mutation succeed must
// never read a value cached before that mutation.
type OrderService struct {
	orders store.OrderStore
	caches *cache.Pipeline
	logger *slog.Logger
}

// NewOrderService creates the service.
func NewOrderService(orders store.OrderStore, caches *cache.Pipeline, logger *slog.Logger) *OrderService {
	return &OrderService{orders: orders, caches: caches, logger: logger}
}

// GetOrder returns one order with its items, read through the order cache.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if order, ok := s.caches.GetOrder(id); ok {
		return order, nil
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.caches.PutOrder(order)
	return order, nil
}

// ListOrders returns all orders newest first, read through the list
// snapshot cache.
func (s *OrderService) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	if orders, ok := s.caches.GetOrderList(); ok {
		return orders, nil
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, err
	}
	s.caches.PutOrderList(orders)
	return orders, nil
}

// UpdateStatus sets one order's status and invalidates its cache entries
// before returning.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if !domain.ValidOrderStatus(status) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, status)
	}
	if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.caches.InvalidateOrder(id)

	s.logger.Info("order status updated", "order_id", id, "status", status)
	return nil
}

// UpdateInvoiceNumber sets one order's invoice number and invalidates its
// cache entries before returning.
func (s *OrderService) UpdateInvoiceNumber(ctx context.Context, id uuid.UUID, invoiceNumber string) error {
	if err := s.orders.UpdateInvoiceNumber(ctx, id, invoiceNumber); err != nil {
		return err
	}
	s.caches.InvalidateOrder(id)

	s.logger.Info("order invoice number updated", "order_id", id)
	return nil
}

// BulkUpdateStatus sets the status of every listed order in one store call
// and invalidates every touched entry plus the list snapshot.
func (s *OrderService) BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, status domain.OrderStatus) error {
	if !domain.ValidOrderStatus(status) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidOrderStatus, status)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.orders.BulkUpdateStatus(ctx, ids, status); err != nil {
		return err
	}
	for _, id := range ids {
		s.caches.InvalidateOrder(id)
	}

	s.logger.Info("orders bulk status updated", "count", len(ids), "status", status)
	return nil
}

// BulkDelete removes every listed order and invalidates every touched entry
// plus the list snapshot.
func (s *OrderService) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.orders.BulkDelete(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.caches.InvalidateOrder(id)
	}

	s.logger.Info("orders bulk deleted", "count", len(ids))
	return nil
}
