package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

// Possible order status values
const (
	OrderStatusPending      OrderStatus = "pending"
	OrderStatusInProduction OrderStatus = "in_production"
	OrderStatusShipped      OrderStatus = "shipped"
	OrderStatusCancelled    OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusInProduction, OrderStatusShipped, OrderStatusCancelled:
		return true
	}
	return false
}

// Order represents a committed print order. An order is created exactly once,
// when an upload session with all files complete is committed; background
// work (thumbnails, notifications) derives from it but never mutates it.
type Order struct {
	ID            uuid.UUID   `json:"id"`
	OrderNumber   string      `json:"order_number"`
	Email         string      `json:"email"`
	PurchaseOrder string      `json:"purchase_order,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	Status        OrderStatus `json:"status"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is a single line item of an order. FileKey is the final object
// store key of the combined upload for this item.
type OrderItem struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	FileKey  string    `json:"file_key"`
	Quantity int       `json:"quantity"`
}

// NewOrderNumber generates a human-facing order number of the form
// DTF-XXXXXXXX, where X is an uppercase hex digit.
func NewOrderNumber() string {
	return "DTF-" + strings.ToUpper(uuid.New().String()[:8])
}

// NewOrder creates a pending order from a committed draft. Item file keys are
// filled in by the caller once the combined uploads have been stored under
// their final keys.
func NewOrder(orderNumber string, draft OrderDraft) (*Order, error) {
	if orderNumber == "" {
		return nil, fmt.Errorf("%w: order number cannot be empty", ErrValidation)
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &Order{
		ID:            uuid.New(),
		OrderNumber:   orderNumber,
		Email:         draft.Email,
		PurchaseOrder: draft.PurchaseOrder,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, item := range draft.Items {
		order.Items = append(order.Items, OrderItem{
			ID:       uuid.New(),
			OrderID:  order.ID,
			Quantity: item.Quantity,
		})
	}

	return order, nil
}

// OrderDraft holds the metadata a client declares when it opens an upload
// session. The declared items name the files the session is expected to
// receive; the session is not order-ready until each declared file has been
// fully received and combined.
type OrderDraft struct {
	Email         string      `json:"email"`
	PurchaseOrder string      `json:"purchase_order,omitempty"`
	Items         []DraftItem `json:"items"`
}

// DraftItem declares one expected file and its print quantity.
type DraftItem struct {
	Filename string `json:"filename"`
	Quantity int    `json:"quantity"`
}

// Validate checks the draft for structural problems. All validation failures
// wrap ErrValidation so callers can classify them as non-retryable.
func (d OrderDraft) Validate() error {
	if d.Email == "" {
		return fmt.Errorf("%w: email cannot be empty", ErrValidation)
	}
	if !strings.Contains(d.Email, "@") {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, d.Email)
	}
	if len(d.Items) == 0 {
		return ErrEmptyDraft
	}

	seen := make(map[string]bool, len(d.Items))
	for _, item := range d.Items {
		if item.Filename == "" {
			return fmt.Errorf("%w: item filename cannot be empty", ErrValidation)
		}
		if strings.ContainsAny(item.Filename, "/\\") {
			return fmt.Errorf("%w: item filename %q must not contain path separators", ErrValidation, item.Filename)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", ErrValidation)
		}
		if seen[item.Filename] {
			return fmt.Errorf("%w: duplicate item filename %q", ErrValidation, item.Filename)
		}
		seen[item.Filename] = true
	}

	return nil
}
