package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/service"
)

// OrderItemResponse represents one line item in an order response.
type OrderItemResponse struct {
	ID       string `json:"id"`
	FileKey  string `json:"file_key"`
	Quantity int    `json:"quantity"`
}

// OrderResponse represents the response data for an order.
type OrderResponse struct {
	ID            string              `json:"id"`
	OrderNumber   string              `json:"order_number"`
	Email         string              `json:"email"`
	PurchaseOrder string              `json:"purchase_order,omitempty"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	Status        string              `json:"status"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// UpdateStatusRequest represents the request body for a status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateInvoiceRequest represents the request body for an invoice number
// change.
type UpdateInvoiceRequest struct {
	InvoiceNumber string `json:"invoice_number"`
}

// BulkStatusRequest represents the request body for a bulk status change.
type BulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
}

// BulkDeleteRequest represents the request body for a bulk delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// ListOrders handles GET /api/orders requests.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderToResponse(order))
	}
	RespondWithJSON(w, r, http.StatusOK, out)
}

// GetOrder handles GET /api/orders/{orderID} requests.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid order ID", err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, orderToResponse(order))
}

// UpdateStatus handles PATCH /api/orders/{orderID}/status requests.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid order ID", err)
		return
	}
	var req UpdateStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, domain.OrderStatus(req.Status)); err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateInvoice handles PATCH /api/orders/{orderID}/invoice requests.
func (h *OrderHandler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid order ID", err)
		return
	}
	var req UpdateInvoiceRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.orders.UpdateInvoiceNumber(r.Context(), id, req.InvoiceNumber); err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkUpdateStatus handles POST /api/orders/bulk/status requests.
func (h *OrderHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid order ID list", err)
		return
	}

	if err := h.orders.BulkUpdateStatus(r.Context(), ids, domain.OrderStatus(req.Status)); err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDelete handles POST /api/orders/bulk/delete requests.
func (h *OrderHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid order ID list", err)
		return
	}

	if err := h.orders.BulkDelete(r.Context(), ids); err != nil {
		respondWithMappedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// orderToResponse converts a domain.Order to an OrderResponse.
func orderToResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:       item.ID.String(),
			FileKey:  item.FileKey,
			Quantity: item.Quantity,
		})
	}
	return OrderResponse{
		ID:            order.ID.String(),
		OrderNumber:   order.OrderNumber,
		Email:         order.Email,
		PurchaseOrder: order.PurchaseOrder,
		InvoiceNumber: order.InvoiceNumber,
		Status:        string(order.Status),
		Items:         items,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}
