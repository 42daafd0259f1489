package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/mail"
	"github.com/phrazzld/printflow-api/internal/store"
)

// NotificationHandler executes notify_customer and notify_production tasks.
// Delivery is at-least-once: a retried task may re-send to a recipient who
// already received the message, bounded by the task's max attempts.
type NotificationHandler struct {
	orders         store.OrderStore
	caches         *cache.Pipeline
	renderer       mail.Renderer
	transport      mail.Transport
	productionTeam []string
	logger         *slog.Logger
}

// NewNotificationHandler creates the handler. productionTeam lists the
// recipients of notify_production tasks.
func NewNotificationHandler(
	orders store.OrderStore,
	caches *cache.Pipeline,
	renderer mail.Renderer,
	transport mail.Transport,
	productionTeam []string,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		orders:         orders,
		caches:         caches,
		renderer:       renderer,
		transport:      transport,
		productionTeam: productionTeam,
		logger:         logger,
	}
}

// Handle loads the order, renders the message for the task's audience, and
// sends one message per recipient. A permanent transport rejection fails the
// task immediately; a transient failure for any recipient leaves the task
// retryable, re-sending to every recipient on the next attempt.
func (h *NotificationHandler) Handle(ctx context.Context, t *Task) error {
	var p NotificationPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("%w: invalid notification payload: %v", ErrNonRetryable, err)
	}

	order, cached := h.caches.GetOrder(p.OrderID)
	if !cached {
		var err error
		order, err = h.orders.GetByID(ctx, p.OrderID)
		if err != nil {
			if errors.Is(err, store.ErrOrderNotFound) {
				return fmt.Errorf("%w: order %s does not exist", ErrNonRetryable, p.OrderID)
			}
			return fmt.Errorf("failed to load order %s: %w", p.OrderID, err)
		}
		h.caches.PutOrder(order)
	}

	var (
		subject    string
		body       string
		recipients []string
		err        error
	)
	switch t.Kind {
	case KindNotifyCustomer:
		subject, body, err = h.renderer.RenderCustomerConfirmation(order)
		recipients = []string{order.Email}
	case KindNotifyProduction:
		subject, body, err = h.renderer.RenderProductionNotice(order)
		recipients = h.productionTeam
	default:
		return fmt.Errorf("%w: notification handler cannot process kind %q", ErrNonRetryable, t.Kind)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to render notification for order %s: %v", ErrNonRetryable, order.OrderNumber, err)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients configured for %s", ErrNonRetryable, t.Kind)
	}

	// Per-recipient sends so one bad address cannot block the rest. A
	// transient failure anywhere outranks permanent ones: the retry
	// re-sends and the permanently rejected recipient fails fast again.
	var transient, permanent error
	for _, to := range recipients {
		sendErr := h.transport.Send(ctx, mail.Message{
			To:      []string{to},
			Subject: subject,
			HTML:    body,
		})
		if sendErr == nil {
			continue
		}
		h.logger.Warn("notification send failed",
			"order_number", order.OrderNumber,
			"task_kind", t.Kind,
			"permanent", mail.IsPermanent(sendErr),
			"error", sendErr)
		if mail.IsPermanent(sendErr) {
			permanent = sendErr
		} else {
			transient = sendErr
		}
	}

	if transient != nil {
		return fmt.Errorf("notification delivery incomplete for order %s: %w", order.OrderNumber, transient)
	}
	if permanent != nil {
		return fmt.Errorf("%w: notification rejected for order %s: %v", ErrNonRetryable, order.OrderNumber, permanent)
	}
	return nil
}
