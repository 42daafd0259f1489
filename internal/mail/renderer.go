package mail

import (
	"fmt"
	"html"

	"github.com/phrazzld/printflow-api/internal/domain"
)

// Renderer produces the subject and HTML body of a notification. Body
// rendering is owned by a collaborator outside the pipeline; DefaultRenderer
// is the minimal built-in used when no richer renderer is wired in.
type Renderer interface {
	RenderCustomerConfirmation(order *domain.Order) (subject, body string, err error)
	RenderProductionNotice(order *domain.Order) (subject, body string, err error)
}

// DefaultRenderer renders plain, template-free notification bodies.
type DefaultRenderer struct{}

// RenderCustomerConfirmation renders the order confirmation sent to the
// customer.
func (DefaultRenderer) RenderCustomerConfirmation(order *domain.Order) (string, string, error) {
	subject := fmt.Sprintf("DTF Printing Order Confirmation - %s", order.OrderNumber)
	body := fmt.Sprintf(
		"<p>Thank you for your DTF printing order!</p><p>Order Number: %s</p><p>We will process your order shortly.</p>",
		html.EscapeString(order.OrderNumber),
	)
	return subject, body, nil
}

// RenderProductionNotice renders the new-order notice sent to the
// production team.
func (DefaultRenderer) RenderProductionNotice(order *domain.Order) (string, string, error) {
	subject := fmt.Sprintf("New DTF Printing Order - %s", order.OrderNumber)
	body := fmt.Sprintf(
		"<p>New order %s from %s with %d item(s).</p>",
		html.EscapeString(order.OrderNumber),
		html.EscapeString(order.Email),
		len(order.Items),
	)
	return subject, body, nil
}
