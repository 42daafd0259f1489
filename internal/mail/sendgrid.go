package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridTransport sends mail through the SendGrid v3 API.
type SendGridTransport struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridTransport creates a transport sending as the given address.
func NewSendGridTransport(apiKey, fromEmail, fromName string) *SendGridTransport {
	return &SendGridTransport{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send submits the message to SendGrid. Network failures are transient;
// HTTP responses are classified by status code.
func (t *SendGridTransport) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("%w: no recipients", ErrPermanent)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(t.fromName, t.fromEmail))
	m.Subject = msg.Subject

	personalization := sgmail.NewPersonalization()
	for _, to := range msg.To {
		personalization.AddTos(sgmail.NewEmail("", to))
	}
	m.AddPersonalizations(personalization)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))

	resp, err := t.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if clsErr := ClassifyStatus(resp.StatusCode); clsErr != nil {
		return fmt.Errorf("sendgrid rejected message: %w", clsErr)
	}
	return nil
}
