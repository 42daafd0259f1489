package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/printflow-api/internal/mail"
)

// MockTransport implements mail.Transport for testing. By default every
// send succeeds and is recorded.
type MockTransport struct {
	mu sync.Mutex

	// SendFn overrides Send when set. Sends are recorded either way.
	SendFn func(ctx context.Context, msg mail.Message) error

	// Sent holds every message passed to Send, in order.
	Sent []mail.Message
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Send implements the Transport interface.
func (m *MockTransport) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, msg)
	}
	return nil
}

// SentCount returns how many messages have been sent.
func (m *MockTransport) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
