package mail

import (
	"context"
	"log/slog"
)

// LogTransport logs messages instead of sending them. It stands in for the
// real provider in local development when no API key is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport creates a transport that records sends to the given logger.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Send logs the message and reports success.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.logger.Info("mail send suppressed, no provider configured",
		"to", msg.To,
		"subject", msg.Subject)
	return nil
}
