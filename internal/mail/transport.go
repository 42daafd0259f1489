// Package mail defines the outbound mail transport consumed by the
// notification pipeline and a SendGrid-backed implementation of it.
//
// The transport distinguishes permanent from transient failures: a
// permanent failure (bad recipient, bad payload) must fail the enclosing
// task immediately rather than burn its retry budget on a send that is
// guaranteed to fail again.
package mail

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors classifying send failures.
var (
	// ErrPermanent marks a send failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent send failure")

	// ErrTransient marks a send failure worth retrying with backoff.
	ErrTransient = errors.New("transient send failure")
)

// Message is one outbound email.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Transport submits messages to a mail provider.
type Transport interface {
	// Send submits the message. Errors wrap ErrPermanent or ErrTransient so
	// the caller can pick a retry policy.
	Send(ctx context.Context, msg Message) error
}

// IsPermanent reports whether err is a permanent send failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// ClassifyStatus converts a provider HTTP status code into nil, a permanent
// error, or a transient error. 2xx succeeds; 4xx is permanent except 429
// (rate limiting); everything else is transient.
func ClassifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 429:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, code)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: HTTP %d", ErrPermanent, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrTransient, code)
	}
}
