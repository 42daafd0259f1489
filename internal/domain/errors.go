package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidFile is returned when an uploaded file does not satisfy the
	// format contract (PNG in RGB or RGBA mode). It is non-retryable: the
	// client must replace the file.
	ErrInvalidFile = errors.New("invalid file")

	// ErrInvalidOrderStatus is returned when an order status is not one of
	// the known status values.
	ErrInvalidOrderStatus = errors.New("invalid order status")

	// ErrEmptyDraft is returned when a draft order declares no items.
	ErrEmptyDraft = errors.New("draft order must declare at least one item")
)
