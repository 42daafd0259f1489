package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/store"
	"github.com/phrazzld/printflow-api/internal/upload"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error types
// or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, upload.ErrSessionNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, upload.ErrSessionNotReady),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidOrderStatus),
		errors.Is(err, domain.ErrEmptyDraft),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// The combined blob failed the format contract
	case errors.Is(err, domain.ErrInvalidFile):
		return http.StatusUnprocessableEntity

	// Transient storage trouble: the client should resubmit the chunk
	case errors.Is(err, upload.ErrChunkWriteFailed),
		errors.Is(err, upload.ErrCombineFailed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message based
// on the error type.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, upload.ErrSessionNotFound):
		return "Upload session not found or expired"
	case errors.Is(err, upload.ErrSessionNotReady):
		return "Upload session is not ready to commit"
	case errors.Is(err, upload.ErrChunkWriteFailed):
		return "Chunk could not be stored, please resubmit"
	case errors.Is(err, upload.ErrCombineFailed):
		return "File could not be assembled, please resubmit the last chunk"
	case errors.Is(err, domain.ErrInvalidFile):
		return "File must be a PNG in RGB or RGBA mode"
	case errors.Is(err, store.ErrOrderNotFound):
		return "Order not found"
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, objectstore.ErrNotFound):
		return "Not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Already exists"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrInvalidOrderStatus),
		errors.Is(err, domain.ErrEmptyDraft):
		return err.Error()
	default:
		return "An unexpected error occurred"
	}
}

// respondWithMappedError is the common error exit for handlers.
func respondWithMappedError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
