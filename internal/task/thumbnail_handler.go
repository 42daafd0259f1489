package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/thumbnail"
)

// Generator produces a derived image from source bytes. Satisfied by
// thumbnail.Generator.
type Generator interface {
	Generate(src []byte) ([]byte, error)
}

// ThumbnailHandler executes thumbnail tasks. It is idempotent: a task for a
// file whose derived artifact already exists is a cheap no-op, answered from
// the existence cache or a single store probe, without invoking the
// generator at all.
type ThumbnailHandler struct {
	objects objectstore.Store
	caches  *cache.Pipeline
	gen     Generator
}

// NewThumbnailHandler creates the handler.
func NewThumbnailHandler(objects objectstore.Store, caches *cache.Pipeline, gen Generator) *ThumbnailHandler {
	return &ThumbnailHandler{objects: objects, caches: caches, gen: gen}
}

// Handle generates the thumbnail for the payload's file key, unless it
// already exists. A missing or undecodable source fails the task
// immediately; store failures are left retryable.
func (h *ThumbnailHandler) Handle(ctx context.Context, t *Task) error {
	var p ThumbnailPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("%w: invalid thumbnail payload: %v", ErrNonRetryable, err)
	}
	if p.FileKey == "" {
		return fmt.Errorf("%w: thumbnail payload missing file key", ErrNonRetryable)
	}

	derived := thumbnail.DerivedKey(p.FileKey)

	if exists, known := h.caches.ThumbnailExists(derived); known && exists {
		return nil
	}
	_, err := h.objects.Get(ctx, derived)
	if err == nil {
		h.caches.MarkThumbnail(derived, true)
		return nil
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		return fmt.Errorf("failed to probe for existing thumbnail %s: %w", derived, err)
	}

	src, err := h.objects.Get(ctx, p.FileKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return fmt.Errorf("%w: source object %s is missing", ErrNonRetryable, p.FileKey)
		}
		return fmt.Errorf("failed to fetch source object %s: %w", p.FileKey, err)
	}

	// The source is immutable once uploaded, so a decode failure now is a
	// decode failure forever.
	thumb, err := h.gen.Generate(src)
	if err != nil {
		return fmt.Errorf("%w: cannot generate thumbnail for %s: %v", ErrNonRetryable, p.FileKey, err)
	}

	if err := h.objects.Put(ctx, derived, thumb); err != nil {
		return fmt.Errorf("failed to store thumbnail %s: %w", derived, err)
	}
	h.caches.MarkThumbnail(derived, true)
	return nil
}
