// Package objectstore provides a uniform put/get/delete/list abstraction
// over a remote blob backend, together with an in-memory implementation for
// tests and a retrying adapter that bounds transient failures and call
// latency before errors surface to callers.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when no object exists under the
// requested key. It is never retried.
var ErrNotFound = errors.New("object not found")

// Store is the object store capability consumed by the pipeline.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the object stored under key.
	// Returns ErrNotFound if no such object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key. Deleting a missing key is
	// a no-op, matching the semantics of the S3 backend.
	Delete(ctx context.Context, key string) error

	// List returns the keys of all objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
