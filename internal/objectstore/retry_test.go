package objectstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/printflow-api/internal/objectstore"
)

// flakyStore fails the first failCount calls of each operation with errFail,
// then delegates to an in-memory store.
type flakyStore struct {
	mu        sync.Mutex
	inner     *objectstore.MemoryStore
	failCount int
	calls     int
	errFail   error
}

func (f *flakyStore) tick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failCount {
		return f.errFail
	}
	return nil
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	if err := f.tick(); err != nil {
		return err
	}
	return f.inner.Put(ctx, key, data)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.tick(); err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if err := f.tick(); err != nil {
		return err
	}
	return f.inner.Delete(ctx, key)
}

func (f *flakyStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := f.tick(); err != nil {
		return nil, err
	}
	return f.inner.List(ctx, prefix)
}

func retryConfig(attempts int) objectstore.RetryConfig {
	return objectstore.RetryConfig{Attempts: attempts, Delay: time.Millisecond}
}

func TestRetryingStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	errTransient := errors.New("connection reset")

	t.Run("retries transient failures until success", func(t *testing.T) {
		t.Parallel()
		flaky := &flakyStore{inner: objectstore.NewMemoryStore(), failCount: 2, errFail: errTransient}
		store := objectstore.NewRetryingStore(flaky, retryConfig(3))

		err := store.Put(ctx, "k", []byte("v"))
		require.NoError(t, err)

		data, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), data)
	})

	t.Run("surfaces error after attempts exhausted", func(t *testing.T) {
		t.Parallel()
		flaky := &flakyStore{inner: objectstore.NewMemoryStore(), failCount: 10, errFail: errTransient}
		store := objectstore.NewRetryingStore(flaky, retryConfig(3))

		err := store.Put(ctx, "k", []byte("v"))
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("does not retry ErrNotFound", func(t *testing.T) {
		t.Parallel()
		inner := objectstore.NewMemoryStore()
		flaky := &flakyStore{inner: inner, failCount: 0}
		store := objectstore.NewRetryingStore(flaky, retryConfig(3))

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, objectstore.ErrNotFound)
		assert.Equal(t, 1, flaky.calls)
	})

	t.Run("does not retry after context cancellation", func(t *testing.T) {
		t.Parallel()
		flaky := &flakyStore{inner: objectstore.NewMemoryStore(), failCount: 10, errFail: errTransient}
		store := objectstore.NewRetryingStore(flaky, retryConfig(5))

		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := store.Put(cancelledCtx, "k", []byte("v"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
