package objectstore

import (
	"context"
	"errors"
	"time"
)

// RetryConfig bounds the retrying adapter's behavior.
type RetryConfig struct {
	// Attempts is the total number of tries per call, including the first.
	Attempts int

	// Delay is the fixed pause between tries.
	Delay time.Duration

	// CallTimeout bounds each individual backend call. Zero disables the
	// per-call timeout.
	CallTimeout time.Duration
}

// DefaultRetryConfig returns the retry bounds used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:    3,
		Delay:       250 * time.Millisecond,
		CallTimeout: 30 * time.Second,
	}
}

// RetryingStore wraps a Store with bounded retry on transient failures and
// a bounded per-call timeout. ErrNotFound and context cancellation are never
// retried; everything else is presumed transient.
type RetryingStore struct {
	inner Store
	cfg   RetryConfig
	sleep func(time.Duration) // injectable for tests
}

// NewRetryingStore wraps inner with the given retry bounds.
func NewRetryingStore(inner Store, cfg RetryConfig) *RetryingStore {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &RetryingStore{inner: inner, cfg: cfg, sleep: time.Sleep}
}

// Put stores data under key, retrying transient failures.
func (s *RetryingStore) Put(ctx context.Context, key string, data []byte) error {
	return s.do(ctx, func(callCtx context.Context) error {
		return s.inner.Put(callCtx, key, data)
	})
}

// Get retrieves the object under key, retrying transient failures.
func (s *RetryingStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, func(callCtx context.Context) error {
		var callErr error
		data, callErr = s.inner.Get(callCtx, key)
		return callErr
	})
	return data, err
}

// Delete removes the object under key, retrying transient failures.
func (s *RetryingStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, func(callCtx context.Context) error {
		return s.inner.Delete(callCtx, key)
	})
}

// List returns keys under prefix, retrying transient failures.
func (s *RetryingStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.do(ctx, func(callCtx context.Context) error {
		var callErr error
		keys, callErr = s.inner.List(callCtx, prefix)
		return callErr
	})
	return keys, err
}

func (s *RetryingStore) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		if attempt > 0 {
			s.sleep(s.cfg.Delay)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		}
		err := call(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
