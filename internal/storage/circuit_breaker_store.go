package storage

import (
	"context"
	"time"

	"ingest/internal/config"
	"ingest/pkg/circuitbreaker"
	"ingest/pkg/errors"
	"ingest/pkg/metrics"
)

// CircuitBreakerStore records per-operation metrics and, when enabled,
// rejects calls while the backend is failing.
type CircuitBreakerStore struct {
	store   ObjectStore
	backend string
	cb      *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store ObjectStore, backend string, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	s := &CircuitBreakerStore{store: store, backend: backend}
	if cfg.Enabled {
		s.cb = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("storage-"+backend, cfg))
	}
	return s
}

func (s *CircuitBreakerStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()
	body, err := circuitbreaker.Do(ctx, s.cb, func() ([]byte, error) {
		return s.store.Get(ctx, bucket, key)
	})
	err = s.asStorageIO("get", bucket, key, err)
	metrics.ObserveStorageOperation(s.backend, "get", err, time.Since(start))
	if err == nil {
		metrics.InputBytes.Observe(float64(len(body)))
	}
	return body, err
}

func (s *CircuitBreakerStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	start := time.Now()
	_, err := circuitbreaker.Do(ctx, s.cb, func() (struct{}, error) {
		return struct{}{}, s.store.Put(ctx, bucket, key, body, contentType)
	})
	err = s.asStorageIO("put", bucket, key, err)
	metrics.ObserveStorageOperation(s.backend, "put", err, time.Since(start))
	if err == nil {
		metrics.OutputBytes.Observe(float64(len(body)))
	}
	return err
}

// CheckBucket passes through to the wrapped store when it can check buckets.
func (s *CircuitBreakerStore) CheckBucket(ctx context.Context, bucket string) error {
	if c, ok := s.store.(interface {
		CheckBucket(ctx context.Context, bucket string) error
	}); ok {
		return c.CheckBucket(ctx, bucket)
	}
	return nil
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

// asStorageIO gives breaker rejections and other uncoded errors the
// storage error code.
func (s *CircuitBreakerStore) asStorageIO(op, bucket, key string, err error) error {
	if err == nil || errors.Code(err) != errors.ErrInternal.Code {
		return err
	}
	return storageIOError(op, bucket, key, err)
}
