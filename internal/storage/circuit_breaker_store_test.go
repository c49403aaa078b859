package storage

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/pkg/errors"
)

func TestCircuitBreakerStore_PassThrough(t *testing.T) {
	api := newFakeS3()
	store := NewCircuitBreakerStore(NewS3Store(api), "s3", config.CircuitBreakerConfig{})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "out", "k", []byte("v"), "text/plain"))
	body, err := store.Get(ctx, "out", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(body))
	assert.Equal(t, "disabled", store.State())
	assert.NoError(t, store.CheckBucket(ctx, "out"))
}

func TestCircuitBreakerStore_Opens(t *testing.T) {
	api := newFakeS3()
	api.getErr = stderrors.New("503")
	store := NewCircuitBreakerStore(NewS3Store(api), "s3-open-test", config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "raw", "k")
		require.Error(t, err)
	}
	assert.Equal(t, "open", store.State())

	_, err := store.Get(ctx, "raw", "k")
	require.Error(t, err)
	assert.True(t, errors.IsStorageIO(err))
}

func TestCircuitBreakerStore_MissingObjectDoesNotTrip(t *testing.T) {
	store := NewCircuitBreakerStore(NewS3Store(newFakeS3()), "s3-missing-test", config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	for i := 0; i < 3; i++ {
		_, err := store.Get(context.Background(), "raw", "gone")
		require.Error(t, err)
	}
	assert.Equal(t, "closed", store.State())
}
