// Package storage reads input objects and writes output objects.
package storage

import (
	"context"
	"fmt"

	"ingest/pkg/errors"
)

// ObjectStore is the object storage the pipeline reads from and writes to.
// Implementations return errors.ErrStorageIO for every failure; a missing
// object is additionally marked fatal since retrying cannot bring it back.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

func storageIOError(op, bucket, key string, cause error) *errors.Error {
	return errors.ErrStorageIO.
		WithMessage(fmt.Sprintf("%s s3://%s/%s failed", op, bucket, key)).
		WithCause(cause).
		WithDetail("bucket", bucket).
		WithDetail("key", key)
}

func notFoundError(bucket, key string, cause error) *errors.Error {
	return storageIOError("get", bucket, key, cause).
		WithDetail("reason", "not_found").
		AsFatal()
}
