package storage

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"ingest/internal/config"
)

// NewFromConfig builds the configured backend wrapped in a
// CircuitBreakerStore.
func NewFromConfig(cfg *config.Config, awsCfg aws.Config) (*CircuitBreakerStore, error) {
	var store ObjectStore
	switch cfg.Storage.Type {
	case config.StorageTypeS3:
		store = NewS3Store(NewS3Client(awsCfg, cfg.AWS.UsePathStyle))
	case config.StorageTypeMinio:
		minioStore, err := NewMinioStore(cfg.Storage.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		store = minioStore
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
	return NewCircuitBreakerStore(store, cfg.Storage.Type, cfg.CircuitBreaker), nil
}
