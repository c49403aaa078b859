package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/pkg/migrations"
)

// Counter is implemented by ledgers that can report how many entries they
// hold.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Backends carries the connected client for the configured ledger type.
type Backends struct {
	DynamoDB DynamoDBAPI
	Redis    redis.Cmdable
	Mongo    *mongo.Database
	Postgres *sql.DB
}

// NewFromConfig builds the configured ledger on top of an already connected
// backend, running schema setup first where the backend needs it.
func NewFromConfig(ctx context.Context, cfg config.LedgerConfig, b Backends) (Ledger, error) {
	switch cfg.Type {
	case config.LedgerTypeDynamoDB:
		if b.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb ledger requires a client")
		}
		return NewDynamoDBLedger(b.DynamoDB, cfg.DynamoDB.TableName), nil

	case config.LedgerTypeRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis ledger requires a client")
		}
		prefix := cfg.Redis.KeyPrefix
		if prefix == "" {
			prefix = constants.DefaultLedgerKeyPrefix
		}
		ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
		return NewRedisLedger(b.Redis, prefix, ttl), nil

	case config.LedgerTypeMongoDB:
		if b.Mongo == nil {
			return nil, fmt.Errorf("mongodb ledger requires a database")
		}
		collection := cfg.MongoDB.Collection
		if collection == "" {
			collection = constants.DefaultLedgerCollection
		}
		if err := migrations.EnsureLedgerIndexes(ctx, b.Mongo, collection); err != nil {
			return nil, err
		}
		return NewMongoLedger(b.Mongo, collection), nil

	case config.LedgerTypePostgres:
		if b.Postgres == nil {
			return nil, fmt.Errorf("postgres ledger requires a database")
		}
		if cfg.Postgres.RunMigrations {
			if err := migrations.RunPostgres(b.Postgres, PostgresMigrations, PostgresMigrationsPath); err != nil {
				return nil, err
			}
		}
		return NewPostgresLedger(b.Postgres), nil

	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}
