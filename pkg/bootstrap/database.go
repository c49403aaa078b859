package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/internal/logger"
)

// DatabaseConnector opens the client for whichever ledger backend is
// configured. Only one of the handles is ever non-nil.
type DatabaseConnector struct {
	Config config.LedgerConfig
	Logger logger.Logger

	Redis    *redis.Client
	Postgres *sql.DB
	Mongo    *mongo.Client
}

func NewDatabaseConnector(cfg config.LedgerConfig, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Connect dials the configured backend. DynamoDB needs no connection here;
// its client is built from the AWS config.
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.ConnectTimeout)
	defer cancel()

	var err error
	switch dc.Config.Type {
	case config.LedgerTypeRedis:
		dc.Redis, err = dc.InitRedis(ctx)
	case config.LedgerTypePostgres:
		dc.Postgres, err = dc.InitPostgreSQL(ctx)
	case config.LedgerTypeMongoDB:
		dc.Mongo, err = dc.InitMongoDB(ctx)
	}
	return err
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Infow("Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}

func PostgresDSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.SSLMode,
	)
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("postgres", PostgresDSN(dc.Config.Postgres))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Infow("PostgreSQL connected successfully", "host", dc.Config.Postgres.Host, "dbname", dc.Config.Postgres.DBName)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	mongoOpts := options.Client().ApplyURI(dc.Config.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Infow("MongoDB connected successfully", "database", dc.Config.MongoDB.Database)
	return mongoClient, nil
}

// MongoDatabase returns the ledger database, or nil when Mongo is not in use.
func (dc *DatabaseConnector) MongoDatabase() *mongo.Database {
	if dc.Mongo == nil {
		return nil
	}
	name := dc.Config.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return dc.Mongo.Database(name)
}

func (dc *DatabaseConnector) Shutdown(ctx context.Context) []error {
	var errs []error

	if dc.Redis != nil {
		if err := dc.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if dc.Postgres != nil {
		if err := dc.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if dc.Mongo != nil {
		if err := dc.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
