package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	QueueTypeSQS   = "sqs"
	QueueTypeKafka = "kafka"

	StorageTypeS3    = "s3"
	StorageTypeMinio = "minio"

	LedgerTypeDynamoDB = "dynamodb"
	LedgerTypeRedis    = "redis"
	LedgerTypeMongoDB  = "mongodb"
	LedgerTypePostgres = "postgres"
)

// LoadConfig reads configFile (optional; env alone may carry the required
// values), applies defaults and env overrides, then validates.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.rate_limit.rps", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("server.rate_limit.cleanup_interval", "5m")
	v.SetDefault("server.rate_limit.max_age", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("queue.type", QueueTypeSQS)
	v.SetDefault("queue.kafka.max_receive_count", 5)
	v.SetDefault("storage.type", StorageTypeS3)
	v.SetDefault("ledger.type", LedgerTypeDynamoDB)
	v.SetDefault("ledger.redis.port", 6379)
	v.SetDefault("ledger.redis.key_prefix", "ledger:")
	v.SetDefault("ledger.mongodb.database", "ingest")
	v.SetDefault("ledger.mongodb.collection", "ledger_entries")
	v.SetDefault("ledger.postgres.port", 5432)
	v.SetDefault("ledger.postgres.sslmode", "disable")

	v.SetDefault("output.content_type", "application/x-ndjson")

	v.SetDefault("listener.max_messages", 1)
	v.SetDefault("listener.visibility_timeout", "600s")
	v.SetDefault("listener.wait_time", "20s")
	v.SetDefault("listener.empty_backoff", "600s")
	v.SetDefault("listener.error_backoff", "600s")
	v.SetDefault("listener.finish_timeout", "30s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "10s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_elapsed_time", "1m")
}

func bindEnvVariables(v *viper.Viper) {
	// The second name of each pair is the legacy deployment variable; both
	// are honoured.
	v.BindEnv("queue.sqs.queue_name", "QUEUE_SQS_QUEUE_NAME", "SQS_QUEUE_NAME")
	v.BindEnv("queue.sqs.queue_url", "QUEUE_SQS_QUEUE_URL", "SQS_QUEUE_URL")
	v.BindEnv("ledger.dynamodb.table_name", "LEDGER_DYNAMODB_TABLE_NAME", "DYNAMODB_TABLE_NAME")
	v.BindEnv("output.bucket", "OUTPUT_BUCKET", "OUTPUT_S3_BUCKET_NAME")
	v.BindEnv("aws.region", "AWS_REGION", "AWS_DEFAULT_REGION")
	v.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")

	v.BindEnv("queue.type", "QUEUE_TYPE")
	v.BindEnv("queue.kafka.brokers", "QUEUE_KAFKA_BROKERS")
	v.BindEnv("queue.kafka.group_id", "QUEUE_KAFKA_GROUP_ID")
	v.BindEnv("queue.kafka.topic", "QUEUE_KAFKA_TOPIC")
	v.BindEnv("queue.kafka.max_receive_count", "QUEUE_KAFKA_MAX_RECEIVE_COUNT")
	v.BindEnv("queue.kafka.dead_letter_topic", "QUEUE_KAFKA_DEAD_LETTER_TOPIC")

	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio.endpoint", "STORAGE_MINIO_ENDPOINT")
	v.BindEnv("storage.minio.access_key", "STORAGE_MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio.secret_key", "STORAGE_MINIO_SECRET_KEY")

	v.BindEnv("ledger.type", "LEDGER_TYPE")
	v.BindEnv("ledger.redis.host", "LEDGER_REDIS_HOST")
	v.BindEnv("ledger.redis.port", "LEDGER_REDIS_PORT")
	v.BindEnv("ledger.redis.password", "LEDGER_REDIS_PASSWORD")
	v.BindEnv("ledger.mongodb.uri", "LEDGER_MONGODB_URI")
	v.BindEnv("ledger.postgres.host", "LEDGER_POSTGRES_HOST")
	v.BindEnv("ledger.postgres.port", "LEDGER_POSTGRES_PORT")
	v.BindEnv("ledger.postgres.user", "LEDGER_POSTGRES_USER")
	v.BindEnv("ledger.postgres.password", "LEDGER_POSTGRES_PASSWORD")
	v.BindEnv("ledger.postgres.dbname", "LEDGER_POSTGRES_DBNAME")

	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	// Comma-separated broker lists do not survive viper's slice decoding.
	if brokersEnv := v.GetString("QUEUE_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Queue.Kafka.Brokers = brokers
		}
	}
}
