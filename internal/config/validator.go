package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	sqsMaxMessages       = 10
	sqsMaxWaitTime       = 20 * time.Second
	sqsMaxVisibilityTime = 12 * time.Hour
)

var transformerKinds = map[string]bool{
	"jsonl": true,
	"json":  true,
	"csv":   true,
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func required(field, what string) error {
	return &ValidationError{Field: field, Message: what + " is required"}
}

// ValidateStatic checks every value the process cannot start without. All
// violations are reported together, joined with errors.Join.
func ValidateStatic(cfg *Config) error {
	var errs []error

	appendErr := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Server.Enabled {
		appendErr(validateServer(cfg.Server))
	}
	if cfg.UsesAWS() {
		appendErr(validateAWS(cfg.AWS))
	}
	appendErr(validateQueue(cfg.Queue, cfg.Listener))
	appendErr(validateStorage(cfg.Storage))
	appendErr(validateLedger(cfg.Ledger))
	appendErr(validateOutput(cfg.Output))
	appendErr(validateListener(cfg.Listener))
	appendErr(validateTransformers(cfg.Transformers))
	appendErr(validateRetry(cfg.Retry))

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", port),
		}
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if err := validatePort("server.port", cfg.Port); err != nil {
		return err
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "server.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateAWS(cfg AWSConfig) error {
	if cfg.Region == "" && cfg.Endpoint == "" {
		return required("aws.region", "AWS region or endpoint")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return &ValidationError{
			Field:   "aws.access_key_id",
			Message: "access_key_id and secret_access_key must be set together",
		}
	}
	return nil
}

func validateQueue(cfg QueueConfig, listener ListenerConfig) error {
	switch cfg.Type {
	case QueueTypeSQS:
		if cfg.SQS.QueueName == "" && cfg.SQS.QueueURL == "" {
			return required("queue.sqs.queue_name", "SQS queue name or URL")
		}
		if listener.MaxMessages > sqsMaxMessages {
			return &ValidationError{
				Field:   "listener.max_messages",
				Message: fmt.Sprintf("SQS returns at most %d messages per receive, got %d", sqsMaxMessages, listener.MaxMessages),
			}
		}
		if listener.WaitTime > sqsMaxWaitTime {
			return &ValidationError{
				Field:   "listener.wait_time",
				Message: fmt.Sprintf("SQS long polling is capped at %s", sqsMaxWaitTime),
			}
		}
		if listener.VisibilityTimeout > sqsMaxVisibilityTime {
			return &ValidationError{
				Field:   "listener.visibility_timeout",
				Message: fmt.Sprintf("SQS visibility timeout is capped at %s", sqsMaxVisibilityTime),
			}
		}
		return nil
	case QueueTypeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return required("queue.kafka.brokers", "at least one Kafka broker")
		}
		for i, broker := range cfg.Kafka.Brokers {
			if broker == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("queue.kafka.brokers[%d]", i),
					Message: "broker address cannot be empty",
				}
			}
		}
		if cfg.Kafka.GroupID == "" {
			return required("queue.kafka.group_id", "Kafka consumer group ID")
		}
		if cfg.Kafka.Topic == "" {
			return required("queue.kafka.topic", "Kafka topic")
		}
		if cfg.Kafka.MaxReceiveCount < 0 {
			return &ValidationError{
				Field:   "queue.kafka.max_receive_count",
				Message: "must be zero (disabled) or positive",
			}
		}
		if cfg.Kafka.MaxReceiveCount > 0 && cfg.Kafka.DeadLetterTopicName() == cfg.Kafka.Topic {
			return &ValidationError{
				Field:   "queue.kafka.dead_letter_topic",
				Message: "must differ from queue.kafka.topic",
			}
		}
		return nil
	case "":
		return required("queue.type", "queue type")
	default:
		return &ValidationError{
			Field:   "queue.type",
			Message: fmt.Sprintf("unknown queue type: %s (supported: sqs, kafka)", cfg.Type),
		}
	}
}

func validateStorage(cfg StorageConfig) error {
	switch cfg.Type {
	case StorageTypeS3:
		return nil
	case StorageTypeMinio:
		if cfg.Minio.Endpoint == "" {
			return required("storage.minio.endpoint", "MinIO endpoint")
		}
		return nil
	default:
		return &ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("unknown storage type: %q (supported: s3, minio)", cfg.Type),
		}
	}
}

func validateLedger(cfg LedgerConfig) error {
	switch cfg.Type {
	case LedgerTypeDynamoDB:
		if cfg.DynamoDB.TableName == "" {
			return required("ledger.dynamodb.table_name", "DynamoDB ledger table name")
		}
	case LedgerTypeRedis:
		if cfg.Redis.Host == "" {
			return required("ledger.redis.host", "Redis host")
		}
		if err := validatePort("ledger.redis.port", cfg.Redis.Port); err != nil {
			return err
		}
		if cfg.Redis.TTLSeconds < 0 {
			return &ValidationError{Field: "ledger.redis.ttl_seconds", Message: "TTL must be non-negative"}
		}
	case LedgerTypeMongoDB:
		if cfg.MongoDB.URI == "" {
			return required("ledger.mongodb.uri", "MongoDB URI")
		}
		if !strings.HasPrefix(cfg.MongoDB.URI, "mongodb://") && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb+srv://") {
			return &ValidationError{
				Field:   "ledger.mongodb.uri",
				Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
			}
		}
		if cfg.MongoDB.Database == "" {
			return required("ledger.mongodb.database", "MongoDB database name")
		}
	case LedgerTypePostgres:
		return validatePostgres(cfg.Postgres)
	default:
		return &ValidationError{
			Field:   "ledger.type",
			Message: fmt.Sprintf("unknown ledger type: %q (supported: dynamodb, redis, mongodb, postgres)", cfg.Type),
		}
	}
	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return required("ledger.postgres.host", "PostgreSQL host")
	}
	if err := validatePort("ledger.postgres.port", cfg.Port); err != nil {
		return err
	}
	if cfg.User == "" {
		return required("ledger.postgres.user", "PostgreSQL user")
	}
	if cfg.DBName == "" {
		return required("ledger.postgres.dbname", "PostgreSQL database name")
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "ledger.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateOutput(cfg OutputConfig) error {
	if cfg.Bucket == "" {
		return required("output.bucket", "output bucket")
	}
	if cfg.MaxRecordsPerObject < 0 {
		return &ValidationError{Field: "output.max_records_per_object", Message: "must be non-negative"}
	}
	return nil
}

func validateListener(cfg ListenerConfig) error {
	if cfg.MaxMessages < 1 {
		return &ValidationError{Field: "listener.max_messages", Message: "must be at least 1"}
	}

	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"listener.visibility_timeout", cfg.VisibilityTimeout},
		{"listener.empty_backoff", cfg.EmptyBackoff},
		{"listener.error_backoff", cfg.ErrorBackoff},
	} {
		if d.value <= 0 {
			return &ValidationError{Field: d.field, Message: "must be positive"}
		}
	}

	if cfg.WaitTime < 0 {
		return &ValidationError{Field: "listener.wait_time", Message: "must be non-negative"}
	}
	if cfg.WaitTime >= cfg.VisibilityTimeout {
		return &ValidationError{
			Field:   "listener.wait_time",
			Message: "must be shorter than the visibility timeout",
		}
	}

	return nil
}

func validateTransformers(cfgs []TransformerConfig) error {
	seen := make(map[string]bool, len(cfgs))

	for i, tc := range cfgs {
		field := fmt.Sprintf("transformers[%d]", i)
		key := strings.Trim(tc.Key, "/")
		if key == "" {
			return required(field+".key", "transformer key")
		}
		if seen[key] {
			return &ValidationError{Field: field + ".key", Message: fmt.Sprintf("duplicate transformer key %q", key)}
		}
		seen[key] = true

		if !transformerKinds[tc.Kind] {
			return &ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("unknown transformer kind %q (supported: jsonl, json, csv)", tc.Kind),
			}
		}
		for j, p := range tc.Project {
			if p.Field == "" || p.Expr == "" {
				return &ValidationError{
					Field:   fmt.Sprintf("%s.project[%d]", field, j),
					Message: "field and expr are required",
				}
			}
		}
		if tc.Kind == "csv" && len([]rune(tc.CSV.Delimiter)) > 1 {
			return &ValidationError{Field: field + ".csv.delimiter", Message: "must be a single character"}
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{Field: "retry.max_attempts", Message: "max_attempts must be non-negative"}
	}
	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return &ValidationError{Field: "retry.initial_interval", Message: "intervals must be non-negative"}
	}
	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}
	if cfg.Multiplier < 0 {
		return &ValidationError{Field: "retry.multiplier", Message: "multiplier must be non-negative"}
	}
	return nil
}
