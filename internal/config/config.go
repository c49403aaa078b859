package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	AWS            AWSConfig            `mapstructure:"aws"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	Output         OutputConfig         `mapstructure:"output"`
	Listener       ListenerConfig       `mapstructure:"listener"`
	Transformers   []TransformerConfig  `mapstructure:"transformers"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AWSConfig is shared by every AWS-backed component. Endpoint overrides the
// resolved service endpoint (LocalStack, ElasticMQ); static credentials are
// optional and fall back to the default provider chain.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type QueueConfig struct {
	Type  string      `mapstructure:"type"`
	SQS   SQSConfig   `mapstructure:"sqs"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type SQSConfig struct {
	QueueName string `mapstructure:"queue_name"`
	QueueURL  string `mapstructure:"queue_url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topic   string   `mapstructure:"topic"`
	// MaxReceiveCount bounds redeliveries of an unacknowledged message before
	// it is moved to the dead-letter topic. Zero disables dead-lettering.
	MaxReceiveCount int    `mapstructure:"max_receive_count"`
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
}

// DeadLetterTopicName defaults to "<topic>.dlq".
func (c KafkaConfig) DeadLetterTopicName() string {
	if c.DeadLetterTopic != "" {
		return c.DeadLetterTopic
	}
	return c.Topic + ".dlq"
}

type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Minio MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Insecure  bool   `mapstructure:"insecure"`
}

type LedgerConfig struct {
	Type     string         `mapstructure:"type"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type DynamoDBConfig struct {
	TableName string `mapstructure:"table_name"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTLSeconds of 0 keeps entries forever.
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type PostgresConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

type OutputConfig struct {
	Bucket string `mapstructure:"bucket"`
	// MaxRecordsPerObject splits large results into numbered part objects.
	// 0 writes a single object per input.
	MaxRecordsPerObject int    `mapstructure:"max_records_per_object"`
	ContentType         string `mapstructure:"content_type"`
}

type ListenerConfig struct {
	MaxMessages       int           `mapstructure:"max_messages"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	EmptyBackoff      time.Duration `mapstructure:"empty_backoff"`
	ErrorBackoff      time.Duration `mapstructure:"error_backoff"`
	// FinishTimeout bounds the ledger write that completes an in-flight record
	// after shutdown was requested.
	FinishTimeout time.Duration `mapstructure:"finish_timeout"`
}

// TransformerConfig registers one built-in transformer under a dispatch key.
type TransformerConfig struct {
	Key     string             `mapstructure:"key"`
	Kind    string             `mapstructure:"kind"`
	Filter  string             `mapstructure:"filter"`
	Project []ProjectionConfig `mapstructure:"project"`
	CSV     CSVConfig          `mapstructure:"csv"`
}

// ProjectionConfig is a list entry rather than a map key so that field
// names keep their case (viper lowercases map keys).
type ProjectionConfig struct {
	Field string `mapstructure:"field"`
	Expr  string `mapstructure:"expr"`
}

type CSVConfig struct {
	Delimiter string `mapstructure:"delimiter"`
	Comment   string `mapstructure:"comment"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// UsesAWS reports whether any configured backend needs the AWS SDK config.
func (c *Config) UsesAWS() bool {
	return c.Queue.Type == QueueTypeSQS || c.Storage.Type == StorageTypeS3 || c.Ledger.Type == LedgerTypeDynamoDB
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
