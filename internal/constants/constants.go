package constants

import "time"

const (
	ServiceName = "ingest-service"
	TracerName  = "ingest"
)

const (
	KafkaCommitTimeout = 10 * time.Second
	KafkaMaxWait       = 1 * time.Second
)

const (
	SQSReceiveCountAttribute  = "ApproximateReceiveCount"
	SQSSentTimestampAttribute = "SentTimestamp"
)

const (
	ContentTypeNDJSON = "application/x-ndjson"
	OutputPartFormat  = "%s.part-%04d"
)

const (
	ShutdownTimeout    = 5 * time.Second
	ConnectTimeout     = 10 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

const (
	DefaultLedgerKeyPrefix  = "ledger:"
	DefaultMongoDBName      = "ingest"
	DefaultLedgerCollection = "ledger_entries"
)
