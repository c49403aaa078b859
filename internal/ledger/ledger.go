package ledger

import (
	"context"
	"time"

	"ingest/internal/notification"
)

// Entry records that an input object was transformed and where the result
// went. It is written after the output and before the message is acked.
type Entry struct {
	Bucket         string    `json:"bucket" bson:"bucket" dynamodbav:"bucket"`
	Key            string    `json:"key" bson:"key" dynamodbav:"object_key"`
	ProcessedAt    time.Time `json:"processed_at" bson:"processed_at" dynamodbav:"processed_at"`
	OutputBucket   string    `json:"output_bucket" bson:"output_bucket" dynamodbav:"output_bucket"`
	OutputKey      string    `json:"output_key" bson:"output_key" dynamodbav:"output_key"`
	OutputParts    int       `json:"output_parts" bson:"output_parts" dynamodbav:"output_parts"`
	RecordCount    int       `json:"record_count" bson:"record_count" dynamodbav:"record_count"`
	TransformerKey string    `json:"transformer_key" bson:"transformer_key" dynamodbav:"transformer_key"`
}

func (e Entry) Identity() notification.ObjectIdentity {
	return notification.ObjectIdentity{Bucket: e.Bucket, Key: e.Key}
}

// OutputLocation is the s3:// URI of the output object, or of the first part
// when the output was split.
func (e Entry) OutputLocation() string {
	return notification.ObjectIdentity{Bucket: e.OutputBucket, Key: e.OutputKey}.String()
}

// Ledger is the durable record of processed objects.
//
// Lookup returns nil, nil when the object has not been processed. Record is
// idempotent: recording an identity that already exists succeeds and leaves
// the first entry in place.
type Ledger interface {
	Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error)
	Record(ctx context.Context, entry Entry) error
}

// documentID is the single-string form of an identity used as the primary
// key by backends without composite keys.
func documentID(id notification.ObjectIdentity) string {
	return id.String()
}
