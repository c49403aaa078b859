package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"ingest/pkg/errors"
	"ingest/pkg/models"
)

// ObjectIdentity names one stored object. It is the ledger's primary key.
type ObjectIdentity struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (o ObjectIdentity) String() string {
	return "s3://" + o.Bucket + "/" + o.Key
}

// Record is one object-created event carried by a queue message.
type Record struct {
	ObjectIdentity
	EventName string
	EventTime time.Time
	Size      int64
	ETag      string
}

// TransformerKey is the registry key for the record's object.
func (r Record) TransformerKey() string {
	return TransformerKey(r.Key)
}

type Notification struct {
	Records []Record
	// TestEvent marks the probe S3 sends when a notification configuration is
	// saved. It carries no records and is acknowledged without processing.
	TestEvent bool
}

type envelope struct {
	models.S3EventEnvelope
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Decode parses a queue message body. Bodies published through SNS are
// unwrapped once. Object keys are URL-decoded since S3 form-encodes them in
// event payloads.
func Decode(body []byte) (*Notification, error) {
	return decode(body, true)
}

func decode(body []byte, allowSNS bool) (*Notification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.ErrDecode.WithMessage("message body is empty")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.ErrDecode.WithMessage("message body is not valid JSON").WithCause(err)
	}

	if allowSNS && env.Type == models.SNSTypeNotification && env.Message != "" {
		return decode([]byte(env.Message), false)
	}

	if env.Event == models.S3TestEvent {
		return &Notification{TestEvent: true}, nil
	}

	if len(env.Records) == 0 {
		return nil, errors.ErrDecode.WithMessage("message body contains no records")
	}

	n := &Notification{Records: make([]Record, 0, len(env.Records))}
	for i, raw := range env.Records {
		rec, err := toRecord(raw)
		if err != nil {
			return nil, errors.ErrDecode.
				WithMessage(fmt.Sprintf("record %d: %s", i, err.Error())).
				WithDetail("record_index", i)
		}
		n.Records = append(n.Records, rec)
	}

	return n, nil
}

func toRecord(raw models.S3EventRecord) (Record, error) {
	if raw.S3.Bucket.Name == "" {
		return Record{}, fmt.Errorf("bucket name is missing")
	}
	if raw.S3.Object.Key == "" {
		return Record{}, fmt.Errorf("object key is missing")
	}

	key, err := url.QueryUnescape(raw.S3.Object.Key)
	if err != nil {
		return Record{}, fmt.Errorf("object key %q is not URL-encoded: %w", raw.S3.Object.Key, err)
	}

	return Record{
		ObjectIdentity: ObjectIdentity{Bucket: raw.S3.Bucket.Name, Key: key},
		EventName:      raw.EventName,
		EventTime:      raw.EventTime,
		Size:           raw.S3.Object.Size,
		ETag:           raw.S3.Object.ETag,
	}, nil
}
