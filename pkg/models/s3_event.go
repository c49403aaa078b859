package models

import "time"

// S3EventEnvelope is the body S3 publishes for object events, either
// directly to a queue or inside an SNS notification.
type S3EventEnvelope struct {
	Records []S3EventRecord `json:"Records"`
	// Event is only set on the s3:TestEvent S3 sends when a notification
	// configuration is created.
	Event  string `json:"Event,omitempty"`
	Bucket string `json:"Bucket,omitempty"`
}

type S3EventRecord struct {
	EventVersion string    `json:"eventVersion"`
	EventSource  string    `json:"eventSource"`
	AWSRegion    string    `json:"awsRegion"`
	EventTime    time.Time `json:"eventTime"`
	EventName    string    `json:"eventName"`
	S3           S3Entity  `json:"s3"`
}

type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
	ARN  string `json:"arn,omitempty"`
}

type S3Object struct {
	Key       string `json:"key"`
	Size      int64  `json:"size,omitempty"`
	ETag      string `json:"eTag,omitempty"`
	VersionID string `json:"versionId,omitempty"`
	Sequencer string `json:"sequencer,omitempty"`
}

// SNSNotification is the wrapper SNS adds when the bucket publishes to a
// topic that fans out to the queue.
type SNSNotification struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicARN  string `json:"TopicArn"`
	Message   string `json:"Message"`
}

const (
	S3TestEvent         = "s3:TestEvent"
	SNSTypeNotification = "Notification"
)
