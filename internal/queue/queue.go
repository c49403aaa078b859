package queue

import (
	"context"
	"time"
)

// Message is one delivery of a queued notification. The same notification
// may be delivered again until it is acknowledged.
type Message struct {
	ID string
	// ReceiptHandle identifies this delivery; it is what Ack consumes.
	ReceiptHandle string
	Body          []byte
	// ReceiveCount is the number of times the message has been delivered,
	// including this one. Zero when the backend does not report it.
	ReceiveCount int
	SentAt       time.Time
	// Attributes carries string metadata such as trace context headers.
	Attributes map[string]string
}

type ReceiveOptions struct {
	Max               int
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
}

// Client receives notifications and acknowledges them once processed. An
// unacknowledged message becomes visible again after its visibility timeout.
type Client interface {
	Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error)
	Ack(ctx context.Context, msg Message) error
	Close() error
}
