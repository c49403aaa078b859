package queue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/internal/logger"
	"ingest/pkg/errors"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSQueue struct {
	api      SQSAPI
	queueURL string
	logger   logger.Logger
}

// NewSQSQueue resolves the queue URL from its name unless a URL is
// configured. A queue that cannot be resolved fails startup.
func NewSQSQueue(ctx context.Context, api SQSAPI, cfg config.SQSConfig, log logger.Logger) (*SQSQueue, error) {
	queueURL := cfg.QueueURL
	if queueURL == "" {
		out, err := api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.QueueName)})
		if err != nil {
			return nil, errors.ErrQueueIO.
				WithMessage(fmt.Sprintf("failed to resolve SQS queue %q", cfg.QueueName)).
				WithCause(err)
		}
		queueURL = aws.ToString(out.QueueUrl)
	}

	log.Infow("SQS queue resolved", "queue_url", queueURL)

	return &SQSQueue{api: api, queueURL: queueURL, logger: log}, nil
}

func (q *SQSQueue) URL() string {
	return q.queueURL
}

func (q *SQSQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(opts.Max),
		VisibilityTimeout:   durationSeconds(opts.VisibilityTimeout),
		WaitTimeSeconds:     durationSeconds(opts.WaitTime),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ErrQueueIO.WithMessage("failed to receive SQS messages").WithCause(err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, fromSQS(m))
	}

	return messages, nil
}

func (q *SQSQueue) Ack(ctx context.Context, msg Message) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return errors.ErrQueueIO.
			WithMessage("failed to delete SQS message").
			WithDetail("message_id", msg.ID).
			WithCause(err)
	}
	return nil
}

func (q *SQSQueue) Close() error {
	return nil
}

func fromSQS(m types.Message) Message {
	msg := Message{
		ID:            aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          []byte(aws.ToString(m.Body)),
	}

	if v, ok := m.Attributes[constants.SQSReceiveCountAttribute]; ok {
		msg.ReceiveCount, _ = strconv.Atoi(v)
	}
	if v, ok := m.Attributes[constants.SQSSentTimestampAttribute]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			msg.SentAt = time.UnixMilli(ms).UTC()
		}
	}

	for name, attr := range m.MessageAttributes {
		if attr.StringValue == nil {
			continue
		}
		if msg.Attributes == nil {
			msg.Attributes = make(map[string]string, len(m.MessageAttributes))
		}
		msg.Attributes[name] = *attr.StringValue
	}

	return msg
}

func durationSeconds(d time.Duration) int32 {
	s := math.Ceil(d.Seconds())
	if s > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(s)
}
