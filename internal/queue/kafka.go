package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ingest/internal/config"
	"ingest/internal/constants"
	"ingest/internal/logger"
	"ingest/pkg/errors"
)

// KafkaReader is the subset of *kafka.Reader the queue uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter is the subset of *kafka.Writer used for dead-lettering.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue consumes bucket notifications from a topic, as published by
// S3-compatible stores such as MinIO. Acknowledging commits the offset.
//
// Kafka commits offsets in order, so at most one message is outstanding at a
// time. An unacknowledged message is handed out again once its visibility
// timeout elapses and no later message is fetched until it is acknowledged.
// Once a message has been received maxReceive times it is published to the
// dead-letter topic and committed, so later offsets are not starved.
type KafkaQueue struct {
	reader      KafkaReader
	deadLetters KafkaWriter
	maxReceive  int
	logger      logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	pending *inflight
}

type inflight struct {
	msg       kafka.Message
	id        string
	count     int
	visibleAt time.Time
}

func NewKafkaQueue(cfg config.KafkaConfig, log logger.Logger) *KafkaQueue {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
		MaxWait: constants.KafkaMaxWait,
		// Commits are explicit and synchronous.
		CommitInterval: 0,
	})

	var deadLetters KafkaWriter
	if cfg.MaxReceiveCount > 0 {
		deadLetters = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.DeadLetterTopicName(),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
	}
	return newKafkaQueue(reader, deadLetters, cfg.MaxReceiveCount, log, time.Now)
}

func newKafkaQueue(reader KafkaReader, deadLetters KafkaWriter, maxReceive int, log logger.Logger, now func() time.Time) *KafkaQueue {
	if deadLetters == nil {
		maxReceive = 0
	}
	return &KafkaQueue{
		reader:      reader,
		deadLetters: deadLetters,
		maxReceive:  maxReceive,
		logger:      log,
		now:         now,
	}
}

func kafkaMessageID(m kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

func (q *KafkaQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending != nil {
		now := q.now()
		if now.Before(q.pending.visibleAt) {
			return nil, nil
		}
		if q.maxReceive > 0 && q.pending.count >= q.maxReceive {
			if err := q.deadLetter(ctx); err != nil {
				return nil, err
			}
			return q.fetch(ctx, opts)
		}
		q.pending.count++
		q.pending.visibleAt = now.Add(opts.VisibilityTimeout)
		q.logger.WarnwCtx(ctx, "Redelivering unacknowledged Kafka message",
			"message_id", q.pending.id,
			"receive_count", q.pending.count,
		)
		return []Message{q.pending.toMessage()}, nil
	}

	return q.fetch(ctx, opts)
}

func (q *KafkaQueue) fetch(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	fetchCtx := ctx
	if opts.WaitTime > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, opts.WaitTime)
		defer cancel()
	}

	m, err := q.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, errors.ErrQueueIO.WithMessage("failed to fetch Kafka message").WithCause(err)
	}

	q.pending = &inflight{
		msg:       m,
		id:        kafkaMessageID(m),
		count:     1,
		visibleAt: q.now().Add(opts.VisibilityTimeout),
	}

	return []Message{q.pending.toMessage()}, nil
}

func (q *KafkaQueue) Ack(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil || q.pending.id != msg.ReceiptHandle {
		return errors.ErrQueueIO.
			WithMessage("message is not outstanding").
			WithDetail("message_id", msg.ID).
			AsFatal()
	}

	commitCtx, cancel := context.WithTimeout(ctx, constants.KafkaCommitTimeout)
	defer cancel()

	if err := q.reader.CommitMessages(commitCtx, q.pending.msg); err != nil {
		return errors.ErrQueueIO.
			WithMessage("failed to commit Kafka offset").
			WithDetail("message_id", msg.ID).
			WithCause(err)
	}

	q.pending = nil
	return nil
}

// deadLetter moves the outstanding message to the dead-letter topic and
// commits it. On failure the message stays outstanding.
func (q *KafkaQueue) deadLetter(ctx context.Context) error {
	p := q.pending
	dl := kafka.Message{
		Key:   p.msg.Key,
		Value: p.msg.Value,
		Headers: append(append([]kafka.Header(nil), p.msg.Headers...),
			kafka.Header{Key: "x-original-topic", Value: []byte(p.msg.Topic)},
			kafka.Header{Key: "x-original-partition", Value: []byte(strconv.Itoa(p.msg.Partition))},
			kafka.Header{Key: "x-original-offset", Value: []byte(strconv.FormatInt(p.msg.Offset, 10))},
			kafka.Header{Key: "x-receive-count", Value: []byte(strconv.Itoa(p.count))},
		),
	}

	writeCtx, cancel := context.WithTimeout(ctx, constants.KafkaCommitTimeout)
	defer cancel()

	if err := q.deadLetters.WriteMessages(writeCtx, dl); err != nil {
		return errors.ErrQueueIO.
			WithMessage("failed to publish Kafka message to dead-letter topic").
			WithDetail("message_id", p.id).
			WithCause(err)
	}
	if err := q.reader.CommitMessages(writeCtx, p.msg); err != nil {
		return errors.ErrQueueIO.
			WithMessage("failed to commit dead-lettered Kafka offset").
			WithDetail("message_id", p.id).
			WithCause(err)
	}

	q.logger.ErrorwCtx(ctx, "Moved Kafka message to dead-letter topic",
		"message_id", p.id,
		"receive_count", p.count,
	)
	q.pending = nil
	return nil
}

func (q *KafkaQueue) Close() error {
	var errs []error
	if err := q.reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if q.deadLetters != nil {
		if err := q.deadLetters.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (p *inflight) toMessage() Message {
	msg := Message{
		ID:            p.id,
		ReceiptHandle: p.id,
		Body:          p.msg.Value,
		ReceiveCount:  p.count,
		SentAt:        p.msg.Time,
	}
	if len(p.msg.Headers) > 0 {
		msg.Attributes = make(map[string]string, len(p.msg.Headers))
		for _, h := range p.msg.Headers {
			msg.Attributes[h.Key] = string(h.Value)
		}
	}
	return msg
}
