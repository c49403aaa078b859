// Package ingestion runs the poll, transform and write loop that turns
// object notifications into normalized output objects.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"ingest/internal/config"
	"ingest/internal/ledger"
	"ingest/internal/logger"
	"ingest/internal/notification"
	"ingest/internal/output"
	"ingest/internal/queue"
	"ingest/internal/storage"
	"ingest/internal/transform"
	"ingest/pkg/errors"
	"ingest/pkg/logging"
	"ingest/pkg/metrics"
	"ingest/pkg/retry"
	"ingest/pkg/tracing"
)

// Dependencies are the collaborators the loop drives. All are required.
type Dependencies struct {
	Queue    queue.Client
	Store    storage.ObjectStore
	Ledger   ledger.Ledger
	Registry *transform.Registry
	Logger   logger.Logger
}

type Options struct {
	Listener config.ListenerConfig
	Output   config.OutputConfig
	// Retry bounds in-attempt retries of IO phases.
	Retry retry.Policy

	// Now and Sleep default to the wall clock; tests replace them.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome summarizes one iteration.
type Outcome struct {
	Received    int
	Acked       int
	Undecodable int
	// Failed counts messages left unacknowledged because a record failed or
	// the ack itself failed.
	Failed int
}

func (o Outcome) Empty() bool {
	return o.Received == 0
}

type Loop struct {
	queue    queue.Client
	store    storage.ObjectStore
	ledger   ledger.Ledger
	registry *transform.Registry
	writer   *output.Writer
	keys     *notification.KeyGenerator
	logger   logger.Logger

	listener config.ListenerConfig
	retry    retry.Policy
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(deps Dependencies, opts Options) *Loop {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.NoRetry()
	}

	return &Loop{
		queue:    deps.Queue,
		store:    deps.Store,
		ledger:   deps.Ledger,
		registry: deps.Registry,
		writer:   output.NewWriter(deps.Store, opts.Output.Bucket, opts.Output.ContentType, opts.Output.MaxRecordsPerObject),
		keys:     notification.NewKeyGenerator(opts.Now),
		logger:   deps.Logger,
		listener: opts.Listener,
		retry:    opts.Retry,
		now:      opts.Now,
		sleep:    opts.Sleep,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls until ctx is canceled. Failures never end the loop; they are
// logged and followed by the error backoff.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.InfowCtx(ctx, "Ingestion loop started",
		"max_messages", l.listener.MaxMessages,
		"visibility_timeout", l.listener.VisibilityTimeout,
		"output_bucket", l.writer.Bucket(),
	)

	for {
		if ctx.Err() != nil {
			l.logger.InfowCtx(ctx, "Ingestion loop stopped", "reason", "context canceled")
			return nil
		}

		outcome, err := l.RunOnce(ctx)

		var backoff time.Duration
		switch {
		case ctx.Err() != nil:
			continue
		case err != nil:
			l.logger.ErrorwCtx(ctx, "Ingestion iteration failed",
				"error", err,
				"backoff", l.listener.ErrorBackoff,
			)
			backoff = l.listener.ErrorBackoff
		case outcome.Empty():
			metrics.EmptyPollsTotal.Inc()
			l.logger.DebugwCtx(ctx, "No messages received", "backoff", l.listener.EmptyBackoff)
			backoff = l.listener.EmptyBackoff
		case outcome.Failed > 0:
			l.logger.WarnwCtx(ctx, "Messages left for redelivery",
				"failed", outcome.Failed,
				"backoff", l.listener.ErrorBackoff,
			)
			backoff = l.listener.ErrorBackoff
		}

		if backoff > 0 {
			if err := l.sleep(ctx, backoff); err != nil {
				continue
			}
		}
	}
}

// RunOnce performs one receive and processes what it returned. The error is
// non-nil only when the receive failed or the iteration panicked; per-message
// failures are reported through the Outcome.
func (l *Loop) RunOnce(ctx context.Context) (outcome Outcome, err error) {
	err = errors.Guard(func() error {
		var messages []queue.Message
		pollErr := l.phase(ctx, PhasePoll, func(ctx context.Context) error {
			var err error
			messages, err = l.queue.Receive(ctx, queue.ReceiveOptions{
				Max:               l.listener.MaxMessages,
				VisibilityTimeout: l.listener.VisibilityTimeout,
				WaitTime:          l.listener.WaitTime,
			})
			return err
		})
		if pollErr != nil {
			return pollErr
		}

		outcome.Received = len(messages)
		for _, msg := range messages {
			if ctx.Err() != nil {
				// Unprocessed messages become visible again on their own.
				break
			}
			switch l.handleMessage(ctx, msg) {
			case messageAcked, messageTestEvent:
				outcome.Acked++
			case messageUndecodable:
				outcome.Undecodable++
			default:
				outcome.Failed++
			}
		}
		return nil
	})
	return outcome, err
}

func (l *Loop) handleMessage(ctx context.Context, msg queue.Message) string {
	ctx, span := tracing.StartSpanFromMessage(ctx, "ingest.message", msg.Attributes)
	defer span.End()

	traceID := uuid.NewString()
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	ctx = logging.WithTraceID(logging.WithMessageID(ctx, msg.ID), traceID)

	if msg.ReceiveCount > 0 {
		metrics.MessageReceiveCount.Observe(float64(msg.ReceiveCount))
		if msg.ReceiveCount > 1 {
			l.logger.WarnwCtx(ctx, "Message redelivered", "receive_count", msg.ReceiveCount)
		}
	}

	var n *notification.Notification
	err := l.phase(ctx, PhaseDecode, func(context.Context) error {
		var err error
		n, err = notification.Decode(msg.Body)
		return err
	})
	if err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to decode notification, leaving message unacknowledged",
			"error", err,
			"error_code", errors.Code(err),
			"body_bytes", len(msg.Body),
		)
		metrics.IncRecordFailure(errors.Code(err), PhaseDecode)
		metrics.IncMessage(messageUndecodable)
		tracing.EndSpan(span, err)
		return messageUndecodable
	}

	status := messageAcked
	if n.TestEvent {
		l.logger.InfowCtx(ctx, "Received storage test event")
		status = messageTestEvent
	}

	failures := 0
	for _, rec := range n.Records {
		if ctx.Err() != nil {
			return messageFailed
		}
		if !l.handleRecord(ctx, rec) {
			failures++
		}
	}
	if failures > 0 {
		l.logger.WarnwCtx(ctx, "Message not acknowledged",
			"records", len(n.Records),
			"failed_records", failures,
		)
		metrics.IncMessage(messageFailed)
		return messageFailed
	}

	if err := l.phase(ctx, PhaseAck, func(ctx context.Context) error {
		return l.withRetry(ctx, PhaseAck, func(ctx context.Context) error {
			return l.queue.Ack(ctx, msg)
		})
	}); err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to acknowledge message", "error", err)
		metrics.IncMessage(messageFailed)
		return messageFailed
	}

	metrics.IncMessage(status)
	metrics.MarkSuccess(l.now())
	return status
}

// handleRecord runs one record through the pipeline and reports whether it
// is done, either processed now or found in the ledger.
func (l *Loop) handleRecord(ctx context.Context, rec notification.Record) bool {
	ctx = logging.WithObject(ctx, rec.Bucket, rec.Key)
	ctx, span := tracing.StartSpan(ctx, "ingest.record",
		attribute.String("s3.bucket", rec.Bucket),
		attribute.String("s3.key", rec.Key),
	)

	entry, phase, err := l.processRecord(ctx, rec)
	tracing.EndSpan(span, err)

	if err != nil {
		l.logger.ErrorwCtx(ctx, "Failed to process record",
			"failed_phase", phase,
			"error", err,
			"error_code", errors.Code(err),
		)
		metrics.IncRecord(recordFailed)
		metrics.IncRecordFailure(errors.Code(err), phase)
		return false
	}

	if entry == nil {
		metrics.IncRecord(recordSkipped)
		return true
	}

	metrics.IncRecord(recordProcessed)
	l.logger.InfowCtx(ctx, "Record processed",
		"output", entry.OutputLocation(),
		"output_parts", entry.OutputParts,
		"record_count", entry.RecordCount,
		"transformer_key", entry.TransformerKey,
	)
	return true
}

// processRecord returns the new ledger entry, or nil when the object was
// already processed. On failure it also returns the phase that failed.
func (l *Loop) processRecord(ctx context.Context, rec notification.Record) (*ledger.Entry, string, error) {
	var existing *ledger.Entry
	if err := l.phase(ctx, PhaseDedupCheck, func(ctx context.Context) error {
		return l.withRetry(ctx, PhaseDedupCheck, func(ctx context.Context) error {
			var err error
			existing, err = l.ledger.Lookup(ctx, rec.ObjectIdentity)
			return err
		})
	}); err != nil {
		return nil, PhaseDedupCheck, err
	}
	if existing != nil {
		l.logger.InfowCtx(ctx, "Object already processed, skipping",
			"processed_at", existing.ProcessedAt,
			"output", existing.OutputLocation(),
		)
		return nil, "", nil
	}

	transformerKey := rec.TransformerKey()
	transformer, err := l.registry.Lookup(transformerKey)
	if err != nil {
		return nil, PhaseTransform, err
	}

	var raw []byte
	if err := l.phase(ctx, PhaseFetch, func(ctx context.Context) error {
		return l.withRetry(ctx, PhaseFetch, func(ctx context.Context) error {
			var err error
			raw, err = l.store.Get(ctx, rec.Bucket, rec.Key)
			return err
		})
	}); err != nil {
		return nil, PhaseFetch, err
	}

	var records []transform.Record
	if err := l.phase(ctx, PhaseTransform, func(ctx context.Context) error {
		var err error
		records, err = transformer.Transform(ctx, raw)
		return transform.AsTransformationError(err)
	}); err != nil {
		return nil, PhaseTransform, err
	}

	outputKey, processedAt := l.keys.Next(rec.Key)
	objects, err := l.writer.Plan(outputKey, records)
	if err != nil {
		return nil, PhaseTransform, err
	}

	if err := l.phase(ctx, PhaseWrite, func(ctx context.Context) error {
		return l.withRetry(ctx, PhaseWrite, func(ctx context.Context) error {
			return l.writer.Write(ctx, objects)
		})
	}); err != nil {
		return nil, PhaseWrite, err
	}
	metrics.AddOutputRecords(transformerKey, len(records))

	entry := ledger.Entry{
		Bucket:         rec.Bucket,
		Key:            rec.Key,
		ProcessedAt:    processedAt,
		OutputBucket:   l.writer.Bucket(),
		OutputKey:      objects[0].Key,
		OutputParts:    len(objects),
		RecordCount:    len(records),
		TransformerKey: transformerKey,
	}

	// The output exists now; the ledger write is allowed to finish even if
	// shutdown starts, within FinishTimeout.
	ledgerCtx, cancel := l.detached(ctx)
	defer cancel()
	if err := l.phase(ledgerCtx, PhaseLedgerWrite, func(ctx context.Context) error {
		return l.withRetry(ctx, PhaseLedgerWrite, func(ctx context.Context) error {
			return l.ledger.Record(ctx, entry)
		})
	}); err != nil {
		return nil, PhaseLedgerWrite, err
	}

	return &entry, "", nil
}

func (l *Loop) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.listener.FinishTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), l.listener.FinishTimeout)
}

// phase runs fn as a named step: tagged logs, a span and a duration sample.
func (l *Loop) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx = logging.WithPhase(ctx, name)
	ctx, span := tracing.StartSpan(ctx, "ingest."+name)
	start := time.Now()

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ObservePhase(name, status, time.Since(start))
	tracing.EndSpan(span, err)
	return err
}

func (l *Loop) withRetry(ctx context.Context, phase string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, l.retry, fn, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("ingestion", phase)
		l.logger.WarnwCtx(ctx, "Retrying after transient failure",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
}
