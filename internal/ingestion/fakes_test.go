package ingestion

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"

	"ingest/internal/ledger"
	"ingest/internal/notification"
	"ingest/internal/queue"
	"ingest/pkg/errors"
)

// fakeQueue hands out scripted batches, then empty receives.
type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	receives []queue.ReceiveOptions
	acked    []string
	ackErr   error
	recvErr  error
	onAck    func(ctx context.Context, msg queue.Message)
}

func (q *fakeQueue) Receive(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receives = append(q.receives, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.recvErr != nil {
		return nil, q.recvErr
	}
	if len(q.batches) == 0 {
		return nil, nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *fakeQueue) Ack(ctx context.Context, msg queue.Message) error {
	if q.onAck != nil {
		q.onAck(ctx, msg)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ackErr != nil {
		return q.ackErr
	}
	q.acked = append(q.acked, msg.ID)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

type storedObject struct {
	body        string
	contentType string
}

type memStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	gets    int
	puts    []string

	// getFailures makes the next n Get calls fail with a storage error.
	getFailures int
	putErr      error
	onPut       func()
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]storedObject)}
}

func (s *memStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getFailures > 0 {
		s.getFailures--
		return nil, errors.ErrStorageIO.WithMessage("transient fetch failure")
	}
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.ErrStorageIO.WithMessage("no such key").AsFatal()
	}
	return []byte(obj.body), nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onPut != nil {
		s.onPut()
	}
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[bucket+"/"+key] = storedObject{body: string(body), contentType: contentType}
	s.puts = append(s.puts, bucket+"/"+key)
	return nil
}

func (s *memStore) putObject(bucket, key, body string) {
	s.objects[bucket+"/"+key] = storedObject{body: body}
}

type memLedger struct {
	mu        sync.Mutex
	entries   map[notification.ObjectIdentity]ledger.Entry
	lookupErr error
	recordErr error
	// recordCtxErr captures ctx.Err() seen by Record.
	recordCtxErr error
	// beforeLookup runs outside the lock, so it may block.
	beforeLookup func()
	// afterRecord runs once a Record call has returned successfully.
	afterRecord func(ctx context.Context)
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[notification.ObjectIdentity]ledger.Entry)}
}

func (l *memLedger) Lookup(_ context.Context, id notification.ObjectIdentity) (*ledger.Entry, error) {
	if l.beforeLookup != nil {
		l.beforeLookup()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return nil, l.lookupErr
	}
	e, ok := l.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *memLedger) Record(ctx context.Context, e ledger.Entry) error {
	if err := l.record(ctx, e); err != nil {
		return err
	}
	if l.afterRecord != nil {
		l.afterRecord(ctx)
	}
	return nil
}

func (l *memLedger) record(ctx context.Context, e ledger.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordCtxErr = ctx.Err()
	if l.recordErr != nil {
		return l.recordErr
	}
	if _, ok := l.entries[e.Identity()]; !ok {
		l.entries[e.Identity()] = e
	}
	return nil
}

func s3Event(keys ...notification.ObjectIdentity) []byte {
	type object struct {
		Key string `json:"key"`
	}
	type bucket struct {
		Name string `json:"name"`
	}
	type s3 struct {
		Bucket bucket `json:"bucket"`
		Object object `json:"object"`
	}
	type record struct {
		EventName string `json:"eventName"`
		S3        s3     `json:"s3"`
	}

	records := make([]record, 0, len(keys))
	for _, k := range keys {
		records = append(records, record{
			EventName: "ObjectCreated:Put",
			S3:        s3{Bucket: bucket{Name: k.Bucket}, Object: object{Key: k.Key}},
		})
	}
	body, err := json.Marshal(map[string]interface{}{"Records": records})
	if err != nil {
		panic(err)
	}
	return body
}

func message(id string, body []byte) queue.Message {
	return queue.Message{ID: id, ReceiptHandle: "rh-" + id, Body: body, ReceiveCount: 1}
}

var errUnavailable = stderrors.New("service unavailable")

func obj(bucket, key string) notification.ObjectIdentity {
	return notification.ObjectIdentity{Bucket: bucket, Key: key}
}
