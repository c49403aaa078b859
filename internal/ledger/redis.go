package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ingest/internal/notification"
	"ingest/pkg/metrics"
)

const redisBackend = "redis"

// RedisLedger stores one JSON value per identity under keyPrefix. Entries
// expire after ttl when it is positive.
type RedisLedger struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

func NewRedisLedger(client redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (l *RedisLedger) key(id notification.ObjectIdentity) string {
	return l.keyPrefix + documentID(id)
}

func (l *RedisLedger) Lookup(ctx context.Context, id notification.ObjectIdentity) (*Entry, error) {
	raw, err := l.client.Get(ctx, l.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		metrics.IncLedgerLookup(redisBackend, "miss")
		return nil, nil
	}
	if err != nil {
		metrics.IncLedgerLookup(redisBackend, "error")
		return nil, ledgerIOError("lookup", id, fmt.Errorf("redis GET failed: %w", err))
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		metrics.IncLedgerLookup(redisBackend, "error")
		return nil, ledgerIOError("lookup", id, fmt.Errorf("corrupt ledger value: %w", err))
	}

	metrics.IncLedgerLookup(redisBackend, "hit")
	return &entry, nil
}

func (l *RedisLedger) Record(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return ledgerIOError("record", entry.Identity(), err)
	}

	// SetNX reports false when the key exists; the first entry wins.
	if _, err := l.client.SetNX(ctx, l.key(entry.Identity()), value, l.ttl).Result(); err != nil {
		return ledgerIOError("record", entry.Identity(), fmt.Errorf("redis SetNX failed: %w", err))
	}
	return nil
}

// Count returns the number of ledger keys under the prefix.
func (l *RedisLedger) Count(ctx context.Context) (int, error) {
	iter := l.client.Scan(ctx, 0, l.keyPrefix+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan failed: %w", err)
	}
	return count, nil
}
