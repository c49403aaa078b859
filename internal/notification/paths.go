package notification

import (
	"strings"
	"sync"
	"time"
)

// TransformerKey strips the final path segment from an object key:
// "alpha/beta/2024-01-01.jsonl" dispatches on "alpha/beta". A key without a
// separator yields "".
func TransformerKey(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	return key[:i]
}

// OutputKey joins a prefix and a timestamp the way output objects are named.
func OutputKey(prefix string, at time.Time) string {
	ts := at.UTC().Format(time.RFC3339Nano)
	if prefix == "" {
		return ts
	}
	return prefix + "/" + ts
}

// KeyGenerator hands out output keys that never repeat within the process,
// even when the clock does not advance between calls.
type KeyGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewKeyGenerator(now func() time.Time) *KeyGenerator {
	if now == nil {
		now = time.Now
	}
	return &KeyGenerator{now: now}
}

// Next returns the output key for inputKey and the timestamp embedded in it.
func (g *KeyGenerator) Next(inputKey string) (string, time.Time) {
	g.mu.Lock()
	ts := g.now().UTC()
	if !ts.After(g.last) {
		ts = g.last.Add(time.Nanosecond)
	}
	g.last = ts
	g.mu.Unlock()

	return OutputKey(TransformerKey(inputKey), ts), ts
}
