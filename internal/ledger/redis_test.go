package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/testutil"
)

func TestRedisLedger_Integration(t *testing.T) {
	client := testutil.Redis(t)
	exerciseLedger(t, NewRedisLedger(client, "ledger:test:", 0))
}

func TestRedisLedger_TTL(t *testing.T) {
	client := testutil.Redis(t)
	l := NewRedisLedger(client, "ledger:ttl:", time.Second)
	ctx := context.Background()
	entry := sampleEntry()

	require.NoError(t, l.Record(ctx, entry))

	ttl, err := client.TTL(ctx, l.key(entry.Identity())).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
