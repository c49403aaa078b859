package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithMessageID(ctx, "m-1")
	ctx = WithObject(ctx, "raw", "alpha/beta/x.jsonl")
	ctx = WithPhase(ctx, "fetch")
	ctx = WithTraceID(ctx, "t-1")

	assert.Equal(t, []interface{}{
		"trace_id", "t-1",
		"message_id", "m-1",
		"bucket", "raw",
		"key", "alpha/beta/x.jsonl",
		"phase", "fetch",
	}, GetLogFields(ctx))
	assert.Equal(t, "fetch", GetPhase(ctx))
}
