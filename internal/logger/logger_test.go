package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ingest/pkg/logging"
)

func TestSugaredLogger_ContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))
	log.(*SugaredLogger).SetServiceName("ingest-service")

	ctx := logging.WithObject(context.Background(), "raw", "alpha/beta/x.jsonl")
	log.ErrorwCtx(ctx, "Fetch failed", "error", "timeout")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "raw", fields["bucket"])
	assert.Equal(t, "alpha/beta/x.jsonl", fields["key"])
	assert.Equal(t, "ingest-service", fields["service_name"])
	assert.Equal(t, "timeout", fields["error"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestNew(t *testing.T) {
	log, err := New("info", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)
}
