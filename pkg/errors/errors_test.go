package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Classification(t *testing.T) {
	cause := fmt.Errorf("connection reset")

	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{name: "decode", err: ErrDecode.WithCause(cause), retryable: false},
		{name: "no transformer", err: ErrNoTransformer.WithCause(cause), retryable: false},
		{name: "transformation", err: ErrTransformation.WithCause(cause), retryable: false},
		{name: "storage", err: ErrStorageIO.WithCause(cause), retryable: true},
		{name: "ledger", err: ErrLedgerIO.WithCause(cause), retryable: true},
		{name: "validation", err: ErrValidation, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("fetch: %w", ErrStorageIO.WithCause(fmt.Errorf("timeout")).WithDetail("bucket", "raw"))

	assert.True(t, stderrors.Is(err, ErrStorageIO))
	assert.False(t, stderrors.Is(err, ErrLedgerIO))
	assert.True(t, IsStorageIO(err))
	assert.Equal(t, "STORAGE_IO_ERROR", Code(err))
}

func TestError_DetailsDoNotLeakIntoSentinel(t *testing.T) {
	_ = ErrDecode.WithDetail("message_id", "m-1")
	assert.Empty(t, ErrDecode.Details)
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(ErrNotFound.WithDetail("key", "a/b"))
	assert.Equal(t, "NOT_FOUND", resp.ErrorCode)
	assert.Equal(t, "a/b", resp.Details["key"])
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(ErrNotFound))

	foreign := ToErrorResponse(fmt.Errorf("boom"))
	assert.Equal(t, "INTERNAL_ERROR", foreign.ErrorCode)
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(fmt.Errorf("boom")))
}

func TestGuard_RecoversPanic(t *testing.T) {
	err := Guard(func() error {
		panic("transformer exploded")
	})
	require.Error(t, err)

	var appErr *Error
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, true, appErr.Details["panic"])
	assert.True(t, appErr.IsFatal())
}
