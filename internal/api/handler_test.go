package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/ledger"
	"ingest/internal/logger"
	"ingest/internal/notification"
	"ingest/internal/transform"
	"ingest/pkg/errors"
)

type stubLedger struct {
	entries map[notification.ObjectIdentity]ledger.Entry
	err     error
}

func (s *stubLedger) Lookup(_ context.Context, id notification.ObjectIdentity) (*ledger.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *stubLedger) Record(_ context.Context, e ledger.Entry) error {
	s.entries[e.Identity()] = e
	return nil
}

type countingLedger struct {
	stubLedger
	n int
}

func (c *countingLedger) Count(context.Context) (int, error) { return c.n, nil }

type fixedState string

func (f fixedState) State() string { return string(f) }

func newRouter(l ledger.Ledger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	registry := transform.NewRegistry()
	registry.MustRegister("alpha/beta", transform.JSONLines{})
	registry.MustRegister("gamma/delta", transform.JSONLines{})

	h := NewHandler(registry, l, map[string]StateReporter{"storage": fixedState("closed")}, logger.NopLogger())
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func get(t *testing.T, r http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestListTransformers(t *testing.T) {
	w := get(t, newRouter(&stubLedger{}), "/api/v1/transformers")
	require.Equal(t, http.StatusOK, w.Code)

	var resp TransformersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"alpha/beta", "gamma/delta"}, resp.Transformers)
}

func TestListBreakers(t *testing.T) {
	w := get(t, newRouter(&stubLedger{}), "/api/v1/breakers")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"storage":"closed"}`, w.Body.String())
}

func TestGetLedgerEntry(t *testing.T) {
	id := notification.ObjectIdentity{Bucket: "raw", Key: "alpha/beta/x 1.jsonl"}
	l := &stubLedger{entries: map[notification.ObjectIdentity]ledger.Entry{
		id: {
			Bucket:       id.Bucket,
			Key:          id.Key,
			ProcessedAt:  time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
			OutputBucket: "out",
			OutputKey:    "alpha/beta/2024-01-01T12:30:00Z",
			RecordCount:  2,
		},
	}}
	r := newRouter(l)

	t.Run("found", func(t *testing.T) {
		q := url.Values{"bucket": {id.Bucket}, "key": {id.Key}}
		w := get(t, r, "/api/v1/ledger/entry?"+q.Encode())
		require.Equal(t, http.StatusOK, w.Code)

		var entry ledger.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, "alpha/beta/2024-01-01T12:30:00Z", entry.OutputKey)
		assert.Equal(t, 2, entry.RecordCount)
	})

	t.Run("not processed", func(t *testing.T) {
		w := get(t, r, "/api/v1/ledger/entry?bucket=raw&key=other")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "NOT_FOUND")
	})

	t.Run("missing key", func(t *testing.T) {
		w := get(t, r, "/api/v1/ledger/entry?bucket=raw")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	})
}

func TestGetLedgerEntry_BackendError(t *testing.T) {
	r := newRouter(&stubLedger{err: errors.ErrLedgerIO.WithMessage("timeout")})
	w := get(t, r, "/api/v1/ledger/entry?bucket=raw&key=k")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "LEDGER_IO_ERROR")
}

func TestCountLedger(t *testing.T) {
	w := get(t, newRouter(&countingLedger{n: 7}), "/api/v1/ledger/count")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":7}`, w.Body.String())

	w = get(t, newRouter(&stubLedger{}), "/api/v1/ledger/count")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
