package output

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/transform"
	"ingest/pkg/errors"
)

type put struct {
	bucket, key, contentType string
	body                     string
}

type recordingStore struct {
	puts   []put
	failAt int
}

func (s *recordingStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, stderrors.New("not used")
}

func (s *recordingStore) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	if s.failAt > 0 && len(s.puts)+1 == s.failAt {
		return errors.ErrStorageIO.WithMessage("boom")
	}
	s.puts = append(s.puts, put{bucket: bucket, key: key, contentType: contentType, body: string(body)})
	return nil
}

func TestEncodeNDJSON(t *testing.T) {
	tests := []struct {
		name    string
		records []transform.Record
		want    string
	}{
		{name: "empty", records: nil, want: ""},
		{name: "single", records: []transform.Record{{"a": json.Number("1")}}, want: "{\"a\":1}\n"},
		{
			name: "sorted keys and order kept",
			records: []transform.Record{
				{"b": "x", "a": true},
				{"z": nil},
			},
			want: "{\"a\":true,\"b\":\"x\"}\n{\"z\":null}\n",
		},
		{name: "no html escaping", records: []transform.Record{{"html": "<b>&</b>"}}, want: "{\"html\":\"<b>&</b>\"}\n"},
		{name: "nil record", records: []transform.Record{nil}, want: "{}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeNDJSON(tt.records)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeNDJSON_Unserializable(t *testing.T) {
	_, err := EncodeNDJSON([]transform.Record{{"ok": 1}, {"ch": make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestWriter_SingleObject(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, "out", "", 0)

	objects, err := w.Plan("alpha/beta/2024-01-01T00:00:00Z", []transform.Record{{"a": json.Number("1")}})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.NoError(t, w.Write(context.Background(), objects))

	require.Len(t, store.puts, 1)
	assert.Equal(t, put{
		bucket:      "out",
		key:         "alpha/beta/2024-01-01T00:00:00Z",
		contentType: "application/x-ndjson",
		body:        "{\"a\":1}\n",
	}, store.puts[0])
}

func TestWriter_EmptyResultStillWritesObject(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, "out", "application/x-ndjson", 2)

	objects, err := w.Plan("k", nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), objects))

	require.Len(t, store.puts, 1)
	assert.Equal(t, "k", store.puts[0].key)
	assert.Empty(t, store.puts[0].body)
}

func TestWriter_Chunking(t *testing.T) {
	store := &recordingStore{}
	w := NewWriter(store, "out", "", 2)

	records := []transform.Record{{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4}, {"n": 5}}
	objects, err := w.Plan("a/b/ts", records)
	require.NoError(t, err)
	require.Len(t, objects, 3)
	assert.Equal(t, "a/b/ts.part-0000", objects[0].Key)
	assert.Equal(t, "a/b/ts.part-0002", objects[2].Key)
	assert.Equal(t, 1, objects[2].Records)

	require.NoError(t, w.Write(context.Background(), objects))
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", store.puts[0].body)
	assert.Equal(t, "{\"n\":5}\n", store.puts[2].body)
}

func TestWriter_StopsAtFirstFailure(t *testing.T) {
	store := &recordingStore{failAt: 2}
	w := NewWriter(store, "out", "", 1)

	objects, err := w.Plan("k", []transform.Record{{"n": 1}, {"n": 2}, {"n": 3}})
	require.NoError(t, err)

	err = w.Write(context.Background(), objects)
	require.Error(t, err)
	assert.True(t, errors.IsStorageIO(err))
	assert.Len(t, store.puts, 1)
}

func TestWriter_PlanRejectsUnserializable(t *testing.T) {
	w := NewWriter(&recordingStore{}, "out", "", 0)

	_, err := w.Plan("k", []transform.Record{{"f": func() {}}})
	require.Error(t, err)
	assert.True(t, errors.IsTransformation(err))
}
