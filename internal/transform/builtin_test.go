package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/pkg/errors"
)

func TestJSONLines(t *testing.T) {
	raw := []byte("\xEF\xBB\xBF{\"a\":1}\n\n  {\"b\":\"x\",\"n\":12345678901234567890}\r\n")

	records, err := JSONLines{}.Transform(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, json.Number("1"), records[0]["a"])
	assert.Equal(t, json.Number("12345678901234567890"), records[1]["n"])
}

func TestJSONLines_Empty(t *testing.T) {
	records, err := JSONLines{}.Transform(context.Background(), []byte("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJSONLines_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":      "{\"a\":1}\nnope\n",
		"array line":    "[1,2]\n",
		"null line":     "null\n",
		"two per line":  "{\"a\":1} {\"b\":2}\n",
		"scalar string": "\"x\"\n",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := JSONLines{}.Transform(context.Background(), []byte(raw))
			require.Error(t, err)
			assert.True(t, errors.IsTransformation(err))
		})
	}
}

func TestJSONLines_ReportsLineNumber(t *testing.T) {
	_, err := JSONLines{}.Transform(context.Background(), []byte("{\"a\":1}\n{oops\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestJSONDocument(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "object", raw: `{"a":1}`, want: 1},
		{name: "array", raw: ` [{"a":1},{"a":2},{"a":3}] `, want: 3},
		{name: "empty array", raw: `[]`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := JSONDocument{}.Transform(context.Background(), []byte(tt.raw))
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestJSONDocument_Invalid(t *testing.T) {
	for _, raw := range []string{"", "42", `[1,2]`, `{"a":1`, `[{"a":1}] []`} {
		_, err := JSONDocument{}.Transform(context.Background(), []byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.IsTransformation(err), raw)
	}
}

func TestCSV(t *testing.T) {
	raw := []byte("id;name\n# skipped\n1;alpha\n2;\"beta;gamma\"\n")

	records, err := CSV{Delimiter: ';', Comment: '#'}.Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{"id": "1", "name": "alpha"},
		{"id": "2", "name": "beta;gamma"},
	}, records)
}

func TestCSV_DuplicateHeaderNamesColumns(t *testing.T) {
	_, err := CSV{}.Transform(context.Background(), []byte("id,name,id\n1,a,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate header "id" in columns 1 and 3`)
}

func TestCSV_HeaderOnly(t *testing.T) {
	records, err := CSV{}.Transform(context.Background(), []byte("id,name\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSV_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"field count":      "id,name\n1\n",
		"unclosed quote":   "id,name\n1,\"x\n",
		"duplicate header": "id,name,id\n1,a,2\n",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := CSV{}.Transform(context.Background(), []byte(raw))
			require.Error(t, err)
			assert.True(t, errors.IsTransformation(err))
		})
	}
}
