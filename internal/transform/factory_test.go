package transform

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/internal/config"
	"ingest/pkg/errors"
	"ingest/pkg/logging"
)

func TestNewRegistryFromConfig(t *testing.T) {
	registry, err := NewRegistryFromConfig([]config.TransformerConfig{
		{Key: "alpha/beta", Kind: KindJSONLines},
		{Key: "gamma/delta", Kind: KindJSON},
		{Key: "/scraper/csv/", Kind: KindCSV, CSV: config.CSVConfig{Delimiter: "|"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha/beta", "gamma/delta", "scraper/csv"}, registry.Keys())

	tr, err := registry.Lookup("scraper/csv")
	require.NoError(t, err)
	records, err := tr.Transform(context.Background(), []byte("a|b\n1|2\n"))
	require.NoError(t, err)
	assert.Equal(t, []Record{{"a": "1", "b": "2"}}, records)
}

func TestNewRegistryFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfgs []config.TransformerConfig
	}{
		{name: "unknown kind", cfgs: []config.TransformerConfig{{Key: "a/b", Kind: "xml"}}},
		{name: "duplicate", cfgs: []config.TransformerConfig{{Key: "a/b", Kind: KindJSON}, {Key: "a/b", Kind: KindJSON}}},
		{name: "bad filter", cfgs: []config.TransformerConfig{{Key: "a/b", Kind: KindJSON, Filter: "record."}}},
		{name: "non-bool filter", cfgs: []config.TransformerConfig{{Key: "a/b", Kind: KindJSON, Filter: "key"}}},
		{
			name: "bad projection",
			cfgs: []config.TransformerConfig{{
				Key: "a/b", Kind: KindJSON,
				Project: []config.ProjectionConfig{{Field: "x", Expr: "nope("}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistryFromConfig(tt.cfgs)
			assert.Error(t, err)
		})
	}
}

func TestCELTransformer_FilterAndProject(t *testing.T) {
	registry, err := NewRegistryFromConfig([]config.TransformerConfig{{
		Key:    "alpha/beta",
		Kind:   KindJSONLines,
		Filter: `record.active == true && record.score > 10`,
		Project: []config.ProjectionConfig{
			{Field: "sourceId", Expr: "record.id"},
			{Field: "origin", Expr: `bucket + "/" + key`},
		},
	}})
	require.NoError(t, err)

	tr, err := registry.Lookup("alpha/beta")
	require.NoError(t, err)

	raw := []byte(`{"id":"a","active":true,"score":11}
{"id":"b","active":false,"score":50}
{"id":"c","active":true,"score":3}
{"id":"d","active":true,"score":10.5}
`)
	ctx := logging.WithObject(context.Background(), "raw", "alpha/beta/x.jsonl")

	records, err := tr.Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{"sourceId": "a", "origin": "raw/alpha/beta/x.jsonl"},
		{"sourceId": "d", "origin": "raw/alpha/beta/x.jsonl"},
	}, records)
}

func TestCELTransformer_FilterOnlyKeepsRecord(t *testing.T) {
	registry, err := NewRegistryFromConfig([]config.TransformerConfig{{
		Key: "a/b", Kind: KindJSONLines, Filter: `has(record.keep)`,
	}})
	require.NoError(t, err)
	tr, err := registry.Lookup("a/b")
	require.NoError(t, err)

	records, err := tr.Transform(context.Background(), []byte("{\"keep\":1,\"n\":7}\n{\"n\":8}\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("7"), records[0]["n"])
}

func TestCELTransformer_EvaluationError(t *testing.T) {
	registry, err := NewRegistryFromConfig([]config.TransformerConfig{{
		Key: "a/b", Kind: KindJSONLines, Filter: `record.missing == 1`,
	}})
	require.NoError(t, err)
	tr, err := registry.Lookup("a/b")
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), []byte("{\"n\":1}\n"))
	require.Error(t, err)
	assert.True(t, errors.IsTransformation(err))
}

func TestCELTransformer_InnerError(t *testing.T) {
	registry, err := NewRegistryFromConfig([]config.TransformerConfig{{
		Key: "a/b", Kind: KindJSON, Filter: `true`,
	}})
	require.NoError(t, err)
	tr, err := registry.Lookup("a/b")
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), []byte("not json"))
	assert.True(t, errors.IsTransformation(err))
}
