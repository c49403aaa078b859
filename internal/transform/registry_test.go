package transform

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest/pkg/errors"
)

type embeddingTransformer struct {
	Unimplemented
}

func TestUnimplemented_RejectsInvocation(t *testing.T) {
	var tr Transformer = embeddingTransformer{}

	records, err := tr.Transform(context.Background(), []byte(`{"a":1}`))
	assert.Nil(t, records)
	require.Error(t, err)
	assert.True(t, errors.IsTransformation(err))
}

func TestAsTransformationError(t *testing.T) {
	assert.NoError(t, AsTransformationError(nil))

	typed := errors.ErrTransformation.WithMessage("bad row")
	assert.Same(t, typed, AsTransformationError(typed))

	foreign := stderrors.New("boom")
	wrapped := AsTransformationError(foreign)
	assert.True(t, errors.IsTransformation(wrapped))
	assert.ErrorIs(t, wrapped, foreign)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	want := Func(func(context.Context, []byte) ([]Record, error) {
		return []Record{{"a": 1}}, nil
	})
	require.NoError(t, r.Register("alpha/beta", want))

	got, err := r.Lookup("alpha/beta")
	require.NoError(t, err)
	records, err := got.Transform(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"a": 1}}, records)

	_, err = r.Lookup("/alpha/beta/")
	assert.NoError(t, err)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("alpha/beta", JSONLines{})

	for _, key := range []string{"alpha", "alpha/beta/gamma", ""} {
		_, err := r.Lookup(key)
		require.Error(t, err, key)
		assert.True(t, errors.IsNoTransformer(err), key)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("b/x", JSONLines{}))
	require.NoError(t, r.Register("a/y", CSV{}))
	assert.Error(t, r.Register("b/x/", JSONDocument{}))
	assert.Error(t, r.Register("/", JSONDocument{}))
	assert.Error(t, r.Register("c/z", nil))

	assert.Equal(t, []string{"a/y", "b/x"}, r.Keys())
	assert.Equal(t, 2, r.Len())
	assert.Panics(t, func() { r.MustRegister("a/y", CSV{}) })
}
