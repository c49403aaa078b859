package transform

import (
	"context"

	"ingest/pkg/errors"
)

// Record is one output row. Transformers return records in the order they
// should be written.
type Record map[string]interface{}

// Transformer turns the raw bytes of one object into records. Implementations
// must not retain raw after returning. Failures should be reported as
// errors.ErrTransformation; any other error is wrapped into one by the caller.
type Transformer interface {
	Transform(ctx context.Context, raw []byte) ([]Record, error)
}

// Unimplemented is the embeddable base for transformers. Calling Transform on
// it directly fails.
type Unimplemented struct{}

func (Unimplemented) Transform(context.Context, []byte) ([]Record, error) {
	return nil, errors.ErrTransformation.WithMessage("transformer does not implement Transform")
}

// Func adapts a plain function to the Transformer interface.
type Func func(ctx context.Context, raw []byte) ([]Record, error)

func (f Func) Transform(ctx context.Context, raw []byte) ([]Record, error) {
	return f(ctx, raw)
}

// AsTransformationError leaves typed transformation errors alone and wraps
// everything else.
func AsTransformationError(err error) error {
	if err == nil || errors.IsTransformation(err) {
		return err
	}
	return errors.Wrap(err, errors.ErrTransformation)
}

func transformationError(msg string, cause error) error {
	return errors.ErrTransformation.WithMessage(msg).WithCause(cause)
}
