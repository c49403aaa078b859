package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"ingest/pkg/cel"
	"ingest/pkg/logging"
)

type Projection struct {
	Field string
	Expr  *cel.Expression
}

// CELTransformer post-processes the records of an inner transformer. Records
// failing Filter are dropped; when Projections are set each surviving record
// is replaced by the projected fields. Expressions see the record as
// `record` and the source object as `bucket` and `key`.
type CELTransformer struct {
	Inner       Transformer
	Filter      *cel.Filter
	Projections []Projection
}

func (t *CELTransformer) Transform(ctx context.Context, raw []byte) ([]Record, error) {
	records, err := t.Inner.Transform(ctx, raw)
	if err != nil {
		return nil, err
	}

	bucket, key := logging.GetObject(ctx)
	out := records[:0]

	for i, rec := range records {
		in := cel.Input{Record: celRecord(rec), Bucket: bucket, Key: key}

		if t.Filter != nil {
			keep, err := t.Filter.Match(ctx, in)
			if err != nil {
				return nil, transformationError(fmt.Sprintf("filter failed on record %d", i), err)
			}
			if !keep {
				continue
			}
		}

		if len(t.Projections) > 0 {
			projected := make(Record, len(t.Projections))
			for _, p := range t.Projections {
				v, err := p.Expr.Eval(ctx, in)
				if err != nil {
					return nil, transformationError(fmt.Sprintf("projection %q failed on record %d", p.Field, i), err)
				}
				projected[p.Field] = v
			}
			rec = projected
		}

		out = append(out, rec)
	}

	return out, nil
}

// celRecord converts json.Number values, which CEL cannot compare, to int64
// or float64.
func celRecord(rec Record) map[string]interface{} {
	converted := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		converted[k] = celValue(v)
	}
	return converted
}

func celValue(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		return celRecord(val)
	case Record:
		return celRecord(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = celValue(item)
		}
		return items
	default:
		return v
	}
}
