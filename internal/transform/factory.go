package transform

import (
	"fmt"

	"ingest/internal/config"
	"ingest/pkg/cel"
)

const (
	KindJSONLines = "jsonl"
	KindJSON      = "json"
	KindCSV       = "csv"
)

// NewRegistryFromConfig builds the registry from the configured built-in
// transformers. Entries with a filter or projection are wrapped in a
// CELTransformer.
func NewRegistryFromConfig(cfgs []config.TransformerConfig) (*Registry, error) {
	registry := NewRegistry()

	var evaluator *cel.Evaluator
	for i, tc := range cfgs {
		base, err := newBuiltin(tc)
		if err != nil {
			return nil, fmt.Errorf("transformers[%d]: %w", i, err)
		}

		var t Transformer = base
		if tc.Filter != "" || len(tc.Project) > 0 {
			if evaluator == nil {
				if evaluator, err = cel.NewEvaluator(); err != nil {
					return nil, err
				}
			}
			if t, err = wrapCEL(evaluator, base, tc); err != nil {
				return nil, fmt.Errorf("transformers[%d]: %w", i, err)
			}
		}

		if err := registry.Register(tc.Key, t); err != nil {
			return nil, fmt.Errorf("transformers[%d]: %w", i, err)
		}
	}

	return registry, nil
}

func newBuiltin(tc config.TransformerConfig) (Transformer, error) {
	switch tc.Kind {
	case KindJSONLines:
		return JSONLines{}, nil
	case KindJSON:
		return JSONDocument{}, nil
	case KindCSV:
		c := CSV{}
		if d := []rune(tc.CSV.Delimiter); len(d) > 0 {
			c.Delimiter = d[0]
		}
		if cm := []rune(tc.CSV.Comment); len(cm) > 0 {
			c.Comment = cm[0]
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transformer kind %q", tc.Kind)
	}
}

func wrapCEL(evaluator *cel.Evaluator, inner Transformer, tc config.TransformerConfig) (Transformer, error) {
	ct := &CELTransformer{Inner: inner}

	if tc.Filter != "" {
		filter, err := evaluator.CompileFilter(tc.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		ct.Filter = filter
	}

	for _, p := range tc.Project {
		expr, err := evaluator.CompileValue(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", p.Field, err)
		}
		ct.Projections = append(ct.Projections, Projection{Field: p.Field, Expr: expr})
	}

	return ct, nil
}
