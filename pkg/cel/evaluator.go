package cel

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
	"google.golang.org/protobuf/types/known/structpb"
)

// Input is the activation every expression sees: the decoded record plus the
// object it came from.
type Input struct {
	Record map[string]interface{}
	Bucket string
	Key    string
}

func (in Input) vars() map[string]interface{} {
	record := in.Record
	if record == nil {
		record = map[string]interface{}{}
	}
	return map[string]interface{}{
		"record": record,
		"bucket": in.Bucket,
		"key":    in.Key,
	}
}

var structValueType = reflect.TypeOf(&structpb.Value{})

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("bucket", cel.StringType),
		cel.Variable("key", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) compile(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return ast, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

// ValidateFilterExpression accepts expressions typed bool, and dyn ones whose
// type is only known at evaluation time (record fields are dyn).
func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, err := e.compile(expression)
	if err != nil {
		return err
	}

	if out := ast.OutputType(); out != cel.BoolType && out != cel.DynType {
		return fmt.Errorf("filter expression must return bool, got %v", out)
	}

	return nil
}

// Filter is a compiled boolean predicate over a record.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	if err := e.ValidateFilterExpression(expression); err != nil {
		return nil, err
	}

	program, err := e.CompileExpression(expression)
	if err != nil {
		return nil, err
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) String() string { return f.expression }

func (f *Filter) Match(ctx context.Context, in Input) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, in.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", f.expression, err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not return bool, got %T", f.expression, result.Value())
	}

	return boolVal, nil
}

// Expression is a compiled value-producing expression. Results are converted
// to plain Go values that encoding/json can marshal; integers keep their
// exact int64 or uint64 value.
type Expression struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileValue(expression string) (*Expression, error) {
	program, err := e.CompileExpression(expression)
	if err != nil {
		return nil, err
	}
	return &Expression{expression: expression, program: program}, nil
}

func (x *Expression) String() string { return x.expression }

func (x *Expression) Eval(ctx context.Context, in Input) (interface{}, error) {
	result, _, err := x.program.ContextEval(ctx, in.vars())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression %q: %w", x.expression, err)
	}

	native, err := toNative(result)
	if err != nil {
		return nil, fmt.Errorf("CEL expression %q produced a value that cannot be encoded: %w", x.expression, err)
	}

	return native, nil
}

func toNative(val ref.Val) (interface{}, error) {
	switch v := val.(type) {
	case types.Null:
		return nil, nil
	case types.Bool:
		return bool(v), nil
	case types.Int:
		return int64(v), nil
	case types.Uint:
		return uint64(v), nil
	case types.Double:
		return float64(v), nil
	case types.String:
		return string(v), nil
	case traits.Mapper:
		out := make(map[string]interface{})
		for it := v.Iterator(); it.HasNext() == types.True; {
			k := it.Next()
			item, err := toNative(v.Get(k))
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k.Value())] = item
		}
		return out, nil
	case traits.Lister:
		out := make([]interface{}, 0)
		for it := v.Iterator(); it.HasNext() == types.True; {
			item, err := toNative(it.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}

	// Bytes, timestamps and durations take their JSON form.
	native, err := val.ConvertToNative(structValueType)
	if err != nil {
		return nil, err
	}
	return native.(*structpb.Value).AsInterface(), nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}
