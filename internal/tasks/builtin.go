package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/roach88/tapflow/internal/config"
	"github.com/roach88/tapflow/internal/engine"
)

// ErrTaskFailed is returned by the fail task type.
var ErrTaskFailed = errors.New("task failed")

func builtinTypes() []Type {
	return []Type{
		{
			Name:        "identity",
			Description: "passes its input through unchanged",
			Process:     identity,
		},
		{
			Name:        "append",
			Description: "appends suffix to a string input",
			Schema: func() *config.Schema {
				return config.NewSchema("append").
					String("suffix", "", config.Desc("text to append, default the node's display name"))
			},
			Process: appendSuffix,
		},
		{
			Name:        "concat",
			Description: "joins all inputs as strings",
			Schema: func() *config.Schema {
				return config.NewSchema("concat").String("sep", "", config.Desc("separator"))
			},
			Process: concat,
		},
		{
			Name:        "sum",
			Description: "adds numeric inputs, flattening arrays",
			Process:     sum,
		},
		{
			Name:        "split",
			Description: "splits a string input into an array",
			Schema: func() *config.Schema {
				return config.NewSchema("split").
					String("sep", ",", config.Desc("separator"), config.Rules("min=1"))
			},
			Process: split,
		},
		{
			Name:        "count",
			Description: "returns the length of an array input",
			Process:     count,
		},
		{
			Name:        "fail",
			Description: "always fails",
			Schema: func() *config.Schema {
				return config.NewSchema("fail").String("message", "failed", config.Desc("error text"))
			},
			Process: fail,
		},
	}
}

// nodeConfig returns the executing node's configuration.
func nodeConfig(ctx context.Context) (*engine.Task, config.Values) {
	node, ok := engine.NodeFromContext(ctx)
	if !ok {
		return nil, config.Values{}
	}
	return node, node.Config()
}

func identity(_ context.Context, inputs ...any) (any, error) {
	switch len(inputs) {
	case 0:
		return nil, nil
	case 1:
		return inputs[0], nil
	default:
		return inputs, nil
	}
}

func appendSuffix(ctx context.Context, inputs ...any) (any, error) {
	node, cfg := nodeConfig(ctx)
	suffix := cfg.String("suffix")
	if suffix == "" && node != nil {
		suffix = node.String()
	}

	var s string
	if len(inputs) > 0 && inputs[0] != nil {
		str, ok := inputs[0].(string)
		if !ok {
			return nil, fmt.Errorf("append: input is %T, not a string", inputs[0])
		}
		s = str
	}
	return s + suffix, nil
}

func concat(ctx context.Context, inputs ...any) (any, error) {
	_, cfg := nodeConfig(ctx)
	values := flatten(inputs)
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, cfg.String("sep")), nil
}

// sum returns an int when every input is integral and a float64 otherwise.
func sum(_ context.Context, inputs ...any) (any, error) {
	var (
		total   float64
		integer = true
	)
	for _, v := range flatten(inputs) {
		switch n := v.(type) {
		case int:
			total += float64(n)
		case int32:
			total += float64(n)
		case int64:
			total += float64(n)
		case uint64:
			total += float64(n)
		case float32:
			total += float64(n)
			integer = false
		case float64:
			total += n
			if n != math.Trunc(n) {
				integer = false
			}
		default:
			return nil, fmt.Errorf("sum: %v (%T) is not a number", v, v)
		}
	}
	if integer {
		return int(total), nil
	}
	return total, nil
}

func split(ctx context.Context, inputs ...any) (any, error) {
	_, cfg := nodeConfig(ctx)
	if len(inputs) == 0 {
		return []any{}, nil
	}
	s, ok := inputs[0].(string)
	if !ok {
		return nil, fmt.Errorf("split: input is %T, not a string", inputs[0])
	}

	sep := cfg.String("sep")
	if sep == "" {
		sep = ","
	}
	if s == "" {
		return []any{}, nil
	}
	fields := strings.Split(s, sep)
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f
	}
	return out, nil
}

func count(_ context.Context, inputs ...any) (any, error) {
	if len(inputs) == 0 {
		return 0, nil
	}
	v := reflect.ValueOf(inputs[0])
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len(), nil
	default:
		return nil, fmt.Errorf("count: input is %T, not an array", inputs[0])
	}
}

func fail(ctx context.Context, _ ...any) (any, error) {
	_, cfg := nodeConfig(ctx)
	msg := cfg.String("message")
	if msg == "" {
		msg = "failed"
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
}

// flatten expands []any inputs (merge results and split arrays) one level.
func flatten(inputs []any) []any {
	var out []any
	for _, in := range inputs {
		if list, ok := in.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, in)
	}
	return out
}
