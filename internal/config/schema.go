package config

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind is the declared type of an option.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindStrings
	KindAny
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStrings:
		return "strings"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Option describes one named, typed, defaulted configuration value.
type Option struct {
	Name        string
	Kind        Kind
	Default     any
	Description string

	// Rules is a go-playground/validator tag applied to the coerced value,
	// e.g. "gte=0" or "oneof=a b".
	Rules string
}

// OptionFunc customizes an Option while it is declared.
type OptionFunc func(*Option)

// Desc sets the option description.
func Desc(d string) OptionFunc {
	return func(o *Option) { o.Description = d }
}

// Rules sets validator rule tags for the option.
func Rules(tag string) OptionFunc {
	return func(o *Option) { o.Rules = tag }
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Schema is an ordered set of options for one node type.
//
// Builder methods return the receiver so declarations chain. A duplicate or
// empty option name is remembered and reported by Resolve.
type Schema struct {
	name    string
	options []Option
	index   map[string]int
	err     error
}

// NewSchema creates an empty schema.
func NewSchema(name string) *Schema {
	return &Schema{name: name, index: make(map[string]int)}
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Options returns the declared options in declaration order.
func (s *Schema) Options() []Option { return slices.Clone(s.options) }

// String declares a string option.
func (s *Schema) String(name, def string, opts ...OptionFunc) *Schema {
	return s.add(name, KindString, def, opts)
}

// Int declares an integer option.
func (s *Schema) Int(name string, def int, opts ...OptionFunc) *Schema {
	return s.add(name, KindInt, def, opts)
}

// Float declares a floating point option.
func (s *Schema) Float(name string, def float64, opts ...OptionFunc) *Schema {
	return s.add(name, KindFloat, def, opts)
}

// Bool declares a boolean option.
func (s *Schema) Bool(name string, def bool, opts ...OptionFunc) *Schema {
	return s.add(name, KindBool, def, opts)
}

// Strings declares a list-of-strings option.
func (s *Schema) Strings(name string, def []string, opts ...OptionFunc) *Schema {
	return s.add(name, KindStrings, slices.Clone(def), opts)
}

// Any declares an option whose value is passed through unchanged.
func (s *Schema) Any(name string, def any, opts ...OptionFunc) *Schema {
	return s.add(name, KindAny, def, opts)
}

func (s *Schema) add(name string, kind Kind, def any, opts []OptionFunc) *Schema {
	if s.err != nil {
		return s
	}
	if name == "" {
		s.err = &ConfigurationError{Schema: s.name, Message: "option name is empty"}
		return s
	}
	if _, dup := s.index[name]; dup {
		s.err = &ConfigurationError{Schema: s.name, Option: name, Message: "option declared twice"}
		return s
	}

	opt := Option{Name: name, Kind: kind, Default: def}
	for _, fn := range opts {
		fn(&opt)
	}
	s.index[name] = len(s.options)
	s.options = append(s.options, opt)
	return s
}

// Resolve validates raw against the schema and returns the resolved values.
// Unknown keys, values that cannot be coerced, and values that break an
// option's rules are reported as *ConfigurationError. Missing keys take the
// option default. A nil schema accepts only an empty raw map.
func (s *Schema) Resolve(raw map[string]any) (Values, error) {
	if s == nil {
		s = NewSchema("")
	}
	if s.err != nil {
		return Values{}, s.err
	}

	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if _, ok := s.index[key]; !ok {
			return Values{}, &ConfigurationError{Schema: s.name, Option: key, Message: "unknown option"}
		}
	}

	resolved := make(map[string]any, len(s.options))
	for _, opt := range s.options {
		v, ok := raw[opt.Name]
		if !ok {
			resolved[opt.Name] = opt.Default
			continue
		}

		coerced, err := coerce(opt.Kind, v)
		if err != nil {
			return Values{}, &ConfigurationError{Schema: s.name, Option: opt.Name, Message: "invalid value", Err: err}
		}
		if opt.Rules != "" {
			if err := validate.Var(coerced, opt.Rules); err != nil {
				return Values{}, &ConfigurationError{
					Schema:  s.name,
					Option:  opt.Name,
					Message: fmt.Sprintf("value %v violates %q", coerced, opt.Rules),
					Err:     err,
				}
			}
		}
		resolved[opt.Name] = coerced
	}

	return Values{schema: s.name, values: resolved}, nil
}

// coerce converts v to the Go type for kind: string, int, float64, bool or
// []string. Values decoded from YAML, JSON and CUE all pass through here.
func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindString:
		switch t := v.(type) {
		case string:
			return t, nil
		case bool, int, int64, float64:
			return fmt.Sprint(t), nil
		}

	case KindInt:
		switch t := v.(type) {
		case int:
			return t, nil
		case int32:
			return int(t), nil
		case int64:
			return int(t), nil
		case uint64:
			if t <= math.MaxInt {
				return int(t), nil
			}
		case float64:
			if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
				return int(t), nil
			}
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("%q is not an int", t)
			}
			return n, nil
		}

	case KindFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a float", t)
			}
			return f, nil
		}

	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("%q is not a bool", t)
			}
			return b, nil
		}

	case KindStrings:
		switch t := v.(type) {
		case []string:
			return slices.Clone(t), nil
		case string:
			return []string{t}, nil
		case []any:
			out := make([]string, len(t))
			for i, e := range t {
				s, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("element %d is %T, not string", i, e)
				}
				out[i] = s
			}
			return out, nil
		}

	case KindAny:
		return v, nil
	}

	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}
