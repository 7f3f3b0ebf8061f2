package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/roach88/tapflow/internal/canonical"
)

// marshalValue converts a record value to canonical JSON TEXT and its digest.
// Values canonical JSON cannot express directly (structs) go through
// encoding/json first.
func marshalValue(v any) (data string, digest string, err error) {
	raw, err := canonical.Marshal(v)
	if err != nil {
		plain, jerr := json.Marshal(v)
		if jerr != nil {
			return "", "", fmt.Errorf("marshal value: %w", err)
		}
		generic, derr := decodeValue(string(plain))
		if derr != nil {
			return "", "", fmt.Errorf("marshal value: %w", derr)
		}
		if raw, err = canonical.Marshal(generic); err != nil {
			return "", "", fmt.Errorf("marshal value: %w", err)
		}
	}
	return string(raw), canonical.Digest(canonical.DomainValue, raw), nil
}

// marshalKey converts a record key to JSON TEXT, or NULL when unkeyed.
func marshalKey(key any, keyed bool) (any, error) {
	if !keyed {
		return nil, nil
	}
	data, _, err := marshalValue(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return data, nil
}

// decodeValue parses JSON TEXT. Integral numbers that fit in an int decode as
// int, all other numbers as float64, so values round-trip the way tasks
// produce them.
func decodeValue(data string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
		return x
	default:
		return v
	}
}
