package audit

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/google/uuid"
)

// Producer is whatever created a record. Engine nodes implement it; records
// for external input have no producer.
type Producer interface {
	Name() string
}

// Record is one step in the lineage of a value.
type Record struct {
	id       string
	producer Producer
	value    any
	parents  []*Record
	key      any
	keyed    bool
}

// New creates a record for value produced by producer from parents.
// The parents slice is copied; its order is preserved.
func New(producer Producer, value any, parents ...*Record) *Record {
	return &Record{
		id:       uuid.Must(uuid.NewV7()).String(),
		producer: producer,
		value:    value,
		parents:  slices.Clone(parents),
	}
}

// NewKeyed creates a record carrying a discriminator key, such as the index of
// an element split out of an array.
func NewKeyed(producer Producer, key any, value any, parents ...*Record) *Record {
	r := New(producer, value, parents...)
	r.key = key
	r.keyed = true
	return r
}

// ID returns the record's UUIDv7 identifier.
func (r *Record) ID() string { return r.id }

// Producer returns the producer, or nil for external input.
func (r *Record) Producer() Producer { return r.producer }

// Value returns the wrapped value.
func (r *Record) Value() any { return r.value }

// Parents returns a copy of the direct lineage sources in insertion order.
func (r *Record) Parents() []*Record { return slices.Clone(r.parents) }

// NumParents returns the number of direct parents.
func (r *Record) NumParents() int { return len(r.parents) }

// Key returns the discriminator key and whether one was set.
func (r *Record) Key() (any, bool) { return r.key, r.keyed }

// IsRoot reports whether the record has no parents.
func (r *Record) IsRoot() bool { return len(r.parents) == 0 }

// Source returns a printable name for the producer: "input" for external
// values, otherwise the producer's fmt representation.
func (r *Record) Source() string {
	if r.producer == nil {
		return "input"
	}
	return fmt.Sprint(r.producer)
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	if r.keyed {
		return fmt.Sprintf("%s[%v]=%v", r.Source(), r.key, r.value)
	}
	return fmt.Sprintf("%s=%v", r.Source(), r.value)
}

// Trail walks the record's ancestors depth first, parents before children, in
// parent order, ending with r itself. An ancestor reachable through several
// paths is yielded once. The sequence is lazy and can be ranged over any
// number of times.
func (r *Record) Trail() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		type frame struct {
			rec  *Record
			next int
		}

		visited := make(map[*Record]bool)
		stack := []frame{{rec: r}}
		visited[r] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.rec.parents) {
				parent := top.rec.parents[top.next]
				top.next++
				if visited[parent] {
					continue
				}
				visited[parent] = true
				stack = append(stack, frame{rec: parent})
				continue
			}

			rec := top.rec
			stack = stack[:len(stack)-1]
			if !yield(rec) {
				return
			}
		}
	}
}

// Lineage returns the trail as a slice.
func (r *Record) Lineage() []*Record {
	return slices.Collect(r.Trail())
}

// TrailValues returns the values along the trail.
func (r *Record) TrailValues() []any {
	var values []any
	for rec := range r.Trail() {
		values = append(values, rec.value)
	}
	return values
}

// SplitAsArray returns one record per element of an array-valued record. Each
// element record is keyed by its index, has r as its only parent and keeps r's
// producer. Values that are not slices or arrays fail with TypeConversionError;
// strings are not treated as sequences.
func (r *Record) SplitAsArray() ([]*Record, error) {
	v := reflect.ValueOf(r.value)
	if !v.IsValid() {
		return nil, &TypeConversionError{Value: r.value, Target: "array"}
	}
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Array {
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, &TypeConversionError{Value: r.value, Target: "array"}
	}

	out := make([]*Record, v.Len())
	for i := range out {
		out[i] = NewKeyed(r.producer, i, v.Index(i).Interface(), r)
	}
	return out, nil
}

// Merge fans records in. The result's value is the ordered list of the input
// values and its parents are exactly the inputs, in the same order.
func Merge(records ...*Record) *Record {
	values := make([]any, len(records))
	for i, rec := range records {
		values[i] = rec.value
	}
	return New(nil, values, records...)
}
