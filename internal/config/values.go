package config

import (
	"maps"
	"slices"
)

// Values is a resolved configuration. Getters return the zero value for
// options the schema does not declare or that hold another kind.
type Values struct {
	schema string
	values map[string]any
}

// Schema returns the name of the schema the values were resolved against.
func (v Values) Schema() string { return v.schema }

// Has reports whether name was resolved.
func (v Values) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

// Get returns the raw resolved value.
func (v Values) Get(name string) any { return v.values[name] }

// String returns a string option.
func (v Values) String(name string) string {
	s, _ := v.values[name].(string)
	return s
}

// Int returns an int option.
func (v Values) Int(name string) int {
	n, _ := v.values[name].(int)
	return n
}

// Float returns a float option.
func (v Values) Float(name string) float64 {
	f, _ := v.values[name].(float64)
	return f
}

// Bool returns a bool option.
func (v Values) Bool(name string) bool {
	b, _ := v.values[name].(bool)
	return b
}

// Strings returns a copy of a list-of-strings option.
func (v Values) Strings(name string) []string {
	s, _ := v.values[name].([]string)
	return slices.Clone(s)
}

// Map returns a copy of all resolved values.
func (v Values) Map() map[string]any {
	return maps.Clone(v.values)
}
