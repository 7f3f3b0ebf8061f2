package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gateSchema() *Schema {
	return NewSchema("gate").
		Int("limit", 0, Rules("gte=0"), Desc("records per flush")).
		String("mode", "all", Rules("oneof=all first")).
		Float("ratio", 0.5).
		Bool("verbose", false).
		Strings("tags", []string{"x"}).
		Any("extra", nil)
}

func TestResolve_Defaults(t *testing.T) {
	values, err := gateSchema().Resolve(nil)
	require.NoError(t, err)

	assert.Equal(t, "gate", values.Schema())
	assert.Equal(t, 0, values.Int("limit"))
	assert.Equal(t, "all", values.String("mode"))
	assert.Equal(t, 0.5, values.Float("ratio"))
	assert.False(t, values.Bool("verbose"))
	assert.Equal(t, []string{"x"}, values.Strings("tags"))
	assert.True(t, values.Has("extra"))
	assert.Nil(t, values.Get("extra"))
}

func TestResolve_Coercion(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		in     any
		want   any
		getter func(Values) any
	}{
		{"int from float64", "limit", 3.0, 3, func(v Values) any { return v.Int("limit") }},
		{"int from string", "limit", " 7 ", 7, func(v Values) any { return v.Int("limit") }},
		{"int from int64", "limit", int64(2), 2, func(v Values) any { return v.Int("limit") }},
		{"float from int", "ratio", 2, 2.0, func(v Values) any { return v.Float("ratio") }},
		{"bool from string", "verbose", "true", true, func(v Values) any { return v.Bool("verbose") }},
		{"strings from []any", "tags", []any{"a", "b"}, []string{"a", "b"}, func(v Values) any { return v.Strings("tags") }},
		{"strings from string", "tags", "solo", []string{"solo"}, func(v Values) any { return v.Strings("tags") }},
		{"any passthrough", "extra", map[string]any{"k": 1}, map[string]any{"k": 1}, func(v Values) any { return v.Get("extra") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := gateSchema().Resolve(map[string]any{tt.key: tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.getter(values))
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		option string
	}{
		{"unknown option", map[string]any{"limt": 1}, "limt"},
		{"not an int", map[string]any{"limit": "many"}, "limit"},
		{"fractional int", map[string]any{"limit": 1.5}, "limit"},
		{"rule violated", map[string]any{"limit": -1}, "limit"},
		{"oneof violated", map[string]any{"mode": "some"}, "mode"},
		{"bad strings element", map[string]any{"tags": []any{"a", 1}}, "tags"},
		{"bool from int", map[string]any{"verbose": 1}, "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gateSchema().Resolve(tt.raw)
			require.Error(t, err)

			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, "gate", cerr.Schema)
			assert.Equal(t, tt.option, cerr.Option)
			assert.Contains(t, err.Error(), "config gate."+tt.option)
		})
	}
}

func TestSchema_DuplicateOption(t *testing.T) {
	s := NewSchema("dup").Int("n", 0).String("n", "")

	_, err := s.Resolve(nil)
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "n", cerr.Option)
	assert.Contains(t, cerr.Message, "declared twice")
}

func TestSchema_OptionsKeepOrder(t *testing.T) {
	opts := gateSchema().Options()
	require.Len(t, opts, 6)

	assert.Equal(t, "limit", opts[0].Name)
	assert.Equal(t, KindInt, opts[0].Kind)
	assert.Equal(t, "gte=0", opts[0].Rules)
	assert.Equal(t, "records per flush", opts[0].Description)
	assert.Equal(t, "extra", opts[5].Name)
}

func TestResolve_NilSchema(t *testing.T) {
	var s *Schema

	values, err := s.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, values.Map())

	_, err = s.Resolve(map[string]any{"x": 1})
	assert.Error(t, err)
}

func TestValues_MapIsCopy(t *testing.T) {
	values, err := gateSchema().Resolve(map[string]any{"limit": 4})
	require.NoError(t, err)

	m := values.Map()
	m["limit"] = 99
	assert.Equal(t, 4, values.Int("limit"))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "int", KindInt.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
