package canonical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"uint8", uint8(200), "200"},
		{"integral float", 3.0, "3"},
		{"fraction", 1.5, "1.5"},
		{"tiny float", 1e-9, "1e-09"},
		{"string", "abc", `"abc"`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"nil slice", []string(nil), "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshal_ObjectKeysSorted(t *testing.T) {
	got, err := Marshal(map[string]any{"b": 1, "a": []any{"x", 2}, "c": map[string]int{"z": 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",2],"b":1,"c":{"z":1}}`, string(got))
}

func TestMarshal_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as a surrogate pair (0xD83D...) which sorts before U+FFFD
	// in UTF-16 but after it in UTF-8.
	got, err := Marshal(map[string]int{"\uFFFD": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFFFD\":1}", string(got))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	decomposed := "e\u0301"
	got, err := Marshal(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshal_LineSeparatorsLiteral(t *testing.T) {
	got, err := Marshal("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshal_Rejects(t *testing.T) {
	_, err := Marshal(math.NaN())
	assert.Error(t, err)

	_, err = Marshal(map[int]string{1: "x"})
	assert.Error(t, err)

	_, err = Marshal(struct{ A int }{1})
	assert.Error(t, err)

	_, err = Marshal([]any{1, func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[1]")
}

func TestValueDigest_StableAcrossNumericForms(t *testing.T) {
	a, err := ValueDigest([]any{1, "x"})
	require.NoError(t, err)
	b, err := ValueDigest([]any{1.0, "x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDigest_DomainSeparation(t *testing.T) {
	data := []byte(`"x"`)
	assert.NotEqual(t, Digest(DomainValue, data), Digest(DomainTrail, data))
}
