package audit

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type producer string

func (p producer) Name() string { return string(p) }

func values(records []*Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.Value()
	}
	return out
}

func TestNew_RootRecord(t *testing.T) {
	rec := New(nil, "x")

	assert.True(t, rec.IsRoot())
	assert.Nil(t, rec.Producer())
	assert.Equal(t, "input", rec.Source())
	assert.Len(t, rec.ID(), 36)

	_, keyed := rec.Key()
	assert.False(t, keyed)
}

func TestNew_CopiesParents(t *testing.T) {
	a := New(nil, 1)
	b := New(nil, 2)
	parents := []*Record{a, b}

	rec := New(producer("p"), 3, parents...)
	parents[0] = b

	assert.Equal(t, []*Record{a, b}, rec.Parents())

	got := rec.Parents()
	got[1] = a
	assert.Equal(t, []*Record{a, b}, rec.Parents(), "Parents must return a copy")
}

func TestNew_IDsAreUnique(t *testing.T) {
	a := New(nil, "x")
	b := New(nil, "x")
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestTrail_RootToSelf(t *testing.T) {
	root := New(nil, "")
	a := New(producer("a"), "a", root)
	b := New(producer("b"), "ab", a)

	assert.Equal(t, []any{"", "a", "ab"}, values(b.Lineage()))
	assert.Equal(t, []any{"", "a", "ab"}, b.TrailValues())
}

func TestTrail_DiamondYieldsSharedAncestorOnce(t *testing.T) {
	root := New(nil, "r")
	left := New(producer("l"), "l", root)
	right := New(producer("r"), "rr", root)
	merged := Merge(left, right)

	assert.Equal(t, []*Record{root, left, right, merged}, merged.Lineage())
}

func TestTrail_Restartable(t *testing.T) {
	root := New(nil, 0)
	rec := New(producer("p"), 1, root)
	trail := rec.Trail()

	first := slices.Collect(trail)
	second := slices.Collect(trail)
	assert.Equal(t, first, second)
}

func TestTrail_StopsEarly(t *testing.T) {
	rec := New(nil, 0)
	for i := 1; i < 5; i++ {
		rec = New(producer("p"), i, rec)
	}

	var seen []any
	for r := range rec.Trail() {
		seen = append(seen, r.Value())
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []any{0, 1}, seen)
}

func TestTrail_DeepChain(t *testing.T) {
	rec := New(nil, 0)
	for i := 1; i <= 100000; i++ {
		rec = New(nil, i, rec)
	}
	assert.Len(t, rec.Lineage(), 100001)
}

func TestSplitAsArray(t *testing.T) {
	src := New(producer("split"), []any{"x", "y", "z"}, New(nil, "x,y,z"))

	parts, err := src.SplitAsArray()
	require.NoError(t, err)
	require.Len(t, parts, 3)

	for i, part := range parts {
		key, ok := part.Key()
		assert.True(t, ok)
		assert.Equal(t, i, key)
		assert.Equal(t, []*Record{src}, part.Parents())
		assert.Equal(t, src.Producer(), part.Producer())
	}
	assert.Equal(t, []any{"x", "y", "z"}, values(parts))
}

func TestSplitAsArray_TypedSliceAndArray(t *testing.T) {
	parts, err := New(nil, []int{4, 5}).SplitAsArray()
	require.NoError(t, err)
	assert.Equal(t, []any{4, 5}, values(parts))

	parts, err = New(nil, [2]string{"a", "b"}).SplitAsArray()
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, values(parts))

	parts, err = New(nil, []any{}).SplitAsArray()
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSplitAsArray_RejectsNonSequences(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "abc"},
		{"int", 42},
		{"nil", nil},
		{"map", map[string]any{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, tt.value).SplitAsArray()
			require.Error(t, err)

			var tce *TypeConversionError
			require.ErrorAs(t, err, &tce)
			assert.Equal(t, "array", tce.Target)
		})
	}
}

func TestMerge(t *testing.T) {
	a := New(producer("a"), "A")
	b := New(producer("b"), "B")

	merged := Merge(a, b)

	assert.Equal(t, []any{"A", "B"}, merged.Value())
	assert.Equal(t, []*Record{a, b}, merged.Parents())
	assert.Nil(t, merged.Producer())
}

func TestMerge_TrailIncludesBothHistories(t *testing.T) {
	ra := New(nil, "ra")
	a := New(producer("a"), "a", ra)
	rb := New(nil, "rb")
	b1 := New(producer("b"), "b1", rb)
	b2 := New(producer("b"), "b2", b1)

	trail := Merge(a, b2).Lineage()

	for _, want := range []*Record{ra, a, rb, b1, b2} {
		assert.Contains(t, trail, want)
	}
	assert.Equal(t, []any{"ra", "a", "rb", "b1", "b2", []any{"a", "b2"}}, values(trail))
}

func TestFormat(t *testing.T) {
	root := New(nil, "")
	a := New(producer("a"), "a", root)
	parts, err := New(producer("s"), []any{1, 2}, a).SplitAsArray()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, parts[1]))

	want := "[0] input = \"\"\n" +
		"[1] a = \"a\" <- 0\n" +
		"[2] s = [1 2] <- 1\n" +
		"[3] s[1] = 2 <- 2\n"
	assert.Equal(t, want, buf.String())
}

func TestRecord_String(t *testing.T) {
	assert.Equal(t, "a=x", New(producer("a"), "x").String())
	assert.Equal(t, "input[2]=y", NewKeyed(nil, 2, "y").String())
}
