package jsontree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	node, ok := Parse(`{"a": 1, "b": [1,2,3]}`)
	require.True(t, ok)
	obj, isObj := IsObject(node)
	require.True(t, isObj)
	assert.Equal(t, float64(1), obj["a"])
}

func TestParseInvalid(t *testing.T) {
	_, ok := Parse("not json at all")
	assert.False(t, ok)
}

func TestIsArray(t *testing.T) {
	node, ok := Parse(`[1, 2, 3]`)
	require.True(t, ok)
	arr, isArr := IsArray(node)
	require.True(t, isArr)
	assert.Len(t, arr, 3)

	_, isObj := IsObject(node)
	assert.False(t, isObj)
}

func TestIsObjectRejectsScalar(t *testing.T) {
	node, ok := Parse(`"just a string"`)
	require.True(t, ok)
	_, isObj := IsObject(node)
	assert.False(t, isObj)
	_, isArr := IsArray(node)
	assert.False(t, isArr)
}

func TestMarshalRoundTrip(t *testing.T) {
	node, ok := Parse(`{"x":[1,2],"y":"z"}`)
	require.True(t, ok)

	out, err := Marshal(node)
	require.NoError(t, err)

	reparsed, ok := Parse(out)
	require.True(t, ok)
	assert.Equal(t, node, reparsed)
}

func TestMarshalIndent(t *testing.T) {
	node, ok := Parse(`{"a":1}`)
	require.True(t, ok)
	out, err := MarshalIndent(node)
	require.NoError(t, err)
	assert.Contains(t, out, "\n")
	assert.Contains(t, out, "  \"a\"")
}
