package projection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcplens/lens-proxy/internal/mcputil"
	"github.com/mcplens/lens-proxy/internal/perr"
)

func jsonContent(t *testing.T, v interface{}) []mcp.Content {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return []mcp.Content{mcputil.Text(string(b))}
}

func decodeResult(t *testing.T, content []mcp.Content) interface{} {
	t.Helper()
	require.Len(t, content, 1)
	text, ok := mcputil.TextOf(content[0])
	require.True(t, ok)
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &v))
	return v
}

func TestValidateRejectsBadMode(t *testing.T) {
	err := Spec{Mode: "wat", Fields: []string{"a"}}.Validate()
	require.Error(t, err)
	assert.True(t, perr.OfKind(err, perr.KindInvalidArgument))
}

func TestValidateRejectsEmptyFields(t *testing.T) {
	err := Spec{Mode: ModeInclude}.Validate()
	require.Error(t, err)
}

func TestIncludeTopLevelField(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{"a": 1, "b": 2, "c": 3})
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"a"}})
	require.NoError(t, err)

	result := decodeResult(t, out).(map[string]interface{})
	assert.Equal(t, float64(1), result["a"])
	assert.NotContains(t, result, "b")
	assert.NotContains(t, result, "c")
}

func TestIncludeNestedField(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{
		"user": map[string]interface{}{"name": "ada", "age": 30},
	})
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"user.name"}})
	require.NoError(t, err)

	result := decodeResult(t, out).(map[string]interface{})
	user := result["user"].(map[string]interface{})
	assert.Equal(t, "ada", user["name"])
	assert.NotContains(t, user, "age")
}

func TestIncludePluckAcrossArray(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"id": 1, "name": "a"},
			map[string]interface{}{"id": 2, "name": "b"},
		},
	})
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"items.name"}})
	require.NoError(t, err)

	result := decodeResult(t, out).(map[string]interface{})
	items := result["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].(map[string]interface{})["name"])
	assert.Equal(t, "b", items[1].(map[string]interface{})["name"])
}

func TestIncludeNoMatchYieldsEmptyObject(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{"a": 1})
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"nonexistent"}})
	require.NoError(t, err)
	result := decodeResult(t, out).(map[string]interface{})
	assert.Empty(t, result)
}

func TestExcludeTopLevelField(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{"a": 1, "b": 2})
	out, err := Apply(content, Spec{Mode: ModeExclude, Fields: []string{"b"}})
	require.NoError(t, err)

	result := decodeResult(t, out).(map[string]interface{})
	assert.Equal(t, float64(1), result["a"])
	assert.NotContains(t, result, "b")
}

func TestExcludeNestedField(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{
		"user": map[string]interface{}{"name": "ada", "secret": "xyz"},
	})
	out, err := Apply(content, Spec{Mode: ModeExclude, Fields: []string{"user.secret"}})
	require.NoError(t, err)

	result := decodeResult(t, out).(map[string]interface{})
	user := result["user"].(map[string]interface{})
	assert.Equal(t, "ada", user["name"])
	assert.NotContains(t, user, "secret")
}

func TestNonTextContentPassesThrough(t *testing.T) {
	content := []mcp.Content{mcp.ImageContent{Type: "image", Data: "", MIMEType: "image/png"}}
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestUnparseableTextPassesThrough(t *testing.T) {
	content := []mcp.Content{mcputil.Text("not json")}
	out, err := Apply(content, Spec{Mode: ModeInclude, Fields: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestApplyIsIdempotent(t *testing.T) {
	content := jsonContent(t, map[string]interface{}{"a": 1, "b": 2})
	spec := Spec{Mode: ModeInclude, Fields: []string{"a"}}

	first, err := Apply(content, spec)
	require.NoError(t, err)
	second, err := Apply(first, spec)
	require.NoError(t, err)

	assert.Equal(t, decodeResult(t, first), decodeResult(t, second))
}
