package mcputil

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrips(t *testing.T) {
	c := Text("hello world")
	text, ok := TextOf(c)
	require.True(t, ok)
	assert.Equal(t, "hello world", text)
}

func TestTextOfRejectsNonTextContent(t *testing.T) {
	_, ok := TextOf(mcp.ImageContent{Type: "image", Data: "", MIMEType: "image/png"})
	assert.False(t, ok)
}

func TestBytesSumsTextContentOnly(t *testing.T) {
	content := []mcp.Content{
		Text("abcde"),
		mcp.ImageContent{Type: "image", Data: "ignored-not-counted", MIMEType: "image/png"},
		Text("xy"),
	}
	assert.Equal(t, int64(7), Bytes(content))
}

func TestBytesEmptyIsZero(t *testing.T) {
	assert.Equal(t, int64(0), Bytes(nil))
}
