// Package mcputil centralizes the handful of conversions the rest of the
// proxy needs around mark3labs/mcp-go's mcp.Content interface, so the one
// type assertion this tree relies on lives in a single place.
package mcputil

import "github.com/mark3labs/mcp-go/mcp"

// Text wraps s as a text content item.
func Text(s string) mcp.Content {
	return mcp.NewTextContent(s)
}

// TextOf returns c's text and true if c is a text content item, or ""
// and false for anything else (images, audio, embedded resources).
func TextOf(c mcp.Content) (string, bool) {
	tc, ok := c.(mcp.TextContent)
	if !ok {
		return "", false
	}
	return tc.Text, true
}

// Bytes sums the text length of every text item in content; non-text
// items contribute nothing, mirroring the proxy's truncation accounting
// which only ever sizes text.
func Bytes(content []mcp.Content) int64 {
	var n int64
	for _, c := range content {
		if t, ok := TextOf(c); ok {
			n += int64(len(t))
		}
	}
	return n
}
