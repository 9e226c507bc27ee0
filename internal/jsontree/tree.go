// Package jsontree holds the dynamic tree representation shared by the
// projection and search engines. Content text items are parsed into this
// shape on a best-effort basis; anything that fails to parse is treated
// as opaque text and passed through unchanged by callers.
package jsontree

import "encoding/json"

// Node is a parsed JSON-like value: nil, bool, float64, string,
// []interface{}, or map[string]interface{}, exactly what
// encoding/json.Unmarshal into an interface{} produces.
type Node = interface{}

// Parse attempts to decode s as JSON. Returns ok=false if s is not valid
// JSON, in which case callers must treat the original text as opaque.
func Parse(s string) (Node, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// Marshal renders a Node back to compact JSON text.
func Marshal(n Node) (string, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalIndent renders a Node back to pretty-printed JSON text.
func MarshalIndent(n Node) (string, error) {
	b, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// IsObject reports whether n decodes as a JSON object.
func IsObject(n Node) (map[string]interface{}, bool) {
	m, ok := n.(map[string]interface{})
	return m, ok
}

// IsArray reports whether n decodes as a JSON array.
func IsArray(n Node) ([]interface{}, bool) {
	a, ok := n.([]interface{})
	return a, ok
}
