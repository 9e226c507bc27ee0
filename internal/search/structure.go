package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcplens/lens-proxy/internal/jsontree"
)

// runStructure parses text as structured data if possible and returns a
// summary record: root type, size metrics, a depth-limited keys tree, and
// a small sample. No per-key statistics beyond the field/element count in
// the size line are emitted. Non-parseable text falls back
// to plain-text stats (length, lines, words, first 200 chars).
func runStructure(text string, spec Spec) (string, error) {
	maxDepth := spec.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	node, ok := jsontree.Parse(text)
	if !ok {
		return textStats(text), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "root_type: %s\n", rootType(node))
	fmt.Fprintf(&sb, "size: %s\n", sizeMetrics(node, text))
	sb.WriteString("keys:\n")
	sb.WriteString(keysTree(node, maxDepth, 1))
	sb.WriteString("sample:\n")
	sb.WriteString(sample(node))
	return sb.String(), nil
}

func textStats(text string) string {
	lines := strings.Split(text, "\n")
	words := strings.Fields(text)
	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return fmt.Sprintf("root_type: text\nlength: %d\nlines: %d\nwords: %d\npreview: %q",
		len(text), len(lines), len(words), preview)
}

func rootType(n jsontree.Node) string {
	switch n.(type) {
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

func sizeMetrics(n jsontree.Node, raw string) string {
	switch v := n.(type) {
	case map[string]interface{}:
		return fmt.Sprintf("fields=%d chars=%d lines=%d", len(v), len(raw), strings.Count(raw, "\n")+1)
	case []interface{}:
		return fmt.Sprintf("elements=%d chars=%d lines=%d", len(v), len(raw), strings.Count(raw, "\n")+1)
	default:
		return fmt.Sprintf("chars=%d lines=%d", len(raw), strings.Count(raw, "\n")+1)
	}
}

func keysTree(n jsontree.Node, maxDepth, depth int) string {
	if depth > maxDepth {
		return ""
	}
	var sb strings.Builder
	indent := strings.Repeat("  ", depth)
	switch v := n.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s%s (%s)\n", indent, k, rootType(v[k]))
			sb.WriteString(keysTree(v[k], maxDepth, depth+1))
		}
	case []interface{}:
		if len(v) > 0 {
			fmt.Fprintf(&sb, "%s[] (%s elements, showing shape of element 0)\n", indent, fmt.Sprint(len(v)))
			sb.WriteString(keysTree(v[0], maxDepth, depth+1))
		}
	}
	return sb.String()
}

func sample(n jsontree.Node) string {
	switch v := n.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 3 {
			keys = keys[:3]
		}
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, truncateValue(v[k]))
		}
		return sb.String()
	case []interface{}:
		n := len(v)
		if n > 3 {
			n = 3
		}
		var sb strings.Builder
		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, "  [%d]: %s\n", i, truncateValue(v[i]))
		}
		return sb.String()
	default:
		return fmt.Sprintf("  %s\n", truncateValue(n))
	}
}

func truncateValue(n jsontree.Node) string {
	s, ok := n.(string)
	if !ok {
		text, _ := jsontree.Marshal(n)
		s = text
	}
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
