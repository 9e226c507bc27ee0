// Package projection implements field-path include/exclude reshaping of
// content items, run off the I/O loop via the CPU executor.
package projection

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcplens/lens-proxy/internal/jsontree"
	"github.com/mcplens/lens-proxy/internal/mcputil"
	"github.com/mcplens/lens-proxy/internal/perr"
)

// Mode selects include or exclude projection.
type Mode string

const (
	ModeInclude Mode = "include"
	ModeExclude Mode = "exclude"
)

// Spec describes one projection operation.
type Spec struct {
	Mode   Mode
	Fields []string
}

// Validate checks the spec against the rules in the spec's field-path
// grammar section: mode must be include or exclude, and fields must be
// non-empty.
func (s Spec) Validate() error {
	if s.Mode != ModeInclude && s.Mode != ModeExclude {
		return perr.New(perr.KindInvalidArgument, "mode must be 'include' or 'exclude', got %q", s.Mode)
	}
	if len(s.Fields) == 0 {
		return perr.New(perr.KindInvalidArgument, "fields must not be empty")
	}
	return nil
}

// Apply runs the projection over a content list. Each text item is parsed
// as JSON; on parse failure the item passes through unchanged. Image
// items always pass through unchanged. The engine is stateless and
// re-entrant: applying the same spec twice is idempotent.
func Apply(content []mcp.Content, spec Spec) ([]mcp.Content, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	out := make([]mcp.Content, 0, len(content))
	for _, item := range content {
		text, ok := mcputil.TextOf(item)
		if !ok {
			out = append(out, item)
			continue
		}

		node, ok := jsontree.Parse(text)
		if !ok {
			out = append(out, item)
			continue
		}

		var result jsontree.Node
		switch spec.Mode {
		case ModeInclude:
			result = applyInclude(node, spec.Fields)
		case ModeExclude:
			result = applyExclude(node, spec.Fields)
		}

		marshaled, err := jsontree.MarshalIndent(result)
		if err != nil {
			out = append(out, item)
			continue
		}
		out = append(out, mcputil.Text(marshaled))
	}
	return out, nil
}

// applyInclude constructs a fresh tree containing only the reachable
// paths named in fields. Array pluck is applied element-wise.
func applyInclude(node jsontree.Node, fields []string) jsontree.Node {
	var result jsontree.Node
	for _, f := range fields {
		segs := strings.Split(f, ".")
		val, found := pluck(node, segs)
		if !found {
			continue
		}
		result = mergeInto(result, segs, val)
	}
	if result == nil {
		// No matching paths: include yields an empty structure, never nil.
		if _, ok := node.(map[string]interface{}); ok {
			return map[string]interface{}{}
		}
		return map[string]interface{}{}
	}
	return result
}

// pluck walks node along segs. If node is an array at any point, the
// remaining segments are applied to each element ("pluck"), and the
// array of per-element results is returned.
func pluck(node jsontree.Node, segs []string) (jsontree.Node, bool) {
	if len(segs) == 0 {
		return node, true
	}

	switch v := node.(type) {
	case map[string]interface{}:
		child, ok := v[segs[0]]
		if !ok {
			return nil, false
		}
		return pluck(child, segs[1:])
	case []interface{}:
		results := make([]interface{}, 0, len(v))
		any := false
		for _, elem := range v {
			val, ok := pluck(elem, segs)
			if ok {
				results = append(results, val)
				any = true
			}
		}
		if !any {
			return nil, false
		}
		return results, true
	default:
		return nil, false
	}
}

// mergeInto inserts val at the path segs within dest, creating
// intermediate maps (or, for array elements, per-index maps) as needed,
// and returns the (possibly new) root.
func mergeInto(dest jsontree.Node, segs []string, val jsontree.Node) jsontree.Node {
	if len(segs) == 0 {
		return val
	}

	root, ok := dest.(map[string]interface{})
	if !ok {
		root = map[string]interface{}{}
	}

	if len(segs) == 1 {
		root[segs[0]] = mergeLeaf(root[segs[0]], val)
		return root
	}

	existing := root[segs[0]]
	root[segs[0]] = mergeChild(existing, segs[1:], val)
	return root
}

// mergeChild handles the case where the value at the current path
// segment may itself be an array (because an earlier pluck crossed an
// array boundary) that needs further merging one element at a time.
func mergeChild(existing jsontree.Node, remaining []string, val jsontree.Node) jsontree.Node {
	if arr, ok := val.([]interface{}); ok {
		existingArr, _ := existing.([]interface{})
		out := make([]interface{}, len(arr))
		for i, elem := range arr {
			var prior jsontree.Node
			if i < len(existingArr) {
				prior = existingArr[i]
			}
			out[i] = mergeInto(prior, remaining, elem)
		}
		return out
	}
	return mergeInto(existing, remaining, val)
}

// mergeLeaf combines a leaf assignment with anything already present,
// preferring to merge maps field-by-field so repeated include fields
// under the same parent accumulate rather than clobber.
func mergeLeaf(existing, val jsontree.Node) jsontree.Node {
	existingMap, eok := existing.(map[string]interface{})
	valMap, vok := val.(map[string]interface{})
	if eok && vok {
		for k, v := range valMap {
			existingMap[k] = v
		}
		return existingMap
	}
	return val
}

// applyExclude walks the tree, dropping any key whose path matches a
// field entry. An entry of the form "a.b.c" recurses into "a" with the
// remainder "b.c" rather than dropping "a" wholesale.
func applyExclude(node jsontree.Node, fields []string) jsontree.Node {
	return excludeWalk(node, fields)
}

// excludeWalk splits fields into a drop-here set (bare top-level names)
// and a recurse set (names with a remainder path), then walks the tree
// one level at a time.
func excludeWalk(node jsontree.Node, fields []string) jsontree.Node {
	drop := map[string]bool{}
	grouped := map[string][]string{}
	for _, f := range fields {
		segs := strings.SplitN(f, ".", 2)
		if len(segs) == 1 {
			drop[segs[0]] = true
			continue
		}
		grouped[segs[0]] = append(grouped[segs[0]], segs[1])
	}

	switch v := node.(type) {
	case map[string]interface{}:
		out := map[string]interface{}{}
		for k, val := range v {
			if drop[k] {
				continue
			}
			if rest, ok := grouped[k]; ok {
				out[k] = excludeWalk(val, rest)
				continue
			}
			out[k] = val
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = excludeWalk(elem, fields)
		}
		return out
	default:
		return node
	}
}
