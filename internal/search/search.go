// Package search implements the proxy's multi-mode search engine: regex,
// BM25, fuzzy, context-extraction, and structure-summary modes over
// cached content, run off the I/O loop via the CPU executor.
package search

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcplens/lens-proxy/internal/mcputil"
)

// Mode selects a search algorithm.
type Mode string

const (
	ModeRegex     Mode = "regex"
	ModeBM25      Mode = "bm25"
	ModeFuzzy     Mode = "fuzzy"
	ModeContext   Mode = "context"
	ModeStructure Mode = "structure"
)

// ContextLines configures before/after/both line windows for regex mode.
type ContextLines struct {
	Before int
	After  int
	Both   int
}

// Spec describes one search operation. Not every field applies to every
// mode; see the per-mode doc comments in regex.go, bm25.go, fuzzy.go,
// contextmode.go, and structure.go.
type Spec struct {
	Mode            Mode
	Pattern         string
	Query           string // used by bm25; falls back to Pattern if empty
	CaseInsensitive bool
	MultilineDot    bool
	ContextLines    ContextLines
	MaxMatches      int
	TopK            int
	Threshold       float64
	ContextType     string // paragraph|section|sentence|lines
	MaxDepth        int
}

// query returns the effective query string for modes that use one
// (bm25 prefers Query, falls back to Pattern).
func (s Spec) query() string {
	if s.Query != "" {
		return s.Query
	}
	return s.Pattern
}

func (s Spec) effectiveMode() Mode {
	if s.Mode == "" {
		return ModeRegex
	}
	return s.Mode
}

// Run dispatches content through the selected mode. Images are always
// skipped. A missing required parameter or unknown mode yields a single
// text item starting "Error:" rather than a Go error — search failures
// are never thrown. Every successful result carries a short header
// naming the mode and echoing the query.
func Run(content []mcp.Content, spec Spec) []mcp.Content {
	mode := spec.effectiveMode()

	if mode != ModeStructure && spec.query() == "" {
		return []mcp.Content{errorItem("missing required parameter 'pattern'")}
	}

	var bodies []string
	for _, item := range content {
		text, ok := mcputil.TextOf(item)
		if !ok {
			continue
		}

		var body string
		var err error
		switch mode {
		case ModeRegex:
			body, err = runRegex(text, spec)
		case ModeBM25:
			body, err = runBM25(text, spec)
		case ModeFuzzy:
			body, err = runFuzzy(text, spec)
		case ModeContext:
			body, err = runContext(text, spec)
		case ModeStructure:
			body, err = runStructure(text, spec)
		default:
			return []mcp.Content{errorItem("unknown search mode %q", spec.Mode)}
		}

		if err != nil {
			return []mcp.Content{errorItem("%s", err.Error())}
		}
		if body != "" {
			bodies = append(bodies, body)
		}
	}

	head := header(mode, spec.query())
	if len(bodies) == 0 {
		return []mcp.Content{mcputil.Text(head + "No matches found.")}
	}

	text := head
	for i, b := range bodies {
		if i > 0 {
			text += "\n"
		}
		text += b
	}
	return []mcp.Content{mcputil.Text(text)}
}

func header(mode Mode, query string) string {
	return fmt.Sprintf("[search mode=%s query=%q]\n", mode, query)
}

func errorItem(format string, args ...interface{}) mcp.Content {
	return mcputil.Text("Error: " + fmt.Sprintf(format, args...))
}
