package search

import (
	"fmt"
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9 _-]{0,99}$`)
var sentenceRe = regexp.MustCompile(`[.!?]\s+`)

// splitUnits divides text into units of the requested context_type:
// paragraphs split on blank lines, sections split on a capitalized
// heading-like line of at most 100 chars, sentences split on [.!?] followed
// by whitespace, and "lines" treats each line as its own unit.
func splitUnits(text, contextType string) []string {
	switch contextType {
	case "section":
		lines := strings.Split(text, "\n")
		var units []string
		var cur []string
		for _, line := range lines {
			if headingRe.MatchString(strings.TrimSpace(line)) && len(cur) > 0 {
				units = append(units, strings.Join(cur, "\n"))
				cur = nil
			}
			cur = append(cur, line)
		}
		if len(cur) > 0 {
			units = append(units, strings.Join(cur, "\n"))
		}
		return units
	case "sentence":
		parts := sentenceRe.Split(text, -1)
		var units []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				units = append(units, p)
			}
		}
		return units
	case "lines":
		return strings.Split(text, "\n")
	default: // paragraph
		parts := strings.Split(text, "\n\n")
		var units []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				units = append(units, p)
			}
		}
		return units
	}
}

// runContext compiles the pattern, splits text into units, and emits
// units containing at least one match with per-unit hit counts, capped
// at maxMatches units.
func runContext(text string, spec Spec) (string, error) {
	pattern := spec.Pattern
	if pattern == "" {
		return "", fmt.Errorf("missing required parameter 'pattern'")
	}

	flags := ""
	if spec.CaseInsensitive {
		flags = "(?i)"
	}
	re, err := regexp.Compile(flags + pattern)
	if err != nil {
		return "", fmt.Errorf("Invalid regex pattern %q: %v", pattern, err)
	}

	contextType := spec.ContextType
	if contextType == "" {
		contextType = "paragraph"
	}
	max := spec.MaxMatches
	if max <= 0 {
		max = 20
	}

	units := splitUnits(text, contextType)

	var sb strings.Builder
	emitted := 0
	for _, u := range units {
		if emitted >= max {
			break
		}
		hits := len(re.FindAllString(u, -1))
		if hits == 0 {
			continue
		}
		if emitted > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[hits=%d]\n%s", hits, u)
		emitted++
	}
	return sb.String(), nil
}
