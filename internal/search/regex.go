package search

import (
	"fmt"
	"regexp"
	"strings"
)

// runRegex implements the "regex" mode: compile pattern with optional
// case-insensitivity and "multiline-dot" flag. In single-line mode the
// text is scanned line by line, matching lines are emitted with optional
// context windows that merge when adjacent and are separated by a "---"
// line otherwise. In multiline mode each whole match is emitted, joined
// by "\n---\n". Capped at maxMatches. A malformed pattern is reported as
// an error, not a panic.
func runRegex(text string, spec Spec) (string, error) {
	pattern := spec.Pattern
	var flags string
	if spec.CaseInsensitive {
		flags += "i"
	}
	if spec.MultilineDot {
		flags += "s"
		flags += "m"
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("Invalid regex pattern %q: %v", spec.Pattern, err)
	}

	max := spec.MaxMatches
	if max <= 0 {
		max = 1 << 30
	}

	if spec.MultilineDot {
		return regexMultiline(text, re, max), nil
	}
	return regexLineByLine(text, re, spec.ContextLines, max), nil
}

func regexMultiline(text string, re *regexp.Regexp, max int) string {
	matches := re.FindAllString(text, max)
	return strings.Join(matches, "\n---\n")
}

func regexLineByLine(text string, re *regexp.Regexp, ctx ContextLines, max int) string {
	lines := strings.Split(text, "\n")

	before, after := ctx.Before, ctx.After
	if ctx.Both > 0 {
		before, after = ctx.Both, ctx.Both
	}

	type window struct{ start, end int } // inclusive line indices
	var windows []window
	matched := 0
	for i, line := range lines {
		if matched >= max {
			break
		}
		if !re.MatchString(line) {
			continue
		}
		matched++
		start := i - before
		if start < 0 {
			start = 0
		}
		end := i + after
		if end >= len(lines) {
			end = len(lines) - 1
		}
		if len(windows) > 0 && start <= windows[len(windows)-1].end+1 {
			if end > windows[len(windows)-1].end {
				windows[len(windows)-1].end = end
			}
		} else {
			windows = append(windows, window{start, end})
		}
	}

	var sb strings.Builder
	for i, w := range windows {
		if i > 0 {
			sb.WriteString("---\n")
		}
		for l := w.start; l <= w.end; l++ {
			sb.WriteString(lines[l])
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
