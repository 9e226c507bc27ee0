package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var dmp = diffmatchpatch.New()

// charFrequencyDistance is the multiset distance used as the fuzzy
// pre-filter: the sum of absolute per-rune count differences between
// pattern and window.
func charFrequencyDistance(pattern, window string) int {
	counts := map[rune]int{}
	for _, r := range pattern {
		counts[r]++
	}
	for _, r := range window {
		counts[r]--
	}
	dist := 0
	for _, c := range counts {
		if c < 0 {
			c = -c
		}
		dist += c
	}
	return dist
}

// levenshtein computes character-level edit distance via the teacher's
// diff library, used here as a distance metric rather than to render a
// diff.
func levenshtein(a, b string) int {
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffLevenshtein(diffs)
}

func similarity(pattern, window string) float64 {
	maxLen := len(pattern)
	if len(window) > maxLen {
		maxLen = len(window)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(pattern, window))/float64(maxLen)
}

type fuzzyMatch struct {
	start, end int
	similarity float64
	context    string
}

// runFuzzy slides a window of pattern length across text. A
// character-frequency pre-filter rejects windows whose multiset distance
// exceeds 2*(1-threshold)*|pattern|; surviving windows are scored by
// Levenshtein-derived similarity. Matches at or above threshold are
// emitted with +/-50 char context; on a match the scan skips ahead by
// |pattern| to avoid overlapping reports. Output is sorted by similarity
// descending, capped at maxMatches.
func runFuzzy(text string, spec Spec) (string, error) {
	pattern := spec.Pattern
	if pattern == "" {
		return "", fmt.Errorf("missing required parameter 'pattern'")
	}

	threshold := spec.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	maxMatches := spec.MaxMatches
	if maxMatches <= 0 {
		maxMatches = 10
	}

	plen := len(pattern)
	if plen == 0 || plen > len(text) {
		return "No matches found.", nil
	}

	preFilterBound := float64(2*(1-threshold)) * float64(plen)

	var matches []fuzzyMatch
	i := 0
	for i+plen <= len(text) {
		window := text[i : i+plen]

		if float64(charFrequencyDistance(pattern, window)) <= preFilterBound {
			sim := similarity(pattern, window)
			if sim >= threshold {
				ctxStart := i - 50
				if ctxStart < 0 {
					ctxStart = 0
				}
				ctxEnd := i + plen + 50
				if ctxEnd > len(text) {
					ctxEnd = len(text)
				}
				matches = append(matches, fuzzyMatch{
					start:      i,
					end:        i + plen,
					similarity: sim,
					context:    text[ctxStart:ctxEnd],
				})
				i += plen
				continue
			}
		}
		i++
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].similarity > matches[b].similarity
	})
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}

	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[offset %d, similarity=%.3f] ...%s...", m.start, m.similarity, m.context)
	}
	return sb.String(), nil
}
