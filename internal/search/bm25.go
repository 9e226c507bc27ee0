package search

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// bm25K1 and bm25B are the standard Okapi BM25 tuning constants.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// chunkWindows splits text into fixed-size overlapping windows measured
// in characters, with overlap = size/4.
func chunkWindows(text string, size int) []string {
	if size <= 0 {
		size = 2000
	}
	overlap := size / 4
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	return chunks
}

// runBM25 chunks the input into overlapping windows, tokenizes, and
// ranks chunks by Okapi BM25 against the query. Returns the top-k with
// score annotations, ties broken by lower chunk index.
func runBM25(text string, spec Spec) (string, error) {
	query := spec.query()
	if query == "" {
		return "", fmt.Errorf("missing required parameter 'pattern'")
	}

	topK := spec.TopK
	if topK <= 0 {
		topK = 5
	}

	chunks := chunkWindows(text, 2000)
	docTokens := make([][]string, len(chunks))
	avgLen := 0.0
	df := map[string]int{}
	for i, c := range chunks {
		toks := tokenize(c)
		docTokens[i] = toks
		avgLen += float64(len(toks))
		seen := map[string]bool{}
		for _, t := range toks {
			if !seen[t] {
				df[t]++
				seen[t] = true
			}
		}
	}
	if len(chunks) > 0 {
		avgLen /= float64(len(chunks))
	}

	qTerms := tokenize(query)
	N := float64(len(chunks))

	type scored struct {
		idx   int
		score float64
	}
	var results []scored
	for i, toks := range docTokens {
		tf := map[string]int{}
		for _, t := range toks {
			tf[t]++
		}
		score := 0.0
		dl := float64(len(toks))
		for _, q := range qTerms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log((N-float64(df[q])+0.5)/(float64(df[q])+0.5) + 1)
			denom := f + bm25K1*(1-bm25B+bm25B*dl/avgLen)
			score += idf * (f * (bm25K1 + 1)) / denom
		}
		if score > 0 {
			results = append(results, scored{i, score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].idx < results[j].idx
	})

	if len(results) > topK {
		results = results[:topK]
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[chunk %d, score=%.4f]\n%s", r.idx, r.score, chunks[r.idx])
	}
	return sb.String(), nil
}
