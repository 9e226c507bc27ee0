package pipeline

import (
	"strings"

	"github.com/mcplens/lens-proxy/internal/jsontree"
	"github.com/mcplens/lens-proxy/internal/tokencount"
)

// hintThreshold is the payload size (in characters) above which the
// hinter starts suggesting drill-ins. Deliberately lower than the
// truncation threshold so an agent gets exploration hints even on
// responses that were not large enough to truncate.
const hintThreshold = 2000

// maxHintKeys bounds how many top-level keys are suggested for
// proxy_filter, per spec.md §4.9.
const maxHintKeys = 10

// rlmHints is the structured suggestion payload named by spec.md §4.9.
type rlmHints struct {
	RecursiveExplorationAvailable bool       `json:"recursive_exploration_available"`
	Strategies                    []string   `json:"strategies"`
	NextSteps                     []nextStep `json:"next_steps"`
	EstimatedTokenSavings         int        `json:"estimated_token_savings"`
	Hint                          string     `json:"hint"`
}

type nextStep struct {
	Tool      string                 `json:"tool"`
	When      string                 `json:"when"`
	Arguments map[string]interface{} `json:"arguments"`
}

// hint inspects the first text item's content and, if it looks "large"
// and the hinter finds a concrete suggestion, returns the rlm_hints
// object. cacheID, when non-empty, is substituted into every next step
// that needs one. Any internal failure here is swallowed by the caller:
// the hinter is best-effort per spec.md §7.
func hint(text string, cacheID string) *rlmHints {
	if len(text) < hintThreshold {
		return nil
	}

	total := tokencount.Get().Count(text)

	node, ok := jsontree.Parse(text)
	if !ok {
		return hintPlainText(text, total, cacheID)
	}

	if obj, ok := jsontree.IsObject(node); ok {
		return hintObject(obj, total, cacheID)
	}
	if arr, ok := jsontree.IsArray(node); ok {
		return hintArray(arr, total, cacheID)
	}
	return nil
}

// estimateSavings assumes a drill-in would keep roughly one of units
// equally sized pieces of the total token count and discard the rest,
// clamped so a degenerate units<=1 never reports a negative saving.
func estimateSavings(total, units int) int {
	if units <= 1 {
		return 0
	}
	kept := total / units
	savings := total - kept
	if savings < 0 {
		return 0
	}
	return savings
}

func argsWithCacheID(cacheID string, extra map[string]interface{}) map[string]interface{} {
	args := map[string]interface{}{}
	for k, v := range extra {
		args[k] = v
	}
	if cacheID != "" {
		args["cache_id"] = cacheID
	}
	return args
}

func hintObject(obj map[string]interface{}, total int, cacheID string) *rlmHints {
	keys := make([]string, 0, len(obj))
	listKey := ""
	for k, v := range obj {
		keys = append(keys, k)
		if _, isArr := v.([]interface{}); isArr && listKey == "" {
			listKey = k
		}
		if len(keys) >= maxHintKeys {
			break
		}
	}

	strategies := []string{"field-path projection over the top-level keys"}
	steps := []nextStep{
		{
			Tool:      "proxy_filter",
			When:      "you only need a subset of the top-level fields",
			Arguments: argsWithCacheID(cacheID, map[string]interface{}{"fields": keys}),
		},
	}
	if listKey != "" {
		strategies = append(strategies, "nested-path projection into list-valued fields")
		steps = append(steps, nextStep{
			Tool:      "proxy_filter",
			When:      "a field holds a list and you need one nested column from it",
			Arguments: argsWithCacheID(cacheID, map[string]interface{}{"fields": []string{listKey + ".<field>"}}),
		})
	}

	return &rlmHints{
		RecursiveExplorationAvailable: true,
		Strategies:                    strategies,
		NextSteps:                     steps,
		EstimatedTokenSavings:         estimateSavings(total, len(obj)),
		Hint:                          "this response is an object; drill in by field path instead of reading it whole",
	}
}

func hintArray(arr []interface{}, total int, cacheID string) *rlmHints {
	return &rlmHints{
		RecursiveExplorationAvailable: true,
		Strategies:                    []string{"pagination via projection"},
		NextSteps: []nextStep{
			{
				Tool:      "proxy_filter",
				When:      "you need only the first elements, not the whole list",
				Arguments: argsWithCacheID(cacheID, map[string]interface{}{"fields": []string{"0"}}),
			},
		},
		EstimatedTokenSavings: estimateSavings(total, len(arr)),
		Hint:                  "this response is a list; page through it with proxy_filter rather than reading it whole",
	}
}

func hintPlainText(text string, total int, cacheID string) *rlmHints {
	lines := strings.Count(text, "\n") + 1
	if lines <= 100 {
		return nil
	}
	// A search drill-in realistically keeps one ~20-line window of
	// context rather than the whole body.
	windows := lines / 20
	return &rlmHints{
		RecursiveExplorationAvailable: true,
		Strategies:                    []string{"regex search for warnings/errors"},
		NextSteps: []nextStep{
			{
				Tool: "proxy_search",
				When: "you're looking for error or warning lines in a long log-like response",
				Arguments: argsWithCacheID(cacheID, map[string]interface{}{
					"pattern":       "ERROR|WARN",
					"mode":          "regex",
					"max_results":   20,
					"context_lines": 2,
				}),
			},
		},
		EstimatedTokenSavings: estimateSavings(total, windows),
		Hint:                  "this is a long plain-text response; search it instead of reading it whole",
	}
}
