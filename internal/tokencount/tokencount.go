// Package tokencount provides accurate token counting for the
// exploration hinter's estimated_token_savings field, using the same
// cl100k_base tokenizer the rest of the context-management ecosystem
// uses for Claude-compatible approximation.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens with a tiktoken encoder, falling back to a
// char-based estimate if the encoding table failed to load.
type Counter struct {
	enc *tiktoken.Tiktoken
}

var (
	global     *Counter
	globalOnce sync.Once
)

// Get returns the singleton counter, building it on first use.
func Get() *Counter {
	globalOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			global = &Counter{}
			return
		}
		global = &Counter{enc: enc}
	})
	return global
}

// Count returns text's token count, or a len(text)/4 estimate if the
// tokenizer is unavailable.
func (c *Counter) Count(text string) int {
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
