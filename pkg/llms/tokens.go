package llms

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return cached
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}

	encodingMu.Lock()
	encodingCache[model] = encoding
	encodingMu.Unlock()
	return encoding
}

// EstimateTokens counts tokens for text using the model's tokenizer,
// falling back to a bytes/4 heuristic when no encoding is available.
// Used when an API response omits usage data.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if encoding := encodingFor(model); encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}
