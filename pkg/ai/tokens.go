package ai

import (
	"sync"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingName = "o200k_base"
	// charsPerToken approximates English prose when no encoder is available.
	charsPerToken = 4
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(encodingName)
		if encErr != nil {
			logger.Warn("[AI] tokenizer unavailable, estimating token counts", "err", encErr)
		}
	})
	return enc, encErr
}

// CountTokens returns the o200k token count of text, or an estimate when the
// encoding cannot be loaded.
func CountTokens(text string) int {
	e, err := encoding()
	if err != nil {
		return (len([]rune(text)) + charsPerToken - 1) / charsPerToken
	}
	return len(e.Encode(text, nil, nil))
}

// TruncateTokens shortens text to at most max tokens. The bool reports
// whether anything was cut.
func TruncateTokens(text string, max int) (string, bool) {
	if max <= 0 {
		return text, false
	}
	e, err := encoding()
	if err != nil {
		runes := []rune(text)
		limit := max * charsPerToken
		if len(runes) <= limit {
			return text, false
		}
		return string(runes[:limit]), true
	}
	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= max {
		return text, false
	}
	return e.Decode(tokens[:max]), true
}
