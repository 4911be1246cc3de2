package attachment

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const truncatedSuffix = "\n\n[Document truncated]"

// Budget caps document text at a token count.
type Budget struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// NewBudget creates a Budget for model's tokenizer. Unknown models use
// cl100k_base; if no tokenizer can be loaded the budget falls back to an
// estimate of four characters per token.
func NewBudget(model string, maxTokens int) *Budget {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating document size", "error", err)
			enc = nil
		}
	}
	return &Budget{tokenizer: enc, maxTokens: maxTokens}
}

// Truncate returns text cut to the budget. A non-positive budget disables
// truncation.
func (b *Budget) Truncate(text string) string {
	if b.maxTokens <= 0 {
		return text
	}
	if b.tokenizer == nil {
		maxChars := b.maxTokens * 4
		if len(text) <= maxChars {
			return text
		}
		return strings.ToValidUTF8(text[:maxChars], "") + truncatedSuffix
	}

	tokens := b.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= b.maxTokens {
		return text
	}
	return b.tokenizer.Decode(tokens[:b.maxTokens]) + truncatedSuffix
}
