// Package prompt assembles generation prompts from project state, advisory
// references, and the user request, and estimates their token footprint and
// cost. Assembly is pure: the same inputs always produce the same prompt,
// token count, and cost estimate.
package prompt

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens for prompt sizing. All supported chat models
// approximate well with the GPT-4 encoding; when the codec is unavailable
// the counter falls back to a characters-per-token estimate.
type TokenCounter struct {
	codec   tokenizer.Codec
	divisor int
}

// NewTokenCounter creates a token counter. divisor is the fallback
// characters-per-token ratio used when the codec cannot be constructed or
// fails on input; values below 1 are clamped to 4.
func NewTokenCounter(divisor int) *TokenCounter {
	if divisor < 1 {
		divisor = 4
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		codec = nil
	}
	return &TokenCounter{codec: codec, divisor: divisor}
}

// Count returns the token count for text. Non-empty text always counts as
// at least one token.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	if tc.codec != nil {
		if count, err := tc.codec.Count(text); err == nil {
			return max(count, 1)
		}
	}
	return max(len(text)/tc.divisor, 1)
}

// EstimateCost converts a token count into an estimated dollar cost at the
// given per-thousand-token rate.
func EstimateCost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000.0 * costPer1K
}

// FormatCost renders an estimated cost for display.
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.6f", cost)
}
