package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teilomillet/studyhall/server/processing"
)

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// TokenCounter bounds the size of a conversation.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter creates a new token counter for the specified model
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %v", model, err)
	}
	return &TokenCounter{encoding: &tiktokenWrapper{encoding}}, nil
}

// NewTokenCounterWith uses t for counting.
func NewTokenCounterWith(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// CountTokens counts the tokens of a single message
func (tc *TokenCounter) CountTokens(msg processing.Message) int {
	return tc.encoding.CountTokens(msg.Content)
}

// CountRequestTokens counts the tokens of every message in a request
func (tc *TokenCounter) CountRequestTokens(req *processing.Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += tc.CountTokens(msg)
	}
	return total
}

// ValidateTokens checks if the request's token count is within limits
func (tc *TokenCounter) ValidateTokens(req *processing.Request, maxContextTokens int) error {
	if maxContextTokens <= 0 {
		return fmt.Errorf("invalid max_context_tokens: must be greater than 0")
	}

	totalTokens := tc.CountRequestTokens(req)
	if totalTokens > maxContextTokens {
		return fmt.Errorf("total tokens (%d) exceeds max context length (%d)", totalTokens, maxContextTokens)
	}

	return nil
}
