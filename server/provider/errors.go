package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider indicates that no provider is configured
	ErrNoProvider = errors.New("no LLM provider configured")

	// ErrMissingAPIKey is returned before any network call when the
	// service needs a credential and none is set
	ErrMissingAPIKey = errors.New("API key required")

	// ErrEmptyPrompt indicates a prompt without messages
	ErrEmptyPrompt = errors.New("prompt has no messages")

	// ErrNoCandidates is returned when the service answers without text
	ErrNoCandidates = errors.New("model returned no candidates")
)

// APIError is a non-2xx answer from the model service.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("model service error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("model service error %d: %s", e.StatusCode, e.Message)
}
