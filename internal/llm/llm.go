// Package llm generates personality replies from rendered prompts.
package llm

import (
	"context"
	"fmt"
)

// Generator returns the completion for a full prompt (system prompt plus
// conversation transcript). Implementations never retry.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// APIError is a non-2xx answer from a completion provider.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
