// Package stt turns recorded utterances into text.
package stt

import (
	"context"
	"fmt"
)

// Transcriber converts one WAV-encoded utterance to text. An utterance with
// no recognizable speech yields "" and a nil error.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// APIError is a non-2xx answer from the transcription provider.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether a later attempt could succeed. Nothing in this
// module retries; callers use it for logging and status mapping.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
