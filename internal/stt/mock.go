package stt

import (
	"context"
	"sync"
)

// Mock implements Transcriber with a replaceable function and call tracking.
type Mock struct {
	TranscribeFunc func(ctx context.Context, wav []byte) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *Mock) Transcribe(ctx context.Context, wav []byte) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, wav)
	}
	return "", nil
}

func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
