package tts

import (
	"context"
	"sync"
)

// Mock implements Synthesizer. With SynthesizeFunc nil it returns a short
// fixed byte payload.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text, voiceID string) ([]byte, error)

	mu    sync.Mutex
	calls []MockCall
}

type MockCall struct {
	Text    string
	VoiceID string
}

func (m *Mock) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, VoiceID: voiceID})
	m.mu.Unlock()
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voiceID)
	}
	return []byte("ID3mock"), nil
}

func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}
