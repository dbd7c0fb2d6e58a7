package floor

import (
	"strings"
	"sync"

	"chorus/agent/internal/types"
)

const conversationHeader = "\n\nCurrent conversation:\n"

// Participant is one personality plus its mutable conversation state.
// history alternates user and assistant turns; pending holds transcripts
// accepted while a generation was in flight.
type Participant struct {
	types.Personality

	maxHistory int // pairs
	maxChars   int

	mu      sync.Mutex
	history []string
	pending []string
	busy    bool
}

func newParticipant(p types.Personality, maxHistory, maxChars int) *Participant {
	return &Participant{Personality: p, maxHistory: maxHistory, maxChars: maxChars}
}

// History returns a copy of the conversation history.
func (p *Participant) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}

// Pending returns a copy of the inputs not yet folded into a prompt.
func (p *Participant) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pending...)
}

func (p *Participant) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// drainLocked joins every pending input into one combined prompt and clears
// the pending list, returning the drained inputs too. Caller holds p.mu.
func (p *Participant) drainLocked() (string, []string) {
	drained := p.pending
	p.pending = nil
	return strings.Join(drained, " "), drained
}

// promptLocked renders the generation prompt from the system prompt and the
// current history. Caller holds p.mu.
func (p *Participant) promptLocked() string {
	return p.SystemPrompt + conversationHeader + strings.Join(p.history, "\n")
}

// appendLocked adds a turn and re-applies both history bounds.
func (p *Participant) appendLocked(turn string) {
	p.history = append(p.history, turn)
	p.history = trimHistory(p.history, p.maxHistory, p.maxChars)
}

// trimHistory drops the oldest user/assistant pair while the history holds
// more than 2*maxPairs entries, then while the newline-joined text exceeds
// maxChars. It never trims below two entries, so a single oversized pair
// survives.
func trimHistory(h []string, maxPairs, maxChars int) []string {
	for len(h) > 2*maxPairs && len(h) > 2 {
		h = h[2:]
	}
	for len(h) > 2 && joinedLen(h) > maxChars {
		h = h[2:]
	}
	// Copy once shrunk so dropped turns are released.
	if cap(h) > 4*len(h)+8 {
		h = append([]string(nil), h...)
	}
	return h
}

func joinedLen(h []string) int {
	if len(h) == 0 {
		return 0
	}
	n := len(h) - 1
	for _, s := range h {
		n += len(s)
	}
	return n
}
