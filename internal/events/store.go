// Package events keeps a bounded journal of pipeline events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"chorus/agent/internal/types"
)

const (
	DefaultMaxEvents = 200
	TypeTruncated    = "events_truncated"
)

// Publisher receives every event after it is journaled.
type Publisher interface {
	Publish(evt types.Event)
}

type Store struct {
	mu     sync.RWMutex
	events []types.Event
	max    int
	pub    Publisher
}

func NewStore(max int) *Store {
	if max < 2 {
		max = DefaultMaxEvents
	}
	return &Store{max: max}
}

// SetPublisher attaches a live fan-out target; nil detaches.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.pub = p
	s.mu.Unlock()
}

// Append records an event. Past the cap the oldest events are dropped and a
// single truncation marker is appended so the total stays at the cap.
func (s *Store) Append(typ, participantID string, payload map[string]any) types.Event {
	evt := types.Event{
		ID:            uuid.NewString(),
		Type:          typ,
		Ts:            time.Now().UTC(),
		ParticipantID: participantID,
		Payload:       payload,
	}
	s.mu.Lock()
	s.events = append(s.events, evt)
	if l := len(s.events); l > s.max {
		keep := s.max - 1
		dropped := l - keep
		s.events = append([]types.Event(nil), s.events[l-keep:]...)
		s.events = append(s.events, types.Event{
			ID:      uuid.NewString(),
			Type:    TypeTruncated,
			Ts:      time.Now().UTC(),
			Payload: map[string]any{"dropped": dropped, "kept": keep},
		})
	}
	pub := s.pub
	s.mu.Unlock()

	if pub != nil {
		pub.Publish(evt)
	}
	return evt
}

func (s *Store) List() []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}
