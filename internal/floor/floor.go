// Package floor decides which personality holds the floor for each user
// utterance and serializes generations per personality.
package floor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

var (
	ErrEmptyInput         = errors.New("empty input")
	ErrUnknownPersonality = errors.New("unknown personality")
	ErrCollaborator       = errors.New("collaborator failure")
)

type Mode string

const (
	ModeRoundRobin Mode = "round-robin"
	ModeSingle     Mode = "single"
)

// Generator produces a reply for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures a Scheduler.
type Options struct {
	Mode             Mode
	ActiveID         string // single mode; defaults to the first personality
	MaxHistoryLength int    // user/assistant pairs
	MaxTotalChars    int
	// AutoDrain runs a follow-up generation when a dispatch finishes with
	// inputs still pending. Off by default: pending inputs then wait for the
	// next submission to that participant.
	AutoDrain bool
}

// Result is the outcome of Submit. Exactly one of Queued or Reply applies.
type Result struct {
	Queued        bool
	ParticipantID string
	Reply         types.Reply
}

// Snapshot is a point-in-time view of one participant.
type Snapshot struct {
	ID         string   `json:"id"`
	Busy       bool     `json:"busy"`
	Pending    []string `json:"pending"`
	HistoryLen int      `json:"history_len"`
}

type Scheduler struct {
	gen       Generator
	order     []*Participant
	byID      map[string]*Participant
	mode      Mode
	active    *Participant
	autoDrain bool

	// OnDeferred receives replies produced by auto-drain dispatches. It is
	// called from a background goroutine while the participant is still busy.
	OnDeferred func(types.Reply)

	mu     sync.Mutex
	cursor int

	bg  sync.WaitGroup
	log zerolog.Logger
}

func New(gen Generator, personalities []types.Personality, opts Options) (*Scheduler, error) {
	if len(personalities) == 0 {
		return nil, errors.New("floor: no personalities")
	}
	if opts.MaxHistoryLength <= 0 || opts.MaxTotalChars <= 0 {
		return nil, errors.New("floor: history bounds must be positive")
	}
	s := &Scheduler{
		gen:       gen,
		byID:      make(map[string]*Participant, len(personalities)),
		mode:      opts.Mode,
		autoDrain: opts.AutoDrain,
		log:       logging.Component("floor"),
	}
	for _, p := range personalities {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("floor: duplicate personality %q", p.ID)
		}
		pp := newParticipant(p, opts.MaxHistoryLength, opts.MaxTotalChars)
		s.order = append(s.order, pp)
		s.byID[p.ID] = pp
	}
	switch opts.Mode {
	case ModeRoundRobin:
	case ModeSingle:
		s.active = s.order[0]
		if opts.ActiveID != "" {
			p, ok := s.byID[opts.ActiveID]
			if !ok {
				return nil, fmt.Errorf("floor: active personality %q: %w", opts.ActiveID, ErrUnknownPersonality)
			}
			s.active = p
		}
	default:
		return nil, fmt.Errorf("floor: unknown mode %q", opts.Mode)
	}
	return s, nil
}

// Participant looks up a participant by id.
func (s *Scheduler) Participant(id string) (*Participant, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Personalities returns the configured personalities in cyclic order.
func (s *Scheduler) Personalities() []types.Personality {
	out := make([]types.Personality, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, p.Personality)
	}
	return out
}

// Submit routes one transcript to the next participant. If that participant
// is mid-generation the text is queued and folded into its next prompt.
// Otherwise every pending input is drained into one prompt and generated
// before Submit returns.
func (s *Scheduler) Submit(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}
	p := s.next()
	metricSubmissions.WithLabelValues(p.ID).Inc()

	p.mu.Lock()
	p.pending = append(p.pending, text)
	if p.busy {
		n := len(p.pending)
		p.mu.Unlock()
		metricQueued.WithLabelValues(p.ID).Inc()
		s.log.Info().Str("participant", p.ID).Int("pending", n).Msg("participant busy, input queued")
		return Result{Queued: true, ParticipantID: p.ID}, nil
	}
	p.busy = true
	metricBusy.WithLabelValues(p.ID).Set(1)

	reply, err := s.dispatchLocked(ctx, p, true)
	s.releaseLocked(ctx, p)
	p.mu.Unlock()

	if err != nil {
		return Result{ParticipantID: p.ID}, err
	}
	return Result{ParticipantID: p.ID, Reply: reply}, nil
}

// next picks the target participant for a new submission.
func (s *Scheduler) next() *Participant {
	if s.mode == ModeSingle {
		return s.active
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.order[s.cursor]
	s.cursor = (s.cursor + 1) % len(s.order)
	return p
}

// dispatchLocked drains pending inputs and runs one generation. Caller holds
// p.mu with p.busy set; the lock is released around the generator call and
// held again on return. On failure the drained inputs go back to the front
// of the pending list, except the last one when own is set: that caller
// receives the error instead.
func (s *Scheduler) dispatchLocked(ctx context.Context, p *Participant, own bool) (types.Reply, error) {
	combined, drained := p.drainLocked()
	p.appendLocked(combined)
	prompt := p.promptLocked()
	p.mu.Unlock()

	start := time.Now()
	text, err := s.gen.Generate(ctx, prompt)
	metricGenerateMS.Observe(float64(time.Since(start).Milliseconds()))

	p.mu.Lock()
	if err != nil {
		// Busy excludes other writers, so the user turn is still last.
		if n := len(p.history); n > 0 {
			p.history = p.history[:n-1]
		}
		restore := drained
		if own && len(restore) > 0 {
			restore = restore[:len(restore)-1]
		}
		if len(restore) > 0 {
			p.pending = append(append([]string(nil), restore...), p.pending...)
		}
		metricFailures.WithLabelValues(p.ID).Inc()
		s.log.Error().Err(err).Str("participant", p.ID).Int("restored", len(restore)).Msg("generation failed")
		return types.Reply{}, fmt.Errorf("generate for %s: %w: %w", p.ID, ErrCollaborator, err)
	}
	text = strings.TrimSpace(text)
	p.appendLocked(text)
	metricDispatches.WithLabelValues(p.ID).Inc()
	s.log.Debug().Str("participant", p.ID).Int("prompt_chars", len(prompt)).Int("history", len(p.history)).Msg("dispatched")
	return types.Reply{Text: text, ParticipantID: p.ID, Position: p.Position}, nil
}

// releaseLocked ends a dispatch. With auto-drain and inputs left over the
// participant stays busy and a background goroutine takes over.
func (s *Scheduler) releaseLocked(ctx context.Context, p *Participant) {
	if s.autoDrain && len(p.pending) > 0 {
		s.bg.Add(1)
		go s.drain(context.WithoutCancel(ctx), p)
		return
	}
	p.busy = false
	metricBusy.WithLabelValues(p.ID).Set(0)
}

func (s *Scheduler) drain(ctx context.Context, p *Participant) {
	defer s.bg.Done()
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) > 0 {
		reply, err := s.dispatchLocked(ctx, p, false)
		if err != nil {
			// Inputs stay pending for the next submission.
			break
		}
		metricDeferred.WithLabelValues(p.ID).Inc()
		if s.OnDeferred != nil {
			p.mu.Unlock()
			s.OnDeferred(reply)
			p.mu.Lock()
		}
	}
	p.busy = false
	metricBusy.WithLabelValues(p.ID).Set(0)
}

// Wait blocks until background drains finish or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot reports every participant's state in cyclic order.
func (s *Scheduler) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(s.order))
	for _, p := range s.order {
		p.mu.Lock()
		out = append(out, Snapshot{
			ID:         p.ID,
			Busy:       p.busy,
			Pending:    append([]string(nil), p.pending...),
			HistoryLen: len(p.history),
		})
		p.mu.Unlock()
	}
	return out
}

// PendingCount is the number of inputs not yet folded into any prompt.
func (s *Scheduler) PendingCount() int {
	n := 0
	for _, snap := range s.Snapshot() {
		n += len(snap.Pending)
	}
	return n
}
