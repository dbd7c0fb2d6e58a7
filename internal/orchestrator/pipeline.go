// Package orchestrator runs one recorded utterance through transcription,
// turn scheduling and synthesis.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chorus/agent/internal/events"
	"chorus/agent/internal/floor"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/store"
	"chorus/agent/internal/stt"
	"chorus/agent/internal/tts"
	"chorus/agent/internal/types"
)

var (
	ErrCollaborator       = floor.ErrCollaborator
	ErrUnknownPersonality = floor.ErrUnknownPersonality
	ErrEmptyInput         = floor.ErrEmptyInput
)

// Outcome is the result of one pass through the pipeline. At most one of
// Empty, Queued or Unit applies.
type Outcome struct {
	Empty         bool
	Queued        bool
	ParticipantID string
	Transcript    string
	Reply         types.Reply
	Unit          *types.AudioUnit
}

type Pipeline struct {
	stt    stt.Transcriber
	sched  *floor.Scheduler
	tts    tts.Synthesizer
	store  *store.FileStore
	events *events.Store
	log    zerolog.Logger

	// OnDeferredUnit receives units synthesized for auto-drained replies.
	OnDeferredUnit func(*types.AudioUnit)
}

// New wires the pipeline and takes over the scheduler's deferred reply hook.
// st and ev may be nil.
func New(t stt.Transcriber, sched *floor.Scheduler, synth tts.Synthesizer, st *store.FileStore, ev *events.Store) *Pipeline {
	p := &Pipeline{
		stt:    t,
		sched:  sched,
		tts:    synth,
		store:  st,
		events: ev,
		log:    logging.Component("pipeline"),
	}
	sched.OnDeferred = p.speakDeferred
	return p
}

func (p *Pipeline) Scheduler() *floor.Scheduler { return p.sched }

// Handle transcribes wav, routes the transcript to the next participant and
// synthesizes the reply. Any collaborator failure aborts with no partial unit.
func (p *Pipeline) Handle(ctx context.Context, wav []byte) (Outcome, error) {
	start := time.Now()
	text, err := p.Transcribe(ctx, wav)
	if err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return Outcome{}, err
	}
	out, err := p.Reply(ctx, text)
	if err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return out, err
	}
	if out.Empty || out.Queued {
		return out, nil
	}
	unit, err := p.Speak(ctx, out.Reply.Text, out.ParticipantID)
	if err != nil {
		metricOutcomes.WithLabelValues("error").Inc()
		return Outcome{}, err
	}
	out.Unit = unit
	metricOutcomes.WithLabelValues("unit").Inc()
	metricStageMS.WithLabelValues("total").Observe(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// Transcribe persists the upload for the lifetime of the call and returns
// the trimmed transcript.
func (p *Pipeline) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", fmt.Errorf("transcribe: %w", ErrEmptyInput)
	}
	if p.store != nil {
		_, cleanup, err := p.store.SaveUpload(wav)
		if err != nil {
			p.log.Warn().Err(err).Msg("upload not persisted")
		}
		defer cleanup()
	}
	start := time.Now()
	text, err := p.stt.Transcribe(ctx, wav)
	metricStageMS.WithLabelValues("stt").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return "", p.fail("stt", "", err)
	}
	text = strings.TrimSpace(text)
	p.record("transcribed", "", map[string]any{"text": text})
	return text, nil
}

// Reply submits a transcript to the scheduler. Whitespace-only text is an
// empty outcome and touches no participant.
func (p *Pipeline) Reply(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		metricOutcomes.WithLabelValues("empty").Inc()
		return Outcome{Empty: true}, nil
	}
	start := time.Now()
	res, err := p.sched.Submit(ctx, text)
	metricStageMS.WithLabelValues("llm").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricFailures.WithLabelValues("llm").Inc()
		p.record("collaborator_error", res.ParticipantID, map[string]any{"stage": "llm"})
		return Outcome{ParticipantID: res.ParticipantID, Transcript: text}, err
	}
	if res.Queued {
		metricOutcomes.WithLabelValues("queued").Inc()
		p.record("queued", res.ParticipantID, map[string]any{"text": text})
		return Outcome{Queued: true, ParticipantID: res.ParticipantID, Transcript: text}, nil
	}
	p.record("dispatched", res.ParticipantID, map[string]any{"text": res.Reply.Text})
	return Outcome{ParticipantID: res.ParticipantID, Transcript: text, Reply: res.Reply}, nil
}

// Speak synthesizes text in the participant's voice and builds a unit
// carrying a copy of its position.
func (p *Pipeline) Speak(ctx context.Context, text, participantID string) (*types.AudioUnit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("speak: %w", ErrEmptyInput)
	}
	part, ok := p.sched.Participant(participantID)
	if !ok {
		return nil, fmt.Errorf("speak %q: %w", participantID, ErrUnknownPersonality)
	}
	start := time.Now()
	audio, err := p.tts.Synthesize(ctx, text, part.VoiceID)
	metricStageMS.WithLabelValues("tts").Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, p.fail("tts", participantID, err)
	}
	pos := part.Position
	unit := &types.AudioUnit{
		ID:            uuid.NewString(),
		Audio:         audio,
		ParticipantID: participantID,
		Position:      &pos,
		Text:          text,
		CreatedAt:     time.Now().UTC(),
	}
	if p.store != nil {
		if _, err := p.store.SaveResponse(participantID, audio); err != nil {
			p.log.Warn().Err(err).Str("participant", participantID).Msg("response not persisted")
		}
	}
	p.record("synthesized", participantID, map[string]any{"unit_id": unit.ID, "bytes": len(audio)})
	return unit, nil
}

// speakDeferred voices a reply produced by auto-drain. It runs on the
// scheduler's background goroutine.
func (p *Pipeline) speakDeferred(r types.Reply) {
	p.record("deferred_reply", r.ParticipantID, map[string]any{"text": r.Text})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	unit, err := p.Speak(ctx, r.Text, r.ParticipantID)
	if err != nil {
		p.log.Error().Err(err).Str("participant", r.ParticipantID).Msg("deferred reply not synthesized")
		return
	}
	metricOutcomes.WithLabelValues("deferred_unit").Inc()
	if p.OnDeferredUnit != nil {
		p.OnDeferredUnit(unit)
	}
}

func (p *Pipeline) fail(stage, participantID string, err error) error {
	metricFailures.WithLabelValues(stage).Inc()
	p.log.Error().Err(err).Str("stage", stage).Str("participant", participantID).Msg("collaborator failed")
	p.record("collaborator_error", participantID, map[string]any{"stage": stage})
	if errors.Is(err, ErrCollaborator) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", stage, ErrCollaborator, err)
}

func (p *Pipeline) record(typ, participantID string, payload map[string]any) {
	if p.events != nil {
		p.events.Append(typ, participantID, payload)
	}
}
