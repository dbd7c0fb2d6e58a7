// Package gate turns a stream of fixed-size PCM frames into utterance start
// and end events using frame-level speech classification plus hysteresis.
package gate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chorus/agent/internal/logging"
)

type Kind int

const (
	Start Kind = iota + 1
	End
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Event marks an utterance boundary. End events carry the utterance audio
// (pre-pad included) unless Misfire is set.
type Event struct {
	Kind    Kind
	Audio   []int16
	Misfire bool
	At      time.Time
}

// Classifier labels one frame as speech or not.
type Classifier interface {
	IsSpeech(frame []int16) bool
}

type Gate struct {
	cfg    Config
	cls    Classifier
	events chan Event
	log    zerolog.Logger

	speaking     bool
	consecSpeech int
	nonSpeech    int
	speechFrames int
	frames       int
	ring         [][]int16
	utter        []int16
}

func New(cls Classifier, cfg Config) *Gate {
	return &Gate{
		cfg:    cfg.withDefaults(),
		cls:    cls,
		events: make(chan Event, 16),
		log:    logging.Component("gate"),
	}
}

// Events is fed by Run.
func (g *Gate) Events() <-chan Event { return g.events }

func (g *Gate) Speaking() bool { return g.speaking }

// Run pushes every frame through the gate and forwards boundary events until
// frames is closed or ctx is done. Events is closed on return.
func (g *Gate) Run(ctx context.Context, frames <-chan []int16) {
	defer close(g.events)
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if ev, ok := g.Flush(); ok {
					g.emit(ctx, ev)
				}
				return
			}
			if ev, ok := g.Push(f); ok {
				g.emit(ctx, ev)
			}
		}
	}
}

func (g *Gate) emit(ctx context.Context, ev Event) {
	select {
	case g.events <- ev:
	case <-ctx.Done():
	}
}

// Push classifies one frame and reports a boundary event if it caused one.
func (g *Gate) Push(frame []int16) (Event, bool) {
	metricFrames.Inc()
	speech := g.cls.IsSpeech(frame)

	if !g.speaking {
		g.remember(frame)
		if !speech {
			g.consecSpeech = 0
			return Event{}, false
		}
		g.consecSpeech++
		if g.consecSpeech < g.cfg.MinStart {
			return Event{}, false
		}
		g.speaking = true
		g.nonSpeech = 0
		g.speechFrames = g.consecSpeech
		g.frames = len(g.ring)
		g.utter = g.utter[:0]
		for _, f := range g.ring {
			g.utter = append(g.utter, f...)
		}
		g.ring = g.ring[:0]
		metricStarts.Inc()
		g.log.Debug().Int("prepad_frames", g.frames-g.consecSpeech).Msg("speech start")
		return Event{Kind: Start, At: time.Now()}, true
	}

	g.utter = append(g.utter, frame...)
	g.frames++
	if speech {
		g.nonSpeech = 0
		g.speechFrames++
	} else {
		g.nonSpeech++
	}
	if g.nonSpeech >= g.cfg.Hangover || g.frames >= g.cfg.MaxUtteranceFrames {
		return g.end(), true
	}
	return Event{}, false
}

// Flush ends an in-progress utterance, for use when the input stream stops.
func (g *Gate) Flush() (Event, bool) {
	if !g.speaking {
		return Event{}, false
	}
	return g.end(), true
}

func (g *Gate) end() Event {
	ev := Event{Kind: End, At: time.Now()}
	if g.speechFrames < g.cfg.MinSpeechFrames {
		ev.Misfire = true
		metricEnds.WithLabelValues("misfire").Inc()
		g.log.Debug().Int("speech_frames", g.speechFrames).Msg("speech end (misfire)")
	} else {
		ev.Audio = append([]int16(nil), g.utter...)
		metricEnds.WithLabelValues("utterance").Inc()
		g.log.Debug().Int("speech_frames", g.speechFrames).Int("samples", len(ev.Audio)).Msg("speech end")
	}
	g.speaking = false
	g.consecSpeech = 0
	g.nonSpeech = 0
	g.speechFrames = 0
	g.frames = 0
	g.utter = g.utter[:0]
	return ev
}

// remember keeps the most recent PrePad+MinStart frames while idle so the
// utterance includes the onset that triggered it.
func (g *Gate) remember(frame []int16) {
	f := append([]int16(nil), frame...)
	limit := g.cfg.PrePad + g.cfg.MinStart
	if len(g.ring) >= limit {
		copy(g.ring, g.ring[1:])
		g.ring = g.ring[:len(g.ring)-1]
	}
	g.ring = append(g.ring, f)
}
