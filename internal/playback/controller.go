// Package playback decides what reply audio plays while the user speaks.
//
// Audio plays only while speech is detected: a speech start resumes or
// starts a unit, a speech end pauses it and remembers the offset. Units
// queued while paused pre-empt the paused one on the next start.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

var ErrMissingPosition = errors.New("audio unit has no position")

// Fetcher supplies the server's default audio for the first speech event.
type Fetcher interface {
	DefaultUnit(ctx context.Context) (*types.AudioUnit, error)
}

// State is a diagnostic snapshot.
type State struct {
	Queued       int      `json:"queued"`
	Current      string   `json:"current,omitempty"`
	Participant  string   `json:"participant,omitempty"`
	Playing      bool     `json:"playing"`
	Speaking     bool     `json:"speaking"`
	Offset       int      `json:"offset"`
	Panners      []string `json:"panners"`
	Bootstrapped bool     `json:"bootstrapped"`
}

type Controller struct {
	out   Output
	dec   Decoder
	fetch Fetcher

	mu           sync.Mutex
	queue        []*types.AudioUnit
	current      *types.AudioUnit
	buf          *Buffer
	voice        Voice
	gen          uint64
	speaking     bool
	offset       int
	panners      map[string]Panner
	bootstrapped bool

	bg  sync.WaitGroup
	log zerolog.Logger
}

// New builds a controller. fetch may be nil to disable bootstrap audio.
func New(out Output, dec Decoder, fetch Fetcher) *Controller {
	return &Controller{
		out:     out,
		dec:     dec,
		fetch:   fetch,
		panners: make(map[string]Panner),
		log:     logging.Component("playback"),
	}
}

// Enqueue appends a unit. It never starts playback by itself.
func (c *Controller) Enqueue(u *types.AudioUnit) {
	if u == nil {
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, u)
	n := len(c.queue)
	c.mu.Unlock()
	gaugeQueue.Set(float64(n))
	c.log.Debug().Str("unit", u.ID).Str("participant", u.ParticipantID).Int("queued", n).Msg("enqueued")
}

// OnSpeechStart begins playback: a playable queued unit pre-empts the
// paused one, otherwise the paused one resumes. The very first start with
// nothing to play fetches the server's default audio in the background.
// Repeated calls while speaking are ignored.
func (c *Controller) OnSpeechStart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speaking {
		return
	}
	c.speaking = true

	if u, buf, ok := c.popPlayableLocked(); ok {
		if c.current != nil {
			metricPreemptions.Inc()
			c.log.Debug().Str("unit", c.current.ID).Msg("paused unit discarded for queued audio")
		}
		c.startLocked(u, buf)
		return
	}
	switch {
	case c.current != nil:
		metricResumes.Inc()
		c.playCurrentLocked()
	case !c.bootstrapped && c.fetch != nil:
		c.bootstrapped = true
		c.bg.Add(1)
		go c.bootstrap(ctx)
	default:
		c.bootstrapped = true
	}
}

// OnSpeechEnd pauses the playing voice and keeps its unit for resume.
func (c *Controller) OnSpeechEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = false
	if c.voice == nil {
		return
	}
	c.offset = c.voice.Stop()
	c.voice = nil
	c.gen++
	// The voice may have run dry before its ended callback got the lock.
	if c.buf != nil && c.offset >= c.buf.Len() {
		metricCompleted.Inc()
		c.log.Debug().Str("unit", c.current.ID).Msg("finished at pause")
		c.clearCurrentLocked()
		return
	}
	c.log.Debug().Int("offset", c.offset).Msg("paused")
}

// bootstrap runs off the event goroutine so a speech end is never held
// behind the fetch. The unit is dropped if other audio arrived meanwhile,
// and waits for the next speech start if speech already ended.
func (c *Controller) bootstrap(ctx context.Context) {
	defer c.bg.Done()
	u, err := c.fetch.DefaultUnit(ctx)
	if err != nil {
		c.log.Info().Err(err).Msg("no default audio")
		return
	}
	metricBootstrap.Inc()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil || len(c.queue) > 0 {
		c.log.Debug().Str("unit", u.ID).Msg("default audio superseded")
		return
	}
	c.queue = append(c.queue, u)
	gaugeQueue.Set(float64(len(c.queue)))
	if c.speaking {
		c.startNextLocked()
	}
}

// Wait blocks until a pending default-audio fetch has finished.
func (c *Controller) Wait() {
	c.bg.Wait()
}

// startNextLocked plays the first playable queued unit from the beginning.
func (c *Controller) startNextLocked() {
	if u, buf, ok := c.popPlayableLocked(); ok {
		c.startLocked(u, buf)
	}
}

// popPlayableLocked pops queue heads until one has a position and decodes.
// Rejected units are dropped as if they had never been queued.
func (c *Controller) popPlayableLocked() (*types.AudioUnit, *Buffer, bool) {
	for len(c.queue) > 0 {
		u := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		gaugeQueue.Set(float64(len(c.queue)))

		if u.Position == nil {
			metricRejected.WithLabelValues("missing_position").Inc()
			c.log.Warn().Err(ErrMissingPosition).Str("unit", u.ID).Str("participant", u.ParticipantID).Msg("unit rejected")
			continue
		}
		buf, err := c.dec.Decode(u.Audio)
		if err != nil {
			metricRejected.WithLabelValues("decode").Inc()
			c.log.Error().Err(err).Str("unit", u.ID).Msg("unit abandoned")
			continue
		}
		return u, buf, true
	}
	return nil, nil, false
}

func (c *Controller) startLocked(u *types.AudioUnit, buf *Buffer) {
	c.current = u
	c.buf = buf
	c.offset = 0
	c.playCurrentLocked()
}

func (c *Controller) playCurrentLocked() {
	u := c.current
	p, err := c.pannerLocked(u)
	if err != nil {
		metricRejected.WithLabelValues("routing").Inc()
		c.log.Error().Err(err).Str("unit", u.ID).Msg("unit abandoned")
		c.clearCurrentLocked()
		return
	}
	c.gen++
	gen := c.gen
	v, err := p.Play(c.buf, c.offset, func() { c.onEnded(gen) })
	if err != nil {
		metricRejected.WithLabelValues("routing").Inc()
		c.log.Error().Err(err).Str("unit", u.ID).Msg("unit abandoned")
		c.clearCurrentLocked()
		return
	}
	c.voice = v
	metricStarted.Inc()
	c.log.Debug().Str("unit", u.ID).Str("participant", u.ParticipantID).Int("offset", c.offset).Msg("playing")
}

// pannerLocked returns the participant's panner, creating it at the unit's
// position on first use. Existing panners are never moved.
func (c *Controller) pannerLocked(u *types.AudioUnit) (Panner, error) {
	if p, ok := c.panners[u.ParticipantID]; ok {
		return p, nil
	}
	p, err := c.out.NewPanner(*u.Position)
	if err != nil {
		return nil, err
	}
	c.panners[u.ParticipantID] = p
	gaugePanners.Set(float64(len(c.panners)))
	return p, nil
}

// onEnded handles natural completion. Notifications from voices that were
// stopped or replaced carry an old generation and are ignored.
func (c *Controller) onEnded(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.voice == nil {
		metricStaleEnds.Inc()
		return
	}
	metricCompleted.Inc()
	c.voice = nil
	c.clearCurrentLocked()
	if c.speaking {
		c.startNextLocked()
	}
}

func (c *Controller) clearCurrentLocked() {
	c.current = nil
	c.buf = nil
	c.offset = 0
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Queued:       len(c.queue),
		Playing:      c.voice != nil,
		Speaking:     c.speaking,
		Offset:       c.offset,
		Bootstrapped: c.bootstrapped,
	}
	if c.current != nil {
		st.Current = c.current.ID
		st.Participant = c.current.ParticipantID
	}
	for id := range c.panners {
		st.Panners = append(st.Panners, id)
	}
	return st
}
