package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"chorus/agent/internal/types"
)

// Output creates spatial endpoints. Each participant gets one Panner for
// the life of the controller.
type Output interface {
	NewPanner(pos types.Position) (Panner, error)
}

type Panner interface {
	// Play starts buf at sample offset. onEnded fires once if the voice
	// runs out of samples; it does not fire after Stop.
	Play(buf *Buffer, offset int, onEnded func()) (Voice, error)
}

type Voice interface {
	// Stop silences the voice and returns its sample position.
	Stop() int
}

// Mixer sums panned voices into interleaved stereo float32 frames. The audio
// device pulls from it with Fill.
type Mixer struct {
	rate int

	mu     sync.Mutex
	voices []*voice
}

func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate}
}

func (m *Mixer) Rate() int { return m.rate }

// Active is the number of voices currently playing.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) NewPanner(pos types.Position) (Panner, error) {
	l, r := stereoGains(pos)
	return &panner{m: m, left: l, right: r}, nil
}

// Fill writes len(out)/2 stereo frames. Voices that run out are removed and
// their ended callbacks run on a new goroutine, never on the caller's.
func (m *Mixer) Fill(out []float32) {
	for i := range out {
		out[i] = 0
	}
	frames := len(out) / 2

	var ended []func()
	m.mu.Lock()
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.mix(out, frames) {
			kept = append(kept, v)
			continue
		}
		v.done = true
		if v.onEnded != nil {
			ended = append(ended, v.onEnded)
		}
	}
	for i := len(kept); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = kept
	m.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
	for _, cb := range ended {
		go cb()
	}
}

type panner struct {
	m           *Mixer
	left, right float32
}

func (p *panner) Play(buf *Buffer, offset int, onEnded func()) (Voice, error) {
	if buf == nil || buf.Len() == 0 || buf.Rate <= 0 {
		return nil, errors.New("playback: nothing to play")
	}
	if offset < 0 || offset >= buf.Len() {
		return nil, fmt.Errorf("playback: offset %d outside %d samples", offset, buf.Len())
	}
	v := &voice{
		m:       p.m,
		buf:     buf,
		pos:     float64(offset),
		step:    float64(buf.Rate) / float64(p.m.rate),
		left:    p.left,
		right:   p.right,
		onEnded: onEnded,
	}
	p.m.mu.Lock()
	p.m.voices = append(p.m.voices, v)
	p.m.mu.Unlock()
	return v, nil
}

type voice struct {
	m           *Mixer
	buf         *Buffer
	pos         float64 // in source samples
	step        float64
	left, right float32
	onEnded     func()
	done        bool
}

// mix adds up to frames resampled frames to out and reports whether samples
// remain. Caller holds m.mu.
func (v *voice) mix(out []float32, frames int) bool {
	n := len(v.buf.Samples)
	for f := 0; f < frames; f++ {
		i := int(v.pos)
		if i >= n {
			return false
		}
		s := v.buf.Samples[i]
		if i+1 < n {
			frac := float32(v.pos - float64(i))
			s += (v.buf.Samples[i+1] - s) * frac
		}
		out[2*f] += s * v.left
		out[2*f+1] += s * v.right
		v.pos += v.step
	}
	return int(v.pos) < n
}

func (v *voice) Stop() int {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if !v.done {
		v.done = true
		for i, o := range v.m.voices {
			if o == v {
				v.m.voices = append(v.m.voices[:i], v.m.voices[i+1:]...)
				break
			}
		}
	}
	pos := int(v.pos)
	if pos > v.buf.Len() {
		pos = v.buf.Len()
	}
	return pos
}

const (
	refDistance = 1.0
	rolloff     = 1.0
)

// stereoGains maps a listener-relative position to left and right gains:
// equal-power panning on the azimuth (listener faces -Z, +X is right)
// scaled by inverse-distance attenuation.
func stereoGains(pos types.Position) (float32, float32) {
	azimuth := math.Atan2(pos.X, -pos.Z)
	pan := math.Sin(azimuth)
	angle := (pan + 1) * math.Pi / 4
	d := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	gain := refDistance / (refDistance + rolloff*(math.Max(d, refDistance)-refDistance))
	return float32(math.Cos(angle) * gain), float32(math.Sin(angle) * gain)
}
