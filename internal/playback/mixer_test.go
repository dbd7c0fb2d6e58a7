package playback

import (
	"math"
	"testing"
	"time"

	"chorus/agent/internal/types"
)

func TestStereoGains(t *testing.T) {
	l, r := stereoGains(types.Position{Z: -1})
	if math.Abs(float64(l-r)) > 1e-6 {
		t.Fatalf("centre should be balanced, got %f/%f", l, r)
	}
	l, r = stereoGains(types.Position{X: 2, Z: -1})
	if r <= l {
		t.Fatalf("right source should favour the right channel, got %f/%f", l, r)
	}
	l, r = stereoGains(types.Position{X: -2, Z: -1})
	if l <= r {
		t.Fatalf("left source should favour the left channel, got %f/%f", l, r)
	}
	nl, _ := stereoGains(types.Position{Z: -1})
	fl, _ := stereoGains(types.Position{Z: -4})
	if fl >= nl {
		t.Fatalf("farther source should be quieter, got near %f far %f", nl, fl)
	}
}

func TestMixerResamplesAndEnds(t *testing.T) {
	m := NewMixer(8000)
	p, _ := m.NewPanner(types.Position{Z: -1})
	buf := &Buffer{Samples: make([]float32, 8), Rate: 16000}
	for i := range buf.Samples {
		buf.Samples[i] = 0.5
	}
	ended := make(chan struct{})
	if _, err := p.Play(buf, 0, func() { close(ended) }); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 8) // 4 frames at half rate consume all 8 samples
	m.Fill(out)
	if out[0] == 0 || out[1] == 0 {
		t.Fatalf("expected signal in both channels, got %v", out[:2])
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended callback not fired")
	}
	if m.Active() != 0 {
		t.Fatal("finished voice should be removed")
	}
}

func TestMixerStopReturnsOffsetWithoutEnded(t *testing.T) {
	m := NewMixer(16000)
	p, _ := m.NewPanner(types.Position{Z: -1})
	buf := &Buffer{Samples: make([]float32, 100), Rate: 16000}
	fired := false
	v, err := p.Play(buf, 10, func() { fired = true })
	if err != nil {
		t.Fatal(err)
	}
	m.Fill(make([]float32, 2*20))
	if got := v.Stop(); got != 30 {
		t.Fatalf("expected offset 30, got %d", got)
	}
	m.Fill(make([]float32, 2*200))
	if fired || m.Active() != 0 {
		t.Fatal("stopped voice must not fire or keep mixing")
	}
}

func TestMixerClamps(t *testing.T) {
	m := NewMixer(16000)
	buf := &Buffer{Samples: []float32{1, 1, 1, 1}, Rate: 16000}
	for i := 0; i < 4; i++ {
		p, _ := m.NewPanner(types.Position{Z: -0.5})
		p.Play(buf, 0, nil)
	}
	out := make([]float32, 4)
	m.Fill(out)
	for _, s := range out {
		if s > 1 || s < -1 {
			t.Fatalf("sample %f out of range", s)
		}
	}
}

func TestPlayRejectsOffsetPastEnd(t *testing.T) {
	m := NewMixer(16000)
	p, _ := m.NewPanner(types.Position{Z: -1})
	buf := &Buffer{Samples: make([]float32, 100), Rate: 16000}
	for _, off := range []int{-1, 100, 250} {
		if _, err := p.Play(buf, off, nil); err == nil {
			t.Fatalf("offset %d should be rejected", off)
		}
	}
	if m.Active() != 0 {
		t.Fatal("rejected play must not add a voice")
	}
}
