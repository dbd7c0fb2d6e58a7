// Package audiodev binds the microphone and speakers through PortAudio.
package audiodev

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"chorus/agent/internal/logging"
)

// Init starts PortAudio. Call the returned function on exit.
func Init() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return portaudio.Terminate, nil
}

// Capture reads fixed-size mono int16 frames from the default input device.
type Capture struct {
	rate   int
	frames int
	stream *portaudio.Stream
	buf    []int16
	log    zerolog.Logger
}

func OpenCapture(rate, frames int) (*Capture, error) {
	c := &Capture{rate: rate, frames: frames, buf: make([]int16, frames), log: logging.Component("audiodev")}
	if err := c.open(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Capture) open() error {
	s, err := portaudio.OpenDefaultStream(1, 0, float64(c.rate), c.frames, c.buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return fmt.Errorf("start input stream: %w", err)
	}
	c.stream = s
	return nil
}

// Run reads frames until ctx is done and closes the returned channel. Read
// errors reopen the stream; frames are dropped when the consumer lags.
func (c *Capture) Run(ctx context.Context) <-chan []int16 {
	out := make(chan []int16, 50)
	go func() {
		defer close(out)
		defer c.close()
		for ctx.Err() == nil {
			if c.stream == nil {
				if err := c.open(); err != nil {
					c.log.Error().Err(err).Msg("input stream reopen failed")
					return
				}
			}
			if err := c.stream.Read(); err != nil {
				c.log.Warn().Err(err).Msg("input read failed, reopening")
				c.close()
				continue
			}
			frame := make([]int16, len(c.buf))
			copy(frame, c.buf)
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			default:
				metricDropped.Inc()
			}
		}
	}()
	return out
}

func (c *Capture) close() {
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

// Filler produces interleaved stereo float32 frames on demand.
type Filler interface {
	Fill(out []float32)
}

// Playback drives the default output device from a Filler.
type Playback struct {
	stream *portaudio.Stream
}

func OpenPlayback(rate, frames int, src Filler) (*Playback, error) {
	s, err := portaudio.OpenDefaultStream(0, 2, float64(rate), frames, func(out []float32) {
		src.Fill(out)
	})
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &Playback{stream: s}, nil
}

func (p *Playback) Close() error {
	if err := p.stream.Stop(); err != nil {
		p.stream.Close()
		return err
	}
	return p.stream.Close()
}
