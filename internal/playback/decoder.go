package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// Buffer is decoded mono audio.
type Buffer struct {
	Samples []float32
	Rate    int
}

func (b *Buffer) Len() int { return len(b.Samples) }

type Decoder interface {
	Decode(audio []byte) (*Buffer, error)
}

// MP3 decodes MPEG audio with go-mp3 and downmixes to mono.
type MP3 struct{}

func (MP3) Decode(audio []byte) (*Buffer, error) {
	if len(audio) == 0 {
		return nil, errors.New("playback: empty audio")
	}
	d, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("playback: mp3 header: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("playback: mp3 decode: %w", err)
	}
	n := len(raw) / 4
	if n == 0 {
		return nil, errors.New("playback: mp3 contained no samples")
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		l := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
		r := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
		out[i] = (float32(l) + float32(r)) / 2 / 32768
	}
	return &Buffer{Samples: out, Rate: d.SampleRate()}, nil
}
