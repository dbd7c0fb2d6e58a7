package gate

import (
	"fmt"
	"math"

	"github.com/maxhawkins/go-webrtcvad"
)

// RMS treats a frame as speech when its root-mean-square level exceeds
// Threshold.
type RMS struct {
	Threshold float64
}

func (r RMS) IsSpeech(frame []int16) bool {
	return rms(frame) > r.Threshold
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// WebRTC classifies with the WebRTC voice activity detector and falls back
// to RMS for frames it cannot accept.
type WebRTC struct {
	vad      *webrtcvad.VAD
	rate     int
	fallback RMS
	buf      []byte
}

func NewWebRTC(sampleRate int, cfg Config) (*WebRTC, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("gate: unsupported sample rate %d", sampleRate)
	}
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("gate: create vad: %w", err)
	}
	if err := vad.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("gate: vad mode %d: %w", cfg.Aggressiveness, err)
	}
	return &WebRTC{vad: vad, rate: sampleRate, fallback: RMS{Threshold: cfg.RMSThreshold}}, nil
}

func (w *WebRTC) IsSpeech(frame []int16) bool {
	if !validFrame(w.rate, len(frame)) {
		metricFallbacks.Inc()
		return w.fallback.IsSpeech(frame)
	}
	w.buf = pcmBytes(w.buf[:0], frame)
	speech, err := w.vad.Process(w.rate, w.buf)
	if err != nil {
		metricFallbacks.Inc()
		return w.fallback.IsSpeech(frame)
	}
	return speech
}

// validFrame reports whether n samples is a 10, 20 or 30 ms frame.
func validFrame(rate, n int) bool {
	per10 := rate / 100
	return n == per10 || n == 2*per10 || n == 3*per10
}

func pcmBytes(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = append(dst, byte(s), byte(s>>8))
	}
	return dst
}
