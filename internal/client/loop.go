package client

import (
	"context"
	"sync"

	"chorus/agent/internal/gate"
	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

// Player is the playback side of the loop.
type Player interface {
	OnSpeechStart(ctx context.Context)
	OnSpeechEnd()
	Enqueue(u *types.AudioUnit)
}

// Responder turns one utterance into a playable unit.
type Responder interface {
	Handle(ctx context.Context, pcm []int16) (Result, error)
}

// Drive connects gate events to playback. Each finished utterance is sent
// to the responder on its own goroutine; a later speech start never cancels
// it. Drive returns when events is closed and every in-flight call is done.
func Drive(ctx context.Context, events <-chan gate.Event, p Player, r Responder) {
	log := logging.Component("loop")
	var wg sync.WaitGroup
	defer wg.Wait()

	for ev := range events {
		switch ev.Kind {
		case gate.Start:
			p.OnSpeechStart(ctx)
		case gate.End:
			p.OnSpeechEnd()
			if ev.Misfire || len(ev.Audio) == 0 {
				continue
			}
			wg.Add(1)
			go func(pcm []int16) {
				defer wg.Done()
				res, err := r.Handle(ctx, pcm)
				if err != nil {
					log.Error().Err(err).Msg("utterance failed")
					return
				}
				if res.Unit != nil {
					p.Enqueue(res.Unit)
				}
			}(ev.Audio)
		}
	}
}
