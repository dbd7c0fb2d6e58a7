package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chorus/agent/internal/gate"
	"chorus/agent/internal/types"
)

type recordingPlayer struct {
	mu    sync.Mutex
	calls []string
	units []*types.AudioUnit
}

func (p *recordingPlayer) OnSpeechStart(ctx context.Context) { p.add("start") }
func (p *recordingPlayer) OnSpeechEnd()                      { p.add("end") }
func (p *recordingPlayer) Enqueue(u *types.AudioUnit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.units = append(p.units, u)
}

func (p *recordingPlayer) add(c string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

type responderFunc func(ctx context.Context, pcm []int16) (Result, error)

func (f responderFunc) Handle(ctx context.Context, pcm []int16) (Result, error) { return f(ctx, pcm) }

func TestDriveRoutesEvents(t *testing.T) {
	events := make(chan gate.Event, 8)
	events <- gate.Event{Kind: gate.Start}
	events <- gate.Event{Kind: gate.End, Audio: []int16{1, 2, 3}}
	events <- gate.Event{Kind: gate.Start}
	events <- gate.Event{Kind: gate.End, Misfire: true}
	events <- gate.Event{Kind: gate.Start}
	events <- gate.Event{Kind: gate.End, Audio: []int16{9}}
	close(events)

	var mu sync.Mutex
	var sent [][]int16
	r := responderFunc(func(ctx context.Context, pcm []int16) (Result, error) {
		mu.Lock()
		sent = append(sent, pcm)
		mu.Unlock()
		if len(pcm) == 1 {
			return Result{}, errors.New("server down")
		}
		return Result{Unit: &types.AudioUnit{ID: "u1"}}, nil
	})
	p := &recordingPlayer{}

	Drive(context.Background(), events, p, r)

	want := []string{"start", "end", "start", "end", "start", "end"}
	if len(p.calls) != len(want) {
		t.Fatalf("calls = %v", p.calls)
	}
	for i := range want {
		if p.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", p.calls, want)
		}
	}
	if len(sent) != 2 {
		t.Fatalf("misfire must not reach the server, sent %d", len(sent))
	}
	if len(p.units) != 1 || p.units[0].ID != "u1" {
		t.Fatalf("expected one enqueued unit, got %v", p.units)
	}
}

func TestDriveSkipsQueuedResults(t *testing.T) {
	events := make(chan gate.Event, 2)
	events <- gate.Event{Kind: gate.End, Audio: []int16{1, 2}}
	close(events)
	p := &recordingPlayer{}
	Drive(context.Background(), events, p, responderFunc(func(ctx context.Context, pcm []int16) (Result, error) {
		return Result{Queued: true, ParticipantID: "sage"}, nil
	}))
	if len(p.units) != 0 {
		t.Fatal("queued result has nothing to play")
	}
}
