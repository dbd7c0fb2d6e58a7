package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chorus/agent/internal/types"
)

type fakeVoice struct {
	label   string
	offset  int
	stopAt  int
	stopped bool
	onEnded func()
}

func (v *fakeVoice) Stop() int {
	v.stopped = true
	return v.stopAt
}

type fakeOutput struct {
	mu      sync.Mutex
	panners map[string]types.Position
	created []types.Position
	plays   []*fakeVoice
	labels  map[*Buffer]string
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{panners: map[string]types.Position{}, labels: map[*Buffer]string{}}
}

func (o *fakeOutput) NewPanner(pos types.Position) (Panner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, pos)
	return &fakePanner{o: o, pos: pos}, nil
}

func (o *fakeOutput) last() *fakeVoice {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.plays) == 0 {
		return nil
	}
	return o.plays[len(o.plays)-1]
}

func (o *fakeOutput) playCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.plays)
}

type fakePanner struct {
	o   *fakeOutput
	pos types.Position
}

func (p *fakePanner) Play(buf *Buffer, offset int, onEnded func()) (Voice, error) {
	p.o.mu.Lock()
	defer p.o.mu.Unlock()
	v := &fakeVoice{label: p.o.labels[buf], offset: offset, onEnded: onEnded}
	p.o.plays = append(p.o.plays, v)
	return v, nil
}

// labelDecoder tags each buffer with the unit's audio bytes so tests can
// tell which unit a voice belongs to.
type labelDecoder struct{ o *fakeOutput }

func (d labelDecoder) Decode(audio []byte) (*Buffer, error) {
	if string(audio) == "corrupt" {
		return nil, errors.New("bad frame")
	}
	b := &Buffer{Samples: make([]float32, 1000), Rate: 16000}
	d.o.mu.Lock()
	d.o.labels[b] = string(audio)
	d.o.mu.Unlock()
	return b, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	unit  *types.AudioUnit
	err   error
	block chan struct{}
	calls int
}

func (f *fakeFetcher) DefaultUnit(ctx context.Context) (*types.AudioUnit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.unit, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func unit(label, participant string, x float64) *types.AudioUnit {
	return &types.AudioUnit{
		ID:            label,
		Audio:         []byte(label),
		ParticipantID: participant,
		Position:      &types.Position{X: x},
	}
}

func newController(fetch Fetcher) (*Controller, *fakeOutput) {
	out := newFakeOutput()
	return New(out, labelDecoder{o: out}, fetch), out
}

func TestEnqueueDoesNotPlay(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	if out.playCount() != 0 {
		t.Fatal("enqueue must not start playback")
	}
	if st := c.State(); st.Queued != 1 || st.Playing {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestPauseAndResumeAtOffset(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))

	c.OnSpeechStart(context.Background())
	v := out.last()
	if v == nil || v.label != "one" || v.offset != 0 {
		t.Fatalf("expected one from 0, got %+v", v)
	}
	v.stopAt = 420
	c.OnSpeechEnd()
	if !v.stopped {
		t.Fatal("speech end should stop the voice")
	}
	st := c.State()
	if st.Playing || st.Current != "one" || st.Offset != 420 {
		t.Fatalf("unexpected paused state %+v", st)
	}

	c.OnSpeechStart(context.Background())
	r := out.last()
	if r == v || r.label != "one" || r.offset != 420 {
		t.Fatalf("expected resume of one at 420, got %+v", r)
	}
}

func TestQueuedUnitPreemptsPaused(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.OnSpeechStart(context.Background())
	out.last().stopAt = 100
	c.OnSpeechEnd()

	c.Enqueue(unit("two", "b", 1))
	c.OnSpeechStart(context.Background())
	v := out.last()
	if v.label != "two" || v.offset != 0 {
		t.Fatalf("expected two from the start, got %+v", v)
	}
	// The pre-empted unit is gone for good.
	v.onEnded()
	if st := c.State(); st.Current != "" || st.Queued != 0 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestNaturalEndChainsWhileSpeaking(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.Enqueue(unit("two", "a", 0))
	c.OnSpeechStart(context.Background())

	out.last().onEnded()
	if v := out.last(); v.label != "two" {
		t.Fatalf("expected two to follow, got %s", v.label)
	}
	out.last().onEnded()
	if st := c.State(); st.Playing || st.Current != "" {
		t.Fatalf("queue should be idle, got %+v", st)
	}
	if out.playCount() != 2 {
		t.Fatalf("expected 2 plays, got %d", out.playCount())
	}
}

func TestStaleEndIgnored(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.Enqueue(unit("two", "a", 0))
	c.OnSpeechStart(context.Background())
	first := out.last()
	first.stopAt = 10
	c.OnSpeechEnd()

	// A late notification from the stopped voice must not advance the queue.
	first.onEnded()
	st := c.State()
	if st.Current != "one" || st.Queued != 1 || st.Offset != 10 {
		t.Fatalf("stale end changed state: %+v", st)
	}

	c.OnSpeechStart(context.Background())
	second := out.last()
	first.onEnded()
	if out.last() != second {
		t.Fatal("stale end started another voice")
	}
}

func TestRepeatedSpeechStartIgnored(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.OnSpeechStart(context.Background())
	c.OnSpeechStart(context.Background())
	if out.playCount() != 1 {
		t.Fatalf("expected a single play, got %d", out.playCount())
	}
}

func TestUnitWithoutPositionRejected(t *testing.T) {
	c, out := newController(nil)
	u := unit("lost", "a", 0)
	u.Position = nil
	c.Enqueue(u)
	c.Enqueue(unit("next", "a", 0))

	c.OnSpeechStart(context.Background())
	if v := out.last(); v == nil || v.label != "next" || out.playCount() != 1 {
		t.Fatalf("expected next to play in place of the rejected unit, got %+v", v)
	}
	if st := c.State(); st.Queued != 0 || st.Current != "next" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestRejectedHeadKeepsPausedUnit(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.OnSpeechStart(context.Background())
	out.last().stopAt = 250
	c.OnSpeechEnd()

	lost := unit("lost", "b", 0)
	lost.Position = nil
	c.Enqueue(lost)
	c.Enqueue(unit("corrupt", "b", 0))
	c.OnSpeechStart(context.Background())

	v := out.last()
	if v.label != "one" || v.offset != 250 {
		t.Fatalf("expected one to resume at 250, got %+v", v)
	}
	if st := c.State(); st.Queued != 0 || st.Current != "one" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestChainSkipsRejectedUnits(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", 0))
	c.Enqueue(unit("corrupt", "a", 0))
	c.Enqueue(unit("three", "a", 0))
	c.OnSpeechStart(context.Background())

	out.last().onEnded()
	if v := out.last(); v.label != "three" {
		t.Fatalf("expected three after the corrupt unit, got %s", v.label)
	}
}

func TestUndecodableUnitDropped(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("corrupt", "a", 0))
	c.OnSpeechStart(context.Background())
	if out.playCount() != 0 || c.State().Queued != 0 {
		t.Fatal("corrupt unit should be dropped")
	}
}

func TestPannerPerParticipantKeepsFirstPosition(t *testing.T) {
	c, out := newController(nil)
	c.Enqueue(unit("one", "a", -2))
	c.Enqueue(unit("two", "a", 5))
	c.Enqueue(unit("three", "b", 2))
	c.OnSpeechStart(context.Background())
	out.last().onEnded()
	out.last().onEnded()

	if len(out.created) != 2 {
		t.Fatalf("expected 2 panners, got %d", len(out.created))
	}
	if out.created[0].X != -2 || out.created[1].X != 2 {
		t.Fatalf("unexpected panner positions %+v", out.created)
	}
}

func TestBootstrapOnFirstStartOnly(t *testing.T) {
	f := &fakeFetcher{unit: unit("intro", "narrator", 0)}
	c, out := newController(f)

	c.OnSpeechStart(context.Background())
	c.Wait()
	if v := out.last(); v == nil || v.label != "intro" {
		t.Fatalf("expected bootstrap audio, got %+v", v)
	}
	out.last().onEnded()
	c.OnSpeechEnd()
	c.OnSpeechStart(context.Background())
	c.Wait()
	if n := f.callCount(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	if !c.State().Bootstrapped {
		t.Fatal("state should report bootstrap done")
	}
}

func TestBootstrapSkippedWhenQueued(t *testing.T) {
	f := &fakeFetcher{unit: unit("intro", "narrator", 0)}
	c, out := newController(f)
	c.Enqueue(unit("one", "a", 0))
	c.OnSpeechStart(context.Background())
	c.Wait()
	if out.last().label != "one" {
		t.Fatalf("queued audio should play, got %s", out.last().label)
	}
	if f.callCount() != 0 {
		t.Fatal("no fetch expected with audio queued")
	}
}

func TestBootstrapFailureIsQuiet(t *testing.T) {
	f := &fakeFetcher{err: errors.New("404")}
	c, out := newController(f)
	c.OnSpeechStart(context.Background())
	c.Wait()
	if out.playCount() != 0 {
		t.Fatal("nothing should play")
	}
	c.OnSpeechEnd()
	c.OnSpeechStart(context.Background())
	c.Wait()
	if n := f.callCount(); n != 1 {
		t.Fatalf("fetch must not be retried, got %d", n)
	}
}

func TestSpeechEndNotHeldByBootstrapFetch(t *testing.T) {
	f := &fakeFetcher{unit: unit("intro", "narrator", 0), block: make(chan struct{})}
	c, out := newController(f)

	c.OnSpeechStart(context.Background())
	ended := make(chan struct{})
	go func() {
		c.OnSpeechEnd()
		close(ended)
	}()
	select {
	case <-ended:
	case <-time.After(time.Second):
		close(f.block)
		t.Fatal("speech end waited for the default audio fetch")
	}
	if c.State().Speaking {
		t.Fatal("speech end should clear speaking")
	}

	close(f.block)
	c.Wait()
	if out.playCount() != 0 {
		t.Fatal("default audio must not start after speech ended")
	}
	if st := c.State(); st.Queued != 1 {
		t.Fatalf("default audio should wait for the next start, got %+v", st)
	}
	c.OnSpeechStart(context.Background())
	if v := out.last(); v == nil || v.label != "intro" {
		t.Fatalf("expected intro on the next start, got %+v", v)
	}
}

func TestBootstrapDroppedWhenReplyArrives(t *testing.T) {
	f := &fakeFetcher{unit: unit("intro", "narrator", 0), block: make(chan struct{})}
	c, out := newController(f)

	c.OnSpeechStart(context.Background())
	c.OnSpeechEnd()
	c.Enqueue(unit("reply", "a", 0))
	close(f.block)
	c.Wait()

	c.OnSpeechStart(context.Background())
	if v := out.last(); v == nil || v.label != "reply" {
		t.Fatalf("expected reply, got %+v", v)
	}
	if st := c.State(); st.Queued != 0 {
		t.Fatalf("default audio should be dropped, got %+v", st)
	}
}

// heldEnds routes voices through a real Mixer but holds their ended
// callbacks until the test releases them.
type heldEnds struct {
	m     *Mixer
	ended chan func()
}

func (h *heldEnds) NewPanner(pos types.Position) (Panner, error) {
	p, err := h.m.NewPanner(pos)
	if err != nil {
		return nil, err
	}
	return heldPanner{p: p, ended: h.ended}, nil
}

func (h *heldEnds) release(t *testing.T) {
	t.Helper()
	select {
	case cb := <-h.ended:
		cb()
	case <-time.After(time.Second):
		t.Fatal("ended callback never fired")
	}
}

type heldPanner struct {
	p     Panner
	ended chan func()
}

func (p heldPanner) Play(buf *Buffer, offset int, onEnded func()) (Voice, error) {
	return p.p.Play(buf, offset, func() { p.ended <- onEnded })
}

type silenceDecoder struct{ n, rate int }

func (d silenceDecoder) Decode([]byte) (*Buffer, error) {
	return &Buffer{Samples: make([]float32, d.n), Rate: d.rate}, nil
}

func TestFinishedUnitNotReplayedAfterPause(t *testing.T) {
	m := NewMixer(16000)
	out := &heldEnds{m: m, ended: make(chan func(), 4)}
	c := New(out, silenceDecoder{n: 100, rate: 16000}, nil)
	c.Enqueue(unit("one", "a", 0))

	c.OnSpeechStart(context.Background())
	m.Fill(make([]float32, 2*200))
	// Speech ends before the ended callback reaches the controller.
	c.OnSpeechEnd()
	if st := c.State(); st.Current != "" {
		t.Fatalf("fully played unit should be finished, got %+v", st)
	}

	c.OnSpeechStart(context.Background())
	if m.Active() != 0 {
		t.Fatal("finished unit was played again")
	}
	out.release(t)
	if st := c.State(); st.Playing || st.Current != "" || st.Queued != 0 {
		t.Fatalf("late ended callback changed state: %+v", st)
	}
}
