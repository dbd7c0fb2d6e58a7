package feed

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"chorus/agent/internal/types"
)

func TestHubBroadcastsToSubscriber(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for h.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish(types.Event{ID: "e1", Type: "dispatched", ParticipantID: "sage"})

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got types.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "e1" || got.Type != "dispatched" || got.ParticipantID != "sage" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHubDropsFullSubscriber(t *testing.T) {
	h := NewHub()
	s := &subscriber{out: make(chan []byte, 1)}
	h.subs["slow"] = s
	h.Publish(types.Event{ID: "1"})
	h.Publish(types.Event{ID: "2"})
	if h.Count() != 0 {
		t.Fatal("full subscriber should be dropped")
	}
	if _, ok := <-s.out; !ok {
		t.Fatal("buffered event should still be readable")
	}
	if _, ok := <-s.out; ok {
		t.Fatal("channel should be closed after drop")
	}
}
