// Package feed streams journal events to websocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"chorus/agent/internal/logging"
	"chorus/agent/internal/types"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

type subscriber struct {
	conn *ws.Conn
	out  chan []byte
}

// Hub fans events out to every connected subscriber. A subscriber whose
// buffer is full is disconnected rather than slowing the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*subscriber
	log  zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*subscriber), log: logging.Component("feed")}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish implements events.Publisher.
func (h *Hub) Publish(evt types.Event) {
	b, err := json.Marshal(evt)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		select {
		case s.out <- b:
		default:
			delete(h.subs, id)
			close(s.out)
			metricDropped.Inc()
			h.log.Warn().Str("subscriber", id).Msg("slow feed subscriber dropped")
		}
	}
	metricPublished.Inc()
}

func (h *Hub) add(c *ws.Conn) (string, *subscriber) {
	id := uuid.NewString()
	s := &subscriber{conn: c, out: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[id] = s
	n := len(h.subs)
	h.mu.Unlock()
	gaugeSubscribers.Set(float64(n))
	return id, s
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.out)
	}
	n := len(h.subs)
	h.mu.Unlock()
	gaugeSubscribers.Set(float64(n))
}

// ServeHTTP upgrades to a websocket and streams events until either side
// goes away. Inbound messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("ws accept")
		return
	}
	id, s := h.add(c)
	h.log.Info().Str("subscriber", id).Msg("feed subscriber connected")

	ctx := c.CloseRead(r.Context())
	defer func() {
		h.remove(id)
		h.log.Info().Str("subscriber", id).Msg("feed subscriber disconnected")
	}()
	for {
		select {
		case <-ctx.Done():
			_ = c.Close(ws.StatusNormalClosure, "done")
			return
		case b, ok := <-s.out:
			if !ok {
				_ = c.Close(ws.StatusPolicyViolation, "slow consumer")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, ws.MessageText, b)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
