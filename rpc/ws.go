package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"vedex/core"
	"vedex/core/events"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 256
)

// StreamEvent is one committed event as pushed to websocket clients.
type StreamEvent struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch    chan StreamEvent
	types map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// EventHub fans committed events out to stream subscribers. Slow
// subscribers drop events rather than stall the node.
type EventHub struct {
	seq     atomic.Uint64
	dropped atomic.Uint64

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	payload := core.Payload(evt)
	if payload == nil {
		return
	}
	msg := StreamEvent{Seq: h.seq.Add(1), Type: payload.Type, Attributes: payload.Attributes}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(msg.Type) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber for the given event types, all types when
// none are named. The returned cancel func must be called once.
func (h *EventHub) Subscribe(types []string) (<-chan StreamEvent, func()) {
	sub := &subscriber{ch: make(chan StreamEvent, subscriberBuffer), types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *EventHub) Dropped() uint64 { return h.dropped.Load() }

// Close ends every subscription.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	var types []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := s.hub.Subscribe(types)
	defer cancel()
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan StreamEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt StreamEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
