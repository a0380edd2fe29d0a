package events

import (
	"sync"

	"vedex/core/types"
)

// Event is a typed state change raised by an engine.
type Event interface {
	EventType() string
}

// Payloader is implemented by events that flatten into a types.Event for
// subscribers outside the engines (metrics, websocket, indexer).
type Payloader interface {
	Event() *types.Event
}

// Emitter receives events from the engines.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events raised inside a call until the call commits. A failed
// call drains and drops them.
type Buffer struct {
	mu      sync.Mutex
	pending []Event
}

// Emit implements Emitter. Nil events are ignored.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Drain returns the buffered events in emission order and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}
