package network

import (
	"sync"

	"market-stream/src/models"
)

// ConnectionHandler observes state transitions.
type ConnectionHandler func(event models.ConnectionEvent)

// MessageHandler observes inbound push messages of one kind.
type MessageHandler func(msg models.MInboundMessage)

// -----------------------------------------------------------------------------
// registry is an ordered observer list; handlers run in registration order.
// -----------------------------------------------------------------------------

type registry[T any] struct {
	mu      sync.RWMutex
	nextID  int
	entries []registryEntry[T]
}

type registryEntry[T any] struct {
	id      int
	handler T
}

// add appends h and returns a func that removes it again
func (r *registry[T]) add(h T) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, registryEntry[T]{id: id, handler: h})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.entries {
			if e.id == id {
				r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
				return
			}
		}
	}
}

// snapshot copies the handlers so emit runs without holding the lock
func (r *registry[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.handler
	}
	return out
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// OnConnection registers h for state transitions
func (m *ConnectionManager) OnConnection(h ConnectionHandler) func() {
	return m.onConnection.add(h)
}

// OnData registers h for data_update and initial_data messages
func (m *ConnectionManager) OnData(h MessageHandler) func() {
	return m.onData.add(h)
}

// OnError registers h for server error messages
func (m *ConnectionManager) OnError(h MessageHandler) func() {
	return m.onError.add(h)
}

// OnAck registers h for subscription and unsubscription acknowledgements
func (m *ConnectionManager) OnAck(h MessageHandler) func() {
	return m.onAck.add(h)
}

// -----------------------------------------------------------------------------
// Emission
// -----------------------------------------------------------------------------

func (m *ConnectionManager) emitConnection(event models.ConnectionEvent) {
	for _, h := range m.onConnection.snapshot() {
		m.callSafely("connection handler", func() { h(event) })
	}
}

func (m *ConnectionManager) emitMessage(r *registry[MessageHandler], kind string, msg models.MInboundMessage) {
	for _, h := range r.snapshot() {
		m.callSafely(kind+" handler", func() { h(msg) })
	}
}

func (m *ConnectionManager) callSafely(context string, fn func()) {
	defer m.errs.Recover(context)
	fn()
}
