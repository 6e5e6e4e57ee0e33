package transport

import (
	"errors"
	"sync"
)

// Emitted records one Emit call for test assertions.
type Emitted struct {
	Event   string
	Payload []byte
	// Ack is the ack callback passed by the caller, nil when none.
	Ack AckFunc
}

// Stub is a test transport that records emits and lets tests inject
// incoming events. It never talks to a network.
//
// Acks are delivered manually: tests inspect Emits() and invoke the
// recorded Ack (or not, to exercise timeout paths).
type Stub struct {
	mu sync.Mutex

	emits    []Emitted
	handlers map[string]Handler
	closed   bool

	// ErrorOnEmit, if non-nil, is returned by Emit.
	ErrorOnEmit error
}

// NewStub creates a stub transport for testing.
func NewStub() *Stub {
	return &Stub{handlers: make(map[string]Handler)}
}

// Emit records the event.
func (s *Stub) Emit(event string, payload []byte, ack AckFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("transport closed")
	}
	if s.ErrorOnEmit != nil {
		return s.ErrorOnEmit
	}

	s.emits = append(s.emits, Emitted{Event: event, Payload: payload, Ack: ack})
	return nil
}

// On registers a handler.
func (s *Stub) On(event string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = handler
}

// Close marks the transport closed.
func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Emits returns a snapshot of recorded Emit calls.
func (s *Stub) Emits() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Emitted, len(s.emits))
	copy(out, s.emits)
	return out
}

// LastEmit returns the most recent Emit call, or false when none happened.
func (s *Stub) LastEmit() (Emitted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.emits) == 0 {
		return Emitted{}, false
	}
	return s.emits[len(s.emits)-1], true
}

// Deliver injects an incoming event, invoking the registered handler
// synchronously. Unhandled events are dropped, matching a transport that
// was never asked to subscribe.
func (s *Stub) Deliver(event string, payload []byte) bool {
	s.mu.Lock()
	handler := s.handlers[event]
	s.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(payload)
	return true
}

// Handles returns true if a handler is registered for the event.
func (s *Stub) Handles(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[event] != nil
}

// Verify Stub implements the transport boundary.
var _ Transport = (*Stub)(nil)
