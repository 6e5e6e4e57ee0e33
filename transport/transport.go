// Package transport defines the duplex transport boundary the stream
// engine consumes.
//
// The transport itself — connect/reconnect, heartbeats, transport
// selection — is an external collaborator. The engine only needs named
// event emission with optional acknowledgement callbacks, and named event
// subscription. Adapters in the subpackages realize this boundary over
// concrete duplex carriers; the engine never sees past it.
package transport

// AckFunc receives the raw acknowledgement payload for an emitted event.
// The transport invokes it at most once.
type AckFunc func(payload []byte)

// Handler receives the raw payload of an incoming named event.
type Handler func(payload []byte)

// Transport is the duplex boundary. Implementations are assumed already
// connected and reconnect-managed.
//
// Emit sends a named event. When ack is non-nil, the implementation
// delivers the remote acknowledgement payload to it; an ack that never
// arrives is the caller's problem (the engine guards with its own timer).
//
// On registers the handler for a named event, replacing any previous
// handler for that name. Handlers for the same transport are invoked
// sequentially, never concurrently with each other.
type Transport interface {
	Emit(event string, payload []byte, ack AckFunc) error
	On(event string, handler Handler)

	// Close tears the transport down. In-flight acks are dropped.
	Close() error
}
