package engine

import "time"

// StreamState is the lifecycle state of one actor's stream slot.
type StreamState int

// Stream lifecycle states.
const (
	// StateIdle means no request is outstanding for the actor.
	StateIdle StreamState = iota
	// StateAwaitingAck means a start was emitted and its acknowledgement
	// has not yet arrived.
	StateAwaitingAck
	// StateStreaming means the stream is open and chunks are being applied.
	StateStreaming
)

// String returns the state name for diagnostics.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// actorStream is the per-actor stream slot, owned exclusively by the
// engine. At most one stream per actor is AwaitingAck or Streaming at any
// instant; the slot returns to idle between streams.
//
// All fields are guarded by the engine mutex.
type actorStream struct {
	actor string
	state StreamState

	// requestID is the locally minted correlation id, set while a
	// request is outstanding.
	requestID string
	// streamID is the producer-minted stream identifier, set while
	// streaming.
	streamID string
	// lastSeq is the last sequence number applied; chunks must arrive
	// with seq == lastSeq+1.
	lastSeq int64
	// accumulated is the total delta bytes applied to the open stream.
	accumulated int

	// ackTimer guards the outstanding acknowledgement; stopped on ack.
	ackTimer *time.Timer
}

// reset returns the slot to idle, dropping stream identity. The engine
// mutex must be held.
func (s *actorStream) reset() {
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	s.state = StateIdle
	s.requestID = ""
	s.streamID = ""
	s.lastSeq = 0
	s.accumulated = 0
}
