package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Direction indicates which side of the connection produced an envelope.
type Direction string

// Direction constants. Event names embed these verbatim.
const (
	DirectionClientToServer Direction = "client-to-server"
	DirectionServerToClient Direction = "server-to-client"
)

// Valid returns true for a recognized direction.
func (d Direction) Valid() bool {
	return d == DirectionClientToServer || d == DirectionServerToClient
}

// Action is the envelope action. Streaming is the only action currently
// defined by the wire contract.
type Action string

// ActionStream is the only defined action.
const ActionStream Action = "stream"

// Modifier qualifies a stream action within the stream lifecycle.
type Modifier string

// Modifier constants.
const (
	ModifierStart Modifier = "start"
	ModifierChunk Modifier = "chunk"
	ModifierEnd   Modifier = "end"
)

// Valid returns true for a recognized modifier.
func (m Modifier) Valid() bool {
	return m == ModifierStart || m == ModifierChunk || m == ModifierEnd
}

// ErrorCode is a coded error carried on envelopes and acks.
// The taxonomy is shared with the producer side of the wire contract.
type ErrorCode string

// Error code constants.
const (
	CodeInvalid      ErrorCode = "E_INVALID"
	CodeUnauthorized ErrorCode = "E_UNAUTHORIZED"
	CodeForbidden    ErrorCode = "E_FORBIDDEN"
	CodeNotFound     ErrorCode = "E_NOT_FOUND"
	CodeConflict     ErrorCode = "E_CONFLICT"
	CodeRateLimited  ErrorCode = "E_RATE_LIMITED"
	CodeTimeout      ErrorCode = "E_TIMEOUT"
	CodeOverflow     ErrorCode = "E_OVERFLOW"
	CodeUnavailable  ErrorCode = "E_UNAVAILABLE"
	CodeInternal     ErrorCode = "E_INTERNAL"
)

// ErrorDetail is the coded error object carried in the envelope `error`
// field and in failure acks.
type ErrorDetail struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the versioned wire frame. All fields use camelCase JSON tags
// to match the producer-side wire format.
//
// streamId is minted only by the producer on acknowledgement of a start
// request, never by the requester. seq is a per-stream sequence starting
// at 1 on the first chunk.
type Envelope struct {
	// V is the protocol version, always ProtocolVersion.
	V string `json:"v"`
	// ID is a globally unique envelope identifier generated by the sender.
	ID string `json:"id"`
	// Ts is the send timestamp in milliseconds since epoch.
	Ts int64 `json:"ts"`

	// RequestID correlates this envelope with a prior request, when present.
	RequestID string `json:"requestId,omitempty"`
	// StreamID identifies the stream this envelope belongs to, when present.
	StreamID string `json:"streamId,omitempty"`
	// Seq is the per-stream sequence number; zero means absent.
	Seq int64 `json:"seq,omitempty"`

	Direction Direction `json:"direction"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Modifier  Modifier  `json:"modifier"`

	// Data is the modifier-specific payload, decoded lazily by the consumer.
	Data json.RawMessage `json:"data"`

	// Error is present only on failure envelopes.
	Error *ErrorDetail `json:"error,omitempty"`
}

// NewEnvelope constructs an outgoing envelope with a fresh id and the
// current timestamp.
func NewEnvelope(direction Direction, actor string, modifier Modifier, data json.RawMessage) *Envelope {
	return &Envelope{
		V:         ProtocolVersion,
		ID:        uuid.New().String(),
		Ts:        time.Now().UnixMilli(),
		Direction: direction,
		Actor:     actor,
		Action:    ActionStream,
		Modifier:  modifier,
		Data:      data,
	}
}

// StartAck is the acknowledgement payload for a stream start request.
// Ok=true carries the minted stream id; Ok=false carries the error.
type StartAck struct {
	Ok        bool         `json:"ok"`
	RequestID string       `json:"requestId,omitempty"`
	StreamID  string       `json:"streamId,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ChatMessage is one prior conversation entry carried in start payloads.
// Role follows the producer contract: "human" for user-authored entries,
// an actor name for generated ones.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StartData is the payload of a start envelope: the user input plus the
// conversation history the producer should condition on.
type StartData struct {
	Input   string        `json:"input"`
	History []ChatMessage `json:"history,omitempty"`
}

// ChunkData is the payload of a chunk envelope: one incremental delta.
type ChunkData struct {
	Delta string `json:"delta"`
}

// EndData is the payload of an end envelope.
type EndData struct {
	// Summary is optional producer-side completion metadata.
	Summary map[string]any `json:"summary,omitempty"`
}
