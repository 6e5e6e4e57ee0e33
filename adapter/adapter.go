// Package adapter defines the outbound notification boundary.
//
// Adapters publish finalized transcript messages to downstream systems
// (dashboards, archival consumers). The engine owns adapter lifecycle and
// publishes asynchronously; a failed publish never disturbs the
// transcript or the stream lifecycle.
package adapter

import "context"

// EventTypeMessageFinalized is the event_type value for all events
// published through this boundary.
const EventTypeMessageFinalized = "message_finalized"

// MessageFinalizedEvent is the payload published when a streamed message
// reaches its final content, or when a human message is recorded.
type MessageFinalizedEvent struct {
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"` // always "message_finalized"
	MessageID string `json:"message_id"`
	Origin    string `json:"origin"`
	Content   string `json:"content"`
	StreamID  string `json:"stream_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"` // ISO 8601
	// Aborted is true when the stream was abandoned and the content is
	// the retained partial rather than a producer-completed message.
	Aborted bool `json:"aborted,omitempty"`
}

// Adapter publishes finalized messages to a downstream system.
type Adapter interface {
	// Publish sends one finalized-message event downstream.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MessageFinalizedEvent) error

	// Close releases adapter resources.
	Close() error
}
