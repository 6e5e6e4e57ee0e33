package types

import "time"

// OriginHuman marks a transcript entry authored by the local user.
// Any other origin value is the name of the actor that produced it.
const OriginHuman = "human"

// TypedMessage is one persisted transcript entry.
//
// Human messages have their content fixed at creation. Actor messages are
// created empty when their stream opens and grow monotonically as chunks
// are applied; once IsStreaming drops to false the content is final.
type TypedMessage struct {
	// ID is the message identifier.
	ID string `json:"id"`
	// CreatedAt is the creation time.
	CreatedAt time.Time `json:"createdAt"`
	// Content is the message text.
	Content string `json:"content"`
	// Origin is OriginHuman or the producing actor's name.
	Origin string `json:"origin"`
	// IsStreaming is true while the backing stream is still open.
	IsStreaming bool `json:"isStreaming"`

	// StreamID is the backing stream for actor messages, empty for human ones.
	StreamID string `json:"streamId,omitempty"`
	// RequestID is the request that opened the backing stream, when known.
	RequestID string `json:"requestId,omitempty"`
}

// ChatMessage converts a transcript entry into the role/content shape
// carried in start payloads.
func (m *TypedMessage) ChatMessage() ChatMessage {
	return ChatMessage{Role: m.Origin, Content: m.Content}
}
