// Package store holds the ordered conversation transcript and applies
// stream reassembly to it.
//
// The store is process-scoped with an explicit New/Close lifecycle. All
// mutation goes through its methods; internal collections never escape.
// Lookups by stream id go through an identifier-keyed index, not a scan,
// so append/end stay cheap as history grows.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/types"
)

// Sentinel errors for reassembly failures.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrStreamExists indicates a begin for a stream id that already has a message.
	ErrStreamExists = errors.New("stream already has a message")

	// ErrStreamUnknown indicates a delta for a stream id with no message.
	ErrStreamUnknown = errors.New("unknown stream")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("store closed")
)

// Store is the ordered collection of transcript messages plus the
// transient set of actors currently streaming.
type Store struct {
	logger *log.Logger

	mu sync.Mutex
	// messages is the ordered transcript, oldest first.
	messages []*types.TypedMessage
	// byStream indexes in-progress and finished actor messages by stream id.
	byStream map[string]*types.TypedMessage
	// streaming tracks which actors have an open stream, for UI indicators.
	streaming map[string]string // actor -> stream id
	closed    bool
}

// New creates an empty store.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{
		logger:    logger,
		byStream:  make(map[string]*types.TypedMessage),
		streaming: make(map[string]string),
	}
}

// Close tears the store down. Subsequent mutations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.messages = nil
	s.byStream = make(map[string]*types.TypedMessage)
	s.streaming = make(map[string]string)
	return nil
}

// AppendHuman appends a human-authored message with content fixed at
// creation, and returns a copy of the stored entry.
func (s *Store) AppendHuman(content string) (types.TypedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.TypedMessage{}, ErrClosed
	}

	msg := &types.TypedMessage{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Content:   content,
		Origin:    types.OriginHuman,
	}
	s.messages = append(s.messages, msg)
	return *msg, nil
}

// BeginStream creates an empty streaming message for the actor at the end
// of the transcript. Fails with ErrStreamExists if the stream id already
// has a message; the caller treats that as a diagnostic, not a fault.
func (s *Store) BeginStream(actor, streamID, requestID string) (types.TypedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.TypedMessage{}, ErrClosed
	}
	if _, exists := s.byStream[streamID]; exists {
		s.logger.Warn("begin for existing stream", map[string]any{
			"actor":     actor,
			"stream_id": streamID,
		})
		return types.TypedMessage{}, fmt.Errorf("stream %s: %w", streamID, ErrStreamExists)
	}

	msg := &types.TypedMessage{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now(),
		Origin:      actor,
		IsStreaming: true,
		StreamID:    streamID,
		RequestID:   requestID,
	}
	s.messages = append(s.messages, msg)
	s.byStream[streamID] = msg
	s.streaming[actor] = streamID
	return *msg, nil
}

// AppendDelta concatenates delta onto the message backing streamID.
// Unknown stream ids are a diagnostic no-op returning ErrStreamUnknown —
// the producer may send a chunk after the local state already closed the
// stream.
func (s *Store) AppendDelta(streamID, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	msg, ok := s.byStream[streamID]
	if !ok || !msg.IsStreaming {
		s.logger.Debug("delta for unknown or closed stream", map[string]any{
			"stream_id": streamID,
		})
		return fmt.Errorf("stream %s: %w", streamID, ErrStreamUnknown)
	}

	msg.Content += delta
	return nil
}

// EndStream marks the message backing streamID as no longer streaming.
// Idempotent; ending an unknown or already-ended stream is a no-op.
func (s *Store) EndStream(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	msg, ok := s.byStream[streamID]
	if !ok {
		return
	}
	if msg.IsStreaming {
		msg.IsStreaming = false
		delete(s.streaming, msg.Origin)
	}
}

// Message returns a copy of the message backing streamID.
func (s *Store) Message(streamID string) (types.TypedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byStream[streamID]
	if !ok {
		return types.TypedMessage{}, false
	}
	return *msg, true
}

// History returns a snapshot of the transcript in order. The copies are
// safe for the caller to hold across further mutation.
func (s *Store) History() []types.TypedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.TypedMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, *msg)
	}
	return out
}

// ChatHistory returns the transcript as role/content entries for use as
// start request context. Messages still streaming are excluded; their
// content is not final.
func (s *Store) ChatHistory() []types.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ChatMessage, 0, len(s.messages))
	for _, msg := range s.messages {
		if msg.IsStreaming {
			continue
		}
		out = append(out, msg.ChatMessage())
	}
	return out
}

// StreamingActors returns the set of actors with an open stream.
func (s *Store) StreamingActors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.streaming))
	for actor := range s.streaming {
		out = append(out, actor)
	}
	return out
}

// Len returns the transcript length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Evict removes finalized messages created before cutoff and returns how
// many were removed. Messages with IsStreaming true are never removed,
// regardless of age. Cost is linear in transcript size.
func (s *Store) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	kept := s.messages[:0]
	removed := 0
	for _, msg := range s.messages {
		if !msg.IsStreaming && msg.CreatedAt.Before(cutoff) {
			if msg.StreamID != "" {
				delete(s.byStream, msg.StreamID)
			}
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	// Release references beyond the kept prefix.
	for i := len(kept); i < len(s.messages); i++ {
		s.messages[i] = nil
	}
	s.messages = kept
	return removed
}
