package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pithecene-io/chorus/adapter"
	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/metrics"
	"github.com/pithecene-io/chorus/store"
	"github.com/pithecene-io/chorus/transport"
	"github.com/pithecene-io/chorus/types"
	"github.com/pithecene-io/chorus/wire"
)

// DefaultAckTimeout bounds the wait for a start acknowledgement.
const DefaultAckTimeout = 5 * time.Second

// adapterPublishTimeout bounds one asynchronous adapter publish.
const adapterPublishTimeout = 30 * time.Second

// FailureFunc receives actor-scoped lifecycle failures (timeout, refusal,
// disconnect, producer error) for the UI layer to display. Called outside
// the engine lock; implementations may call back into the engine.
type FailureFunc func(actor string, detail *types.ErrorDetail)

// Config configures the engine.
type Config struct {
	// AckTimeout bounds the wait for a start acknowledgement
	// (default DefaultAckTimeout).
	AckTimeout time.Duration
	// OnFailure, when set, receives actor-scoped lifecycle failures.
	OnFailure FailureFunc
	// Adapter, when set, receives finalized messages asynchronously.
	Adapter adapter.Adapter
}

// Engine correlates start acknowledgements, runs the per-actor stream
// lifecycle, and routes chunk and end events into the store.
//
// Transport handlers and timer callbacks are the only entry points that
// mutate lifecycle state; each runs the shared mutex, so transitions for
// one engine never interleave. Distinct actors stream concurrently —
// every operation is keyed by (actor, streamId), so interleaved chunk
// arrival cannot cross message buffers.
type Engine struct {
	transport transport.Transport
	store     *store.Store
	session   *types.SessionMeta
	logger    *log.Logger
	collector *metrics.Collector
	config    Config

	mu     sync.Mutex
	actors map[string]*actorStream
	closed bool

	// publishWG tracks in-flight adapter publishes for clean teardown.
	publishWG sync.WaitGroup
}

// New creates an engine over an already-connected transport.
func New(
	tr transport.Transport,
	st *store.Store,
	session *types.SessionMeta,
	config Config,
	logger *log.Logger,
	collector *metrics.Collector,
) *Engine {
	if config.AckTimeout <= 0 {
		config.AckTimeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Engine{
		transport: tr,
		store:     st,
		session:   session,
		logger:    logger,
		collector: collector,
		config:    config,
		actors:    make(map[string]*actorStream),
	}
}

// RegisterActor subscribes the generic chunk and end handlers for the
// actor's event names and creates its idle stream slot. Idempotent.
// Adding a producer is a registration call, not new handler code.
func (e *Engine) RegisterActor(actor string) {
	e.mu.Lock()
	if _, exists := e.actors[actor]; exists {
		e.mu.Unlock()
		return
	}
	e.actors[actor] = &actorStream{actor: actor, state: StateIdle}
	e.mu.Unlock()

	chunkEvent := wire.StreamEvent(types.DirectionServerToClient, actor, types.ModifierChunk)
	endEvent := wire.StreamEvent(types.DirectionServerToClient, actor, types.ModifierEnd)

	e.transport.On(chunkEvent.String(), func(payload []byte) {
		e.handleChunk(actor, payload)
	})
	e.transport.On(endEvent.String(), func(payload []byte) {
		e.handleEnd(actor, payload)
	})

	e.logger.Debug("actor registered", map[string]any{"actor": actor})
}

// Actors returns the registered actor names.
func (e *Engine) Actors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.actors))
	for actor := range e.actors {
		out = append(out, actor)
	}
	return out
}

// ActorState returns the lifecycle state of an actor's stream slot.
// Unregistered actors are idle.
func (e *Engine) ActorState(actor string) StreamState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.actors[actor]; ok {
		return s.state
	}
	return StateIdle
}

// Start emits a stream start request for the actor, carrying the user
// input and the finalized transcript as context. The returned requestId
// correlates the eventual acknowledgement.
//
// A start for an actor already awaiting an ack or streaming is refused
// locally with E_CONFLICT and never transmitted.
func (e *Engine) Start(actor, input string) (string, error) {
	e.RegisterActor(actor)

	data, err := json.Marshal(types.StartData{
		Input:   input,
		History: e.store.ChatHistory(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal start data: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", newStreamError(types.CodeUnavailable, actor, "engine closed")
	}

	s := e.actors[actor]
	if s.state != StateIdle {
		e.mu.Unlock()
		e.collector.IncStreamRefused()
		return "", newStreamError(types.CodeConflict, actor,
			fmt.Sprintf("actor already has an active stream (%s)", s.state))
	}

	requestID := uuid.New().String()
	env := types.NewEnvelope(types.DirectionClientToServer, actor, types.ModifierStart, data)
	env.RequestID = requestID

	raw, err := wire.Encode(env)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}

	s.state = StateAwaitingAck
	s.requestID = requestID
	s.ackTimer = time.AfterFunc(e.config.AckTimeout, func() {
		e.handleAckTimeout(actor, requestID)
	})
	e.mu.Unlock()

	event := wire.StreamEvent(types.DirectionClientToServer, actor, types.ModifierStart)
	err = e.transport.Emit(event.String(), raw, func(payload []byte) {
		e.handleAck(actor, requestID, payload)
	})
	if err != nil {
		e.mu.Lock()
		if s.state == StateAwaitingAck && s.requestID == requestID {
			s.reset()
		}
		e.mu.Unlock()
		return "", &StreamError{
			Code:  types.CodeUnavailable,
			Actor: actor,
			Msg:   "transport emit failed",
			Err:   err,
		}
	}

	e.logger.Info("stream start emitted", map[string]any{
		"actor":      actor,
		"request_id": requestID,
	})
	return requestID, nil
}

// AppendHuman records a human-authored message and notifies the adapter.
func (e *Engine) AppendHuman(content string) (types.TypedMessage, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return types.TypedMessage{}, newStreamError(types.CodeUnavailable, types.OriginHuman, "engine closed")
	}
	e.mu.Unlock()

	msg, err := e.store.AppendHuman(content)
	if err != nil {
		return types.TypedMessage{}, err
	}
	e.publishFinalized(msg, false)
	return msg, nil
}

// handleAck processes a start acknowledgement. Late acks — after timeout,
// disconnect, or a newer request — are ignored by requestId match.
func (e *Engine) handleAck(actor, requestID string, payload []byte) {
	ack := wire.DecodeAck(payload)

	e.mu.Lock()
	s := e.actors[actor]
	if s == nil || s.state != StateAwaitingAck || s.requestID != requestID {
		e.mu.Unlock()
		e.logger.Debug("stale acknowledgement ignored", map[string]any{
			"actor":      actor,
			"request_id": requestID,
		})
		return
	}

	if !ack.Ok {
		detail := ack.Error
		s.reset()
		e.mu.Unlock()

		e.collector.IncStreamFailed()
		e.logger.Warn("stream start refused by producer", map[string]any{
			"actor":      actor,
			"request_id": requestID,
			"code":       string(detail.Code),
		})
		e.notifyFailure(actor, detail)
		return
	}

	// The ack answers our request; a mismatched embedded requestId would
	// mean the producer correlated someone else's request.
	if ack.RequestID != "" && ack.RequestID != requestID {
		s.reset()
		e.mu.Unlock()

		e.collector.IncStreamFailed()
		e.notifyFailure(actor, &types.ErrorDetail{
			Code:    types.CodeInvalid,
			Message: fmt.Sprintf("acknowledgement for foreign request %s", ack.RequestID),
		})
		return
	}

	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
	s.state = StateStreaming
	s.streamID = ack.StreamID
	s.lastSeq = 0
	s.accumulated = 0
	e.mu.Unlock()

	if _, err := e.store.BeginStream(actor, ack.StreamID, requestID); err != nil {
		// A colliding stream id means producer state we cannot trust.
		e.mu.Lock()
		s.reset()
		e.mu.Unlock()

		e.collector.IncStreamFailed()
		e.notifyFailure(actor, &types.ErrorDetail{
			Code:    types.CodeInternal,
			Message: fmt.Sprintf("cannot open stream: %v", err),
		})
		return
	}

	e.collector.IncStreamStarted()
	e.logger.Info("stream acknowledged", map[string]any{
		"actor":      actor,
		"request_id": requestID,
		"stream_id":  ack.StreamID,
	})
}

// handleAckTimeout fires when no acknowledgement arrived within the
// bound. The request is abandoned as if an explicit failure had been
// received; nothing was persisted.
func (e *Engine) handleAckTimeout(actor, requestID string) {
	e.mu.Lock()
	s := e.actors[actor]
	if s == nil || s.state != StateAwaitingAck || s.requestID != requestID {
		e.mu.Unlock()
		return
	}
	s.reset()
	e.mu.Unlock()

	e.collector.IncStreamTimedOut()
	e.logger.Warn("acknowledgement timeout", map[string]any{
		"actor":      actor,
		"request_id": requestID,
		"timeout":    e.config.AckTimeout.String(),
	})
	e.notifyFailure(actor, &types.ErrorDetail{
		Code:    types.CodeTimeout,
		Message: fmt.Sprintf("no acknowledgement within %s", e.config.AckTimeout),
	})
}

// handleChunk applies one chunk envelope to the actor's open stream.
// A chunk bearing an unknown or stale streamId, or a sequence that is not
// the expected next value, is rejected and never mutates the transcript.
func (e *Engine) handleChunk(actor string, payload []byte) {
	env, err := wire.Decode(payload)
	if err != nil {
		e.collector.IncDecodeErrors()
		e.logger.Warn("undecodable chunk envelope", map[string]any{
			"actor": actor,
			"error": err.Error(),
		})
		return
	}
	if env.Modifier != types.ModifierChunk || env.StreamID == "" {
		e.collector.IncChunkRejected()
		e.logger.Warn("chunk event with non-chunk envelope", map[string]any{
			"actor":    actor,
			"modifier": string(env.Modifier),
		})
		return
	}

	var data types.ChunkData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		e.collector.IncDecodeErrors()
		e.logger.Warn("undecodable chunk data", map[string]any{
			"actor": actor,
			"error": err.Error(),
		})
		return
	}

	e.mu.Lock()
	s := e.actors[actor]
	if s == nil || s.state != StateStreaming || s.streamID != env.StreamID {
		e.mu.Unlock()
		e.collector.IncChunkRejected()
		e.logger.Warn("chunk for unknown or stale stream", map[string]any{
			"actor":     actor,
			"stream_id": env.StreamID,
		})
		return
	}

	if env.Seq != s.lastSeq+1 {
		// Sequence violation: the stream can no longer be trusted to
		// reassemble exactly, so abort rather than guess. Accumulated
		// content is retained.
		expected := s.lastSeq + 1
		streamID := s.streamID
		s.reset()
		e.mu.Unlock()

		e.store.EndStream(streamID)
		e.collector.IncChunkRejected()
		e.collector.IncStreamAborted()
		e.logger.Error("sequence violation, aborting stream", map[string]any{
			"actor":     actor,
			"stream_id": streamID,
			"expected":  expected,
			"got":       env.Seq,
		})
		e.notifyFailure(actor, &types.ErrorDetail{
			Code:    types.CodeInvalid,
			Message: fmt.Sprintf("chunk sequence %d, expected %d", env.Seq, expected),
		})
		if msg, ok := e.store.Message(streamID); ok {
			e.publishFinalized(msg, true)
		}
		return
	}

	s.lastSeq = env.Seq
	s.accumulated += len(data.Delta)
	streamID := s.streamID
	e.mu.Unlock()

	if err := e.store.AppendDelta(streamID, data.Delta); err != nil {
		e.collector.IncChunkRejected()
		e.logger.Warn("delta not applied", map[string]any{
			"actor":     actor,
			"stream_id": streamID,
			"error":     err.Error(),
		})
		return
	}
	e.collector.IncChunkApplied()
}

// handleEnd finalizes the actor's open stream and returns the slot to
// idle. Ends for unknown or stale stream ids are rejected.
func (e *Engine) handleEnd(actor string, payload []byte) {
	env, err := wire.Decode(payload)
	if err != nil {
		e.collector.IncDecodeErrors()
		e.logger.Warn("undecodable end envelope", map[string]any{
			"actor": actor,
			"error": err.Error(),
		})
		return
	}
	if env.Modifier != types.ModifierEnd || env.StreamID == "" {
		e.collector.IncChunkRejected()
		e.logger.Warn("end event with non-end envelope", map[string]any{
			"actor":    actor,
			"modifier": string(env.Modifier),
		})
		return
	}

	e.mu.Lock()
	s := e.actors[actor]
	if s == nil || s.state != StateStreaming || s.streamID != env.StreamID {
		e.mu.Unlock()
		e.collector.IncChunkRejected()
		e.logger.Warn("end for unknown or stale stream", map[string]any{
			"actor":     actor,
			"stream_id": env.StreamID,
		})
		return
	}

	streamID := s.streamID
	chunks := s.lastSeq
	s.reset()
	e.mu.Unlock()

	e.store.EndStream(streamID)
	e.collector.IncStreamCompleted()
	e.logger.Info("stream completed", map[string]any{
		"actor":     actor,
		"stream_id": streamID,
		"chunks":    chunks,
	})

	if env.Error != nil {
		e.notifyFailure(actor, env.Error)
	}
	if msg, ok := e.store.Message(streamID); ok {
		e.publishFinalized(msg, false)
	}
}

// Disconnect abandons all in-flight streams after the transport dropped.
// Accumulated partial content is retained as final; there is no resend or
// resume. Stale events re-delivered after a reconnect are rejected
// because every slot has returned to idle.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	type abandoned struct {
		actor    string
		streamID string
	}
	var streaming []abandoned
	var waiting []string

	for actor, s := range e.actors {
		switch s.state {
		case StateStreaming:
			streaming = append(streaming, abandoned{actor: actor, streamID: s.streamID})
			s.reset()
		case StateAwaitingAck:
			waiting = append(waiting, actor)
			s.reset()
		case StateIdle:
		}
	}
	e.mu.Unlock()

	for _, a := range streaming {
		e.store.EndStream(a.streamID)
		e.collector.IncStreamAborted()
		e.logger.Warn("stream abandoned on disconnect", map[string]any{
			"actor":     a.actor,
			"stream_id": a.streamID,
		})
		e.notifyFailure(a.actor, &types.ErrorDetail{
			Code:    types.CodeUnavailable,
			Message: "transport disconnected mid-stream",
		})
		if msg, ok := e.store.Message(a.streamID); ok {
			e.publishFinalized(msg, true)
		}
	}
	for _, actor := range waiting {
		e.collector.IncStreamFailed()
		e.notifyFailure(actor, &types.ErrorDetail{
			Code:    types.CodeUnavailable,
			Message: "transport disconnected before acknowledgement",
		})
	}
}

// Close abandons in-flight streams, waits for pending adapter publishes,
// and releases the adapter. The transport and store are owned by the
// caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.Disconnect()
	e.publishWG.Wait()

	var err error
	if e.config.Adapter != nil {
		err = multierr.Append(err, e.config.Adapter.Close())
	}
	return err
}

// notifyFailure surfaces an actor-scoped failure to the UI layer.
// Must be called without the engine lock held.
func (e *Engine) notifyFailure(actor string, detail *types.ErrorDetail) {
	if e.config.OnFailure == nil || detail == nil {
		return
	}
	e.config.OnFailure(actor, detail)
}

// publishFinalized sends a finalized message to the adapter on its own
// goroutine. Publish failures are logged and counted, never propagated.
// Registering with the wait group happens under the engine lock so no
// publish can start once Close has begun waiting.
func (e *Engine) publishFinalized(msg types.TypedMessage, aborted bool) {
	if e.config.Adapter == nil {
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.publishWG.Add(1)
	e.mu.Unlock()

	event := &adapter.MessageFinalizedEvent{
		SessionID: e.session.SessionID,
		EventType: adapter.EventTypeMessageFinalized,
		MessageID: msg.ID,
		Origin:    msg.Origin,
		Content:   msg.Content,
		StreamID:  msg.StreamID,
		RequestID: msg.RequestID,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
		Aborted:   aborted,
	}

	go func() {
		defer e.publishWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), adapterPublishTimeout)
		defer cancel()

		if err := e.config.Adapter.Publish(ctx, event); err != nil {
			e.collector.IncPublishFailure()
			if !errors.Is(err, context.Canceled) {
				e.logger.Warn("adapter publish failed", map[string]any{
					"message_id": event.MessageID,
					"error":      err.Error(),
				})
			}
			return
		}
		e.collector.IncPublishSuccess()
	}()
}
