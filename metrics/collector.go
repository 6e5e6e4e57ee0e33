// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters for one client session. It is a leaf
// package with no internal dependencies; the engine and sweeper record
// into it and surfaces read it via Snapshot.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Stream lifecycle
	StreamsStarted   int64
	StreamsCompleted int64
	StreamsRefused   int64 // start refused locally (actor busy)
	StreamsFailed    int64 // failure ack or producer error
	StreamsTimedOut  int64 // acknowledgement timeout
	StreamsAborted   int64 // sequence violation or disconnect

	// Chunk handling
	ChunksApplied  int64
	ChunksRejected int64 // unknown/stale stream id or bad sequence
	DecodeErrors   int64

	// Transcript
	MessagesEvicted int64

	// Adapter publishing
	PublishSuccess int64
	PublishFailure int64

	// Dimensions (informational, set at construction)
	SessionID string
	Transport string
}

// Collector accumulates metrics during a session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	streamsStarted   int64
	streamsCompleted int64
	streamsRefused   int64
	streamsFailed    int64
	streamsTimedOut  int64
	streamsAborted   int64

	chunksApplied  int64
	chunksRejected int64
	decodeErrors   int64

	messagesEvicted int64

	publishSuccess int64
	publishFailure int64

	sessionID string
	transport string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, transport string) *Collector {
	return &Collector{
		sessionID: sessionID,
		transport: transport,
	}
}

// --- Stream lifecycle ---

// IncStreamStarted records an acknowledged stream open.
func (c *Collector) IncStreamStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsStarted++
	c.mu.Unlock()
}

// IncStreamCompleted records a stream that ended normally.
func (c *Collector) IncStreamCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsCompleted++
	c.mu.Unlock()
}

// IncStreamRefused records a start refused locally because the actor was busy.
func (c *Collector) IncStreamRefused() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsRefused++
	c.mu.Unlock()
}

// IncStreamFailed records a failure acknowledgement or producer error.
func (c *Collector) IncStreamFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsFailed++
	c.mu.Unlock()
}

// IncStreamTimedOut records an acknowledgement timeout.
func (c *Collector) IncStreamTimedOut() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsTimedOut++
	c.mu.Unlock()
}

// IncStreamAborted records a stream abandoned mid-flight (sequence
// violation or transport disconnect).
func (c *Collector) IncStreamAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsAborted++
	c.mu.Unlock()
}

// --- Chunk handling ---

// IncChunkApplied records a chunk applied to the transcript.
func (c *Collector) IncChunkApplied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksApplied++
	c.mu.Unlock()
}

// IncChunkRejected records a chunk rejected before application.
func (c *Collector) IncChunkRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksRejected++
	c.mu.Unlock()
}

// IncDecodeErrors records an undecodable incoming envelope.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// --- Transcript ---

// AddMessagesEvicted records messages removed by the sweeper.
func (c *Collector) AddMessagesEvicted(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesEvicted += n
	c.mu.Unlock()
}

// --- Adapter publishing ---

// IncPublishSuccess records a successful adapter publish.
func (c *Collector) IncPublishSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishSuccess++
	c.mu.Unlock()
}

// IncPublishFailure records a failed adapter publish.
func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.publishFailure++
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
// Nil-receiver safe: returns a zero snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		StreamsStarted:   c.streamsStarted,
		StreamsCompleted: c.streamsCompleted,
		StreamsRefused:   c.streamsRefused,
		StreamsFailed:    c.streamsFailed,
		StreamsTimedOut:  c.streamsTimedOut,
		StreamsAborted:   c.streamsAborted,
		ChunksApplied:    c.chunksApplied,
		ChunksRejected:   c.chunksRejected,
		DecodeErrors:     c.decodeErrors,
		MessagesEvicted:  c.messagesEvicted,
		PublishSuccess:   c.publishSuccess,
		PublishFailure:   c.publishFailure,
		SessionID:        c.sessionID,
		Transport:        c.transport,
	}
}
