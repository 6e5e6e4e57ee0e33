package pipe

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/transport"
)

// Name is the transport adapter name used in session metadata and config.
const Name = "pipe"

// Pipe realizes the transport boundary over a read/write byte-stream pair.
//
// Outgoing events that request an acknowledgement carry a minted ack id;
// the remote answers with an ack frame bearing the same id. The read loop
// runs on its own goroutine and dispatches handlers sequentially, so
// handlers for one pipe never run concurrently with each other.
type Pipe struct {
	encoder *FrameEncoder
	logger  *log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]transport.Handler
	pending  map[string]transport.AckFunc
	serve    func(*Frame)
	closed   bool

	reader io.Reader
	closer io.Closer
	done   chan struct{}
}

// New creates a pipe transport over the given stream halves and starts
// the read loop. closer may be nil when the caller owns stream teardown.
func New(r io.Reader, w io.Writer, closer io.Closer, logger *log.Logger) *Pipe {
	if logger == nil {
		logger = log.Nop()
	}

	p := &Pipe{
		encoder:  NewFrameEncoder(w),
		logger:   logger,
		handlers: make(map[string]transport.Handler),
		pending:  make(map[string]transport.AckFunc),
		reader:   r,
		closer:   closer,
		done:     make(chan struct{}),
	}

	go p.readLoop(NewFrameDecoder(r))
	return p
}

// Emit writes an event frame. When ack is non-nil the frame carries an
// ack id and the callback fires when the matching ack frame arrives.
func (p *Pipe) Emit(event string, payload []byte, ack transport.AckFunc) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("pipe transport closed")
	}

	frame := &Frame{Type: FrameTypeEvent, Event: event, Payload: payload}
	if ack != nil {
		frame.AckID = uuid.New().String()
		p.pending[frame.AckID] = ack
	}
	p.mu.Unlock()

	p.writeMu.Lock()
	err := p.encoder.WriteFrame(frame)
	p.writeMu.Unlock()

	if err != nil && frame.AckID != "" {
		// The frame never left; the ack will never come.
		p.mu.Lock()
		delete(p.pending, frame.AckID)
		p.mu.Unlock()
	}
	return err
}

// On registers the handler for an event name, replacing any previous one.
func (p *Pipe) On(event string, handler transport.Handler) {
	p.mu.Lock()
	p.handlers[event] = handler
	p.mu.Unlock()
}

// Close stops the read loop and closes the underlying stream. Pending
// acks are dropped. The read loop blocks inside a stream read, so Close
// closes the reader (or the provided closer) to unblock it before
// waiting for the loop to exit.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = make(map[string]transport.AckFunc)
	p.mu.Unlock()

	var err error
	unblocked := false
	if p.closer != nil {
		err = multierr.Append(err, p.closer.Close())
		unblocked = true
	}
	if rc, ok := p.reader.(io.Closer); ok && rc != p.closer {
		err = multierr.Append(err, rc.Close())
		unblocked = true
	}
	if !unblocked {
		// A plain io.Reader cannot be interrupted mid-read; the loop
		// goroutine exits whenever the stream itself ends.
		p.logger.Warn("close with uninterruptible reader, not waiting for read loop", nil)
		return err
	}

	<-p.done
	return err
}

// Done is closed when the read loop exits (EOF, fatal frame error, or Close).
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// readLoop reads frames until EOF or a fatal frame error.
// Non-fatal decode errors are logged and skipped; the length prefix keeps
// the stream position recoverable for those.
func (p *Pipe) readLoop(decoder *FrameDecoder) {
	defer close(p.done)

	for {
		frame, err := decoder.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if IsFatalFrameError(err) {
				p.logger.Error("fatal frame error, stopping read loop", map[string]any{
					"error": err.Error(),
				})
				return
			}
			p.logger.Warn("skipping undecodable frame", map[string]any{
				"error": err.Error(),
			})
			continue
		}

		p.dispatch(frame)
	}
}

// dispatch routes one decoded frame to its handler or pending ack.
func (p *Pipe) dispatch(frame *Frame) {
	switch frame.Type {
	case FrameTypeAck:
		p.mu.Lock()
		ack := p.pending[frame.AckID]
		delete(p.pending, frame.AckID)
		p.mu.Unlock()

		if ack == nil {
			p.logger.Debug("ack frame without pending request", map[string]any{
				"ack_id": frame.AckID,
			})
			return
		}
		ack(frame.Payload)

	case FrameTypeEvent:
		p.mu.Lock()
		handler := p.handlers[frame.Event]
		serve := p.serve
		p.mu.Unlock()

		if handler == nil && serve != nil {
			serve(frame)
			return
		}
		if handler == nil {
			p.logger.Debug("event frame without handler", map[string]any{
				"event": frame.Event,
			})
			return
		}
		handler(frame.Payload)

	default:
		p.logger.Warn("unknown frame type", map[string]any{
			"type": frame.Type,
		})
	}
}

// Serve registers a raw frame observer for event frames that have no
// named handler. Producer-side code uses it to see the ack id of
// incoming requests so it can answer them with Ack.
func (p *Pipe) Serve(fn func(*Frame)) {
	p.mu.Lock()
	p.serve = fn
	p.mu.Unlock()
}

// Ack answers an incoming event frame that carried an ack id. Used by the
// remote side of the pipe (producer simulators, tests).
func (p *Pipe) Ack(ackID string, payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.encoder.WriteFrame(&Frame{Type: FrameTypeAck, AckID: ackID, Payload: payload})
}

// Verify Pipe implements the transport boundary.
var _ transport.Transport = (*Pipe)(nil)
