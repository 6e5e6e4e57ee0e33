// Package ws realizes the transport boundary over a websocket connection.
//
// Each websocket text message carries one JSON frame: an event frame with
// a dotted event name, or an ack frame answering a prior event by ack id.
// The connection is assumed already established; reconnect management is
// the caller's concern, matching the transport contract.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pithecene-io/chorus/log"
	"github.com/pithecene-io/chorus/transport"
)

// Name is the transport adapter name used in session metadata and config.
const Name = "websocket"

// Frame type discriminants.
const (
	frameTypeEvent = "event"
	frameTypeAck   = "ack"
)

// frame is the JSON message exchanged over the socket.
type frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	AckID   string          `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Conn realizes the transport boundary over an established websocket.
type Conn struct {
	ws     *websocket.Conn
	logger *log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]transport.Handler
	pending  map[string]transport.AckFunc
	closed   bool

	done chan struct{}
}

// Dial connects to a websocket endpoint and wraps it as a transport.
func Dial(url string, logger *log.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	return Wrap(ws, logger), nil
}

// Wrap adapts an established websocket connection and starts the read loop.
func Wrap(ws *websocket.Conn, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.Nop()
	}

	c := &Conn{
		ws:       ws,
		logger:   logger,
		handlers: make(map[string]transport.Handler),
		pending:  make(map[string]transport.AckFunc),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Emit sends an event frame. When ack is non-nil the frame carries an ack
// id and the callback fires when the matching ack frame arrives.
func (c *Conn) Emit(event string, payload []byte, ack transport.AckFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("ws transport closed")
	}

	f := &frame{Type: frameTypeEvent, Event: event, Payload: payload}
	if ack != nil {
		f.AckID = uuid.New().String()
		c.pending[f.AckID] = ack
	}
	c.mu.Unlock()

	err := c.write(f)
	if err != nil && f.AckID != "" {
		c.mu.Lock()
		delete(c.pending, f.AckID)
		c.mu.Unlock()
	}
	return err
}

// On registers the handler for an event name, replacing any previous one.
func (c *Conn) On(event string, handler transport.Handler) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// Close tears the websocket down. Pending acks are dropped.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = make(map[string]transport.AckFunc)
	c.mu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// write serializes a frame onto the socket. Gorilla permits one concurrent
// writer, hence the write mutex.
func (c *Conn) write(f *frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode ws frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *Conn) readLoop() {
	defer close(c.done)

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("ws read loop ending", map[string]any{
					"error": err.Error(),
				})
			}
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn("skipping undecodable ws frame", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		c.dispatch(&f)
	}
}

func (c *Conn) dispatch(f *frame) {
	switch f.Type {
	case frameTypeAck:
		c.mu.Lock()
		ack := c.pending[f.AckID]
		delete(c.pending, f.AckID)
		c.mu.Unlock()

		if ack == nil {
			c.logger.Debug("ack frame without pending request", map[string]any{
				"ack_id": f.AckID,
			})
			return
		}
		ack(f.Payload)

	case frameTypeEvent:
		c.mu.Lock()
		handler := c.handlers[f.Event]
		c.mu.Unlock()

		if handler == nil {
			c.logger.Debug("event frame without handler", map[string]any{
				"event": f.Event,
			})
			return
		}
		handler(f.Payload)

	default:
		c.logger.Warn("unknown ws frame type", map[string]any{
			"type": f.Type,
		})
	}
}

// Verify Conn implements the transport boundary.
var _ transport.Transport = (*Conn)(nil)
