package main

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// Sender is the outbound half of a subscriber: a player slot, a
// competition registrant, or an observer. A failed Send is treated as a
// disconnect by the caller.
type Sender interface {
	Send(v any) error
}

// Conn wraps a single WebSocket session. Writes are serialized so the
// room tick loop, the competition, and the room manager can all send to
// the same peer.
type Conn struct {
	ID string

	ws     *websocket.Conn
	mu     sync.Mutex // protects ws writes and closed
	closed bool
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ID: uuid.New().String(),
		ws: ws,
	}
}

// Send serializes v to JSON and writes it as one text frame.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks for the next frame's payload.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close tears the connection down without a close frame.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.ws.Close()
}

// CloseWithCode sends a close frame with the given status code, then
// closes.
func (c *Conn) CloseWithCode(code int, reason string) {
	c.mu.Lock()
	if !c.closed {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
		c.closed = true
		c.ws.Close()
	}
	c.mu.Unlock()
}
