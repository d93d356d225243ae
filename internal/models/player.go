package models

import (
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one roster slot in a race room. Bot players have a nil Conn; the
// room addresses outbound traffic through Conn but never owns the socket.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Color  string `json:"color"`
	IsAI   bool   `json:"isAI"`
	IsHost bool   `json:"isHost"`
	Ready  bool   `json:"ready"`

	Clicks     int   `json:"clicks"`
	Finished   bool  `json:"finished"`
	FinishTime int64 `json:"finishTime,omitempty"` // ms since race start, set once

	Conn *PlayerConn `json:"-"`
}

// PlayerConn wraps a live WebSocket connection for outbound delivery. The
// write pump owned by the session handler is the only reader of Out, so each
// connection observes room events in the order they were enqueued.
type PlayerConn struct {
	SessionID uuid.UUID
	WS        *websocket.Conn
	Out       chan interface{}
	Cancel    func()

	closed atomic.Bool
}

// NewPlayerConn allocates a connection wrapper with a buffered outbox.
func NewPlayerConn(ws *websocket.Conn, cancel func()) *PlayerConn {
	return &PlayerConn{
		SessionID: uuid.New(),
		WS:        ws,
		Out:       make(chan interface{}, 32),
		Cancel:    cancel,
	}
}

// Write pushes a message onto the outbox without blocking. Messages to a
// closed or saturated connection are dropped; delivery is fire-and-forget.
func (c *PlayerConn) Write(msg interface{}) {
	if c.closed.Load() {
		return
	}
	select {
	case c.Out <- msg:
	default:
	}
}

// MarkClosed flags the connection so the sweeper and broadcasts skip it.
// Called when the read pump exits; safe to call more than once.
func (c *PlayerConn) MarkClosed() {
	c.closed.Store(true)
}

// IsOpen reports whether the connection is still believed live.
func (c *PlayerConn) IsOpen() bool {
	return !c.closed.Load()
}
