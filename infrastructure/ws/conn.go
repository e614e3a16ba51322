// Package ws exposes the discussion rooms over WebSocket and serves the
// introspection API.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"discussion-lab/domain/event"
)

// ErrBufferFull is returned when a connection cannot keep up with its
// event stream.
var ErrBufferFull = errors.New("send buffer full")

// ErrConnClosed is returned when an event is offered to a connection that
// already went away.
var ErrConnClosed = errors.New("connection closed")

// envelope is the outbound frame written to clients.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Ts    int64  `json:"ts"`
}

// Conn wraps one WebSocket connection behind a buffered send channel.
// Consume never blocks the publisher; a slow client loses events instead
// of stalling the room.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, bufferSize int, log *slog.Logger) *Conn {
	return &Conn{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
		log:  log,
	}
}

func (c *Conn) ID() string { return c.id }

// Consume implements the event sink: the event is wrapped in an envelope
// carrying its name and enqueued for the write pump.
func (c *Conn) Consume(_ context.Context, e event.Event) error {
	frame, err := json.Marshal(envelope{
		Event: e.Name(),
		Data:  e,
		Ts:    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// close signals the write pump and releases the socket. The send channel
// is left open so late publishers fail soft via done.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
