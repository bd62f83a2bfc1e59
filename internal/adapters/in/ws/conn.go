package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// conn wraps a websocket connection with a buffered outbound queue. All
// writes go through the write pump goroutine; Send never blocks and drops
// the event when the peer cannot keep up.
type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *conn {
	c := &conn{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues an event for delivery. Sends are fire-and-forget: a full
// buffer or a closed connection drops the event.
func (c *conn) Send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal event", "error", err)
		return
	}

	select {
	case <-c.closed:
	case c.send <- payload:
	default:
		c.logger.Warn("send buffer full, event dropped")
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return c.ws.Close()
}

func (c *conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}
