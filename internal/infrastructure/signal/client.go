package signal

import (
	"sync"
	"time"

	"devstream/internal/core/domain"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// client is one websocket connection. Reads happen on the handler
// goroutine, writes only on writePump.
type client struct {
	id       domain.ConnectionID
	identity domain.Identity
	conn     *websocket.Conn
	limiter  *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool

	cleanupOnce sync.Once
}

func newClient(id domain.ConnectionID, identity domain.Identity, conn *websocket.Conn, buffer int, limiter *rate.Limiter) *client {
	return &client{
		id:       id,
		identity: identity,
		conn:     conn,
		limiter:  limiter,
		send:     make(chan []byte, buffer),
	}
}

// enqueue never blocks. It reports false when the queue is full or closed.
func (c *client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump drains the send queue and keeps the connection alive with
// pings. A closed queue is flushed before the close frame goes out.
func (c *client) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
