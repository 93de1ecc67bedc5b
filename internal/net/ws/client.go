package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

// Client adapts one websocket connection to the transport the world layer
// writes to. Writes are serialized through a mutex because room broadcasts
// and the session's own read loop both produce output; a write after the
// peer dropped is a silent no-op.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Write marshals and queues one message for delivery.
func (c *Client) Write(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed = true
		return err
	}
	return nil
}

// End closes the connection with a normal close frame. Idempotent.
func (c *Client) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeTimeout))
	c.conn.Close()
}

// IsWritable reports whether writes can still reach the peer.
func (c *Client) IsWritable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// markDead flags the transport closed without sending a close frame; the
// read loop calls it when the connection already failed.
func (c *Client) markDead() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}
