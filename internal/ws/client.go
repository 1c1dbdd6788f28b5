// Package ws carries broadcast traffic over websocket connections, both on
// the API side (Bridge) and for clients (Dialer).
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 10 * time.Second

// Client represents a websocket client connection. Writes are serialised.
type Client struct {
	conn      *websocket.Conn
	log       *slog.Logger
	writeWait time.Duration
	mu        sync.Mutex
}

// NewClient constructs a client wrapper.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger, writeWait: defaultWriteWait}
}

// Send writes a message to the websocket connection.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Ping writes a ping control frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close sends a close frame when possible and terminates the connection.
func (c *Client) Close() {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.conn.Close()
}
