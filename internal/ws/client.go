package ws

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Client is one event-stream subscriber: a dashboard or CLI watching
// registry changes over a websocket.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection as a hub subscriber.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send pushes one serialized registry event. A write failure closes the
// connection; the hub drops the subscriber on the returned error.
func (c *Client) Send(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("event stream send failed, dropping subscriber", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the subscriber's connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
