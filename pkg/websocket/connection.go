package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection is one device's websocket attached to the hub.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	// OnClose runs once when the connection leaves the hub; the stream
	// handler uses it to release the projector subscription.
	OnClose func()
}

// ReadPump consumes client frames until the peer goes away. Clients only send
// pings; any payload is discarded.
func (c *Connection) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
		if c.OnClose != nil {
			c.OnClose()
		}
	}()

	c.Conn.SetReadLimit(c.Hub.config.ReadLimit)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.HeartbeatInterval * 2))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.HeartbeatInterval * 2))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("conn_id", c.ID).Debug("websocket read error")
			}
			return
		}
	}
}

// WritePump flushes the send buffer and keeps the connection alive with
// pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.Hub.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
