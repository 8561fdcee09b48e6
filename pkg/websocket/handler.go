package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the mobile client connects from app webviews and emulators
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and registers the connection for userID. The
// returned connection's Send channel is live once this returns; onClose runs
// when the peer disconnects.
func (h *Hub) Serve(c *gin.Context, userID string, onClose func()) (*Connection, error) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return nil, err
	}

	conn := &Connection{
		ID:      uuid.NewString(),
		UserID:  userID,
		Conn:    ws,
		Send:    make(chan []byte, h.config.SendBufferSize),
		Hub:     h,
		OnClose: onClose,
	}
	h.register <- conn

	go conn.WritePump()
	go conn.ReadPump()
	return conn, nil
}
