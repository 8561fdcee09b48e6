package handlers

import (
	"time"

	"Safii/internal/models"
	"Safii/pkg/logger"
	"Safii/pkg/metrics"
	"Safii/pkg/sse"
	ws "Safii/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleAlertSocket streams the caller's alert projection over a websocket.
// Each projection change is forwarded as a Message with type "alert.show" or
// "alert.dismiss"; the subscription is torn down when the socket closes.
func (h *Handlers) handleAlertSocket(c *gin.Context) {
	user := models.CurrentUser(c)

	sub := h.projector.Subscribe(user.ID)
	conn, err := h.hub.Serve(c, user.ID, sub.Close)
	if err != nil {
		sub.Close()
		return
	}
	metrics.StreamSubscribers.Inc()

	go func() {
		defer metrics.StreamSubscribers.Dec()
		for upd := range sub.C {
			// each socket carries its own subscription; deliver to this
			// connection only, not every device the viewer has open
			h.hub.SendToConnection(conn.ID, &ws.Message{
				Type: "alert." + upd.Action,
				Data: upd.Alert,
			})
		}
	}()

	logger.Debug("alert stream opened", zap.String("user_id", user.ID), zap.String("conn_id", conn.ID))
}

// handleAlertSSE is the fallback stream for clients that cannot hold a
// websocket. Same projection, delivered as server-sent events.
func (h *Handlers) handleAlertSSE(c *gin.Context) {
	user := models.CurrentUser(c)

	sub := h.projector.Subscribe(user.ID)
	defer sub.Close()
	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	out := make(chan interface{}, 32)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(out)
		for upd := range sub.C {
			select {
			case out <- upd:
			case <-quit:
				return
			}
		}
	}()

	sse.Stream(c, out, 30*time.Second)
}
