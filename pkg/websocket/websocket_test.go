package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	assert.Equal(t, int64(10000), hub.config.MaxConnections)
	assert.Equal(t, 30*time.Second, hub.config.HeartbeatInterval)
	assert.Equal(t, int64(0), hub.GetConnectionCount())
}

func TestHubConnectionManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{
		ID:     "conn_1",
		UserID: "viewer_1",
		Send:   make(chan []byte, 8),
		Hub:    hub,
	}

	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(1), hub.GetConnectionCount())
	assert.Equal(t, 1, hub.GetUserConnections("viewer_1"))

	hub.unregister <- conn
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int64(0), hub.GetConnectionCount())
	assert.Equal(t, 0, hub.GetUserConnections("viewer_1"))
}

func TestSendToUserReachesEveryDevice(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	phone := &Connection{ID: "conn_phone", UserID: "viewer_1", Send: make(chan []byte, 8), Hub: hub}
	tablet := &Connection{ID: "conn_tablet", UserID: "viewer_1", Send: make(chan []byte, 8), Hub: hub}
	other := &Connection{ID: "conn_other", UserID: "viewer_2", Send: make(chan []byte, 8), Hub: hub}
	hub.register <- phone
	hub.register <- tablet
	hub.register <- other
	time.Sleep(100 * time.Millisecond)

	hub.SendToUser("viewer_1", &Message{Type: "alert.show", Data: map[string]string{"alertId": "a1"}})

	for _, conn := range []*Connection{phone, tablet} {
		select {
		case raw := <-conn.Send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, "alert.show", msg.Type)
			assert.NotZero(t, msg.Timestamp)
		case <-time.After(time.Second):
			t.Fatalf("connection %s never received the frame", conn.ID)
		}
	}

	select {
	case <-other.Send:
		t.Fatal("frame leaked to another user's connection")
	default:
	}
}

func TestSendToUserSkipsFullBuffers(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := &Connection{ID: "conn_1", UserID: "viewer_1", Send: make(chan []byte, 1), Hub: hub}
	hub.register <- conn
	time.Sleep(100 * time.Millisecond)

	// second send must not block even though nobody drains the channel
	done := make(chan struct{})
	go func() {
		hub.SendToUser("viewer_1", &Message{Type: "alert.show"})
		hub.SendToUser("viewer_1", &Message{Type: "alert.dismiss"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendToUser blocked on a full buffer")
	}
}
