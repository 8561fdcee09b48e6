package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Message is the frame sent to alert stream clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Config bounds the hub.
type Config struct {
	MaxConnections    int64
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	ReadLimit         int64
}

func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBufferSize:    64,
		ReadLimit:         512,
	}
}

// Hub tracks every live alert-stream connection by user. Unlike a chat hub
// there is no broadcast path; delivery is always to one viewer's devices.
type Hub struct {
	config *Config

	connections     map[string]*Connection
	userConnections map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	connectionCount int64

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		config:          config,
		connections:     make(map[string]*Connection),
		userConnections: make(map[string]map[string]bool),
		register:        make(chan *Connection, 64),
		unregister:      make(chan *Connection, 64),
		ctx:             ctx,
		cancel:          cancel,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.addConnection(conn)
		case conn := <-h.unregister:
			h.removeConnection(conn)
		}
	}
}

func (h *Hub) addConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		logrus.WithField("conn_id", conn.ID).Warn("connection limit reached, rejecting")
		close(conn.Send)
		return
	}

	h.connections[conn.ID] = conn
	if h.userConnections[conn.UserID] == nil {
		h.userConnections[conn.UserID] = make(map[string]bool)
	}
	h.userConnections[conn.UserID][conn.ID] = true
	atomic.AddInt64(&h.connectionCount, 1)

	logrus.WithFields(logrus.Fields{"conn_id": conn.ID, "user_id": conn.UserID}).Debug("connection registered")
}

func (h *Hub) removeConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if conns := h.userConnections[conn.UserID]; conns != nil {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.userConnections, conn.UserID)
		}
	}
	atomic.AddInt64(&h.connectionCount, -1)
	close(conn.Send)

	logrus.WithFields(logrus.Fields{"conn_id": conn.ID, "user_id": conn.UserID}).Debug("connection unregistered")
}

// SendToUser delivers a message to every device the user has connected.
// Slow consumers are skipped rather than blocking the caller.
func (h *Hub) SendToUser(userID string, msg *Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID := range h.userConnections[userID] {
		conn := h.connections[connID]
		if conn == nil {
			continue
		}
		select {
		case conn.Send <- data:
		default:
			logrus.WithField("conn_id", connID).Warn("send buffer full, dropping frame")
		}
	}
}

// SendToConnection delivers a message to one connection. The hub lock
// guarantees the Send channel is not closed mid-send by an unregister.
func (h *Hub) SendToConnection(connID string, msg *Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("marshal websocket message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	conn := h.connections[connID]
	if conn == nil {
		return
	}
	select {
	case conn.Send <- data:
	default:
		logrus.WithField("conn_id", connID).Warn("send buffer full, dropping frame")
	}
}

func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

func (h *Hub) GetUserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConnections[userID])
}

// Close shuts the hub down and drops every connection.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.connections {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.userConnections = make(map[string]map[string]bool)
	atomic.StoreInt64(&h.connectionCount, 0)
}
