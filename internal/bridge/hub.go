// Package bridge is a WebSocket chat bridge. It receives agent messages from
// agentgate over JSON-RPC, fans them out to the clients subscribed to the
// message's channel, and relays the buttons those clients press back to
// agentgate.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection represents a single WebSocket connection.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	// guarded by the hub's mutex
	channels map[string]bool
	closed   bool

	mu sync.Mutex
}

// Hub manages all WebSocket connections and their channel subscriptions.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Channels maps a channel to the set of subscribed connection IDs
	channels map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *channelMessage
	done       chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

type channelMessage struct {
	channel string
	data    []byte
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		channels:    make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *channelMessage, 256),
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "hub")),
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("connection registered", zap.String("conn_id", conn.ID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				for ch := range conn.channels {
					h.leave(conn, ch)
				}
				conn.closed = true
				close(conn.Send)
			}
			h.mu.Unlock()
			h.logger.Debug("connection unregistered", zap.String("conn_id", conn.ID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.channels[msg.channel] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					h.logger.Warn("connection buffer full, closing", zap.String("conn_id", connID))
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection wraps ws in a connection. Register it before use.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		Conn:     ws,
		Send:     make(chan []byte, 256),
		channels: make(map[string]bool),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Subscribe adds channels to a connection's subscriptions.
func (h *Hub) Subscribe(conn *Connection, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.closed {
		return
	}

	for _, ch := range channels {
		conn.channels[ch] = true
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[string]bool)
		}
		h.channels[ch][conn.ID] = true
	}
}

// Subscribed reports whether conn has at least one subscription.
func (h *Hub) Subscribed(conn *Connection) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(conn.channels) > 0
}

// leave must be called with h.mu held.
func (h *Hub) leave(conn *Connection, channel string) {
	delete(conn.channels, channel)
	if h.channels[channel] != nil {
		delete(h.channels[channel], conn.ID)
		if len(h.channels[channel]) == 0 {
			delete(h.channels, channel)
		}
	}
}

// BroadcastJSON sends v to every connection subscribed to channel and
// reports how many subscribers there were.
func (h *Hub) BroadcastJSON(channel string, v interface{}) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	n := h.SubscriberCount(channel)
	select {
	case h.broadcast <- &channelMessage{channel: channel, data: data}:
	case <-h.done:
		return 0, errors.New("hub stopped")
	}
	return n, nil
}

// SendJSONToConnection sends a JSON message to a specific connection. Sends
// to an unregistered connection are dropped.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn.closed {
		return nil
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// ChannelCount returns the number of channels with subscribers.
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// SubscriberCount returns the number of connections subscribed to channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
