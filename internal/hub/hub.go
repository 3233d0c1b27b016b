// Package hub streams call results to WebSocket clients watching a sequence.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// MessageTypeCall marks a message carrying one call result
const MessageTypeCall = "call"

// Message is what subscribers receive
type Message struct {
	Type     string           `json:"type"`
	Sequence string           `json:"sequence"`
	Ts       int64            `json:"ts"`
	Call     types.CallResult `json:"call"`
}

// Config holds connection timing and buffering
type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// DefaultConfig returns the settings used by the server
func DefaultConfig() Config {
	return Config{
		BufferSize:   64,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 50 * time.Second,
	}
}

type connection struct {
	id       string
	sequence string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub manages WebSocket subscribers grouped by sequence name
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[string]*connection
}

// New creates a new Hub
func New(config Config, logger *zap.Logger) *Hub {
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:      logger,
		subscribers: make(map[string]map[string]*connection),
	}
}

// Publish sends a call result to every subscriber of the sequence. It never
// blocks: subscribers with a full buffer miss the message.
func (h *Hub) Publish(sequence string, result types.CallResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.subscribers[sequence]
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(Message{
		Type:     MessageTypeCall,
		Sequence: sequence,
		Ts:       time.Now().UnixMilli(),
		Call:     result,
	})
	if err != nil {
		h.logger.Warn("failed to encode call result", zap.Error(err))
		return
	}

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("subscriber buffer full, dropping message", zap.String("connection", c.id))
		}
	}
}

// Subscribers returns the number of connections watching a sequence
func (h *Hub) Subscribers(sequence string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sequence])
}

// ServeHTTP upgrades the request and subscribes it to the sequence named by
// the "sequence" query parameter
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sequence := r.URL.Query().Get("sequence")
	if sequence == "" {
		http.Error(w, "sequence query parameter is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade WebSocket", zap.Error(err))
		return
	}

	c := &connection{
		id:       uuid.NewString(),
		sequence: sequence,
		conn:     ws,
		send:     make(chan []byte, h.config.BufferSize),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[c.sequence] == nil {
		h.subscribers[c.sequence] = make(map[string]*connection)
	}
	h.subscribers[c.sequence][c.id] = c
	h.logger.Debug("subscriber registered", zap.String("connection", c.id), zap.String("sequence", c.sequence))
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subscribers[c.sequence]
	if !ok {
		return
	}
	if _, ok := conns[c.id]; !ok {
		return
	}
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(h.subscribers, c.sequence)
	}
	close(c.send)
	h.logger.Debug("subscriber unregistered", zap.String("connection", c.id))
}

// readPump only watches for the client going away; subscribers send nothing
func (h *Hub) readPump(c *connection) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
