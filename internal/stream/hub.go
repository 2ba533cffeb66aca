package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aaronlmathis/bladetemp/internal/metrics"
	"github.com/aaronlmathis/bladetemp/internal/temperature"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageTypeTemperatures is the type of every snapshot pushed to clients.
const MessageTypeTemperatures = "temperatures"

// Source produces temperature snapshots.
type Source interface {
	Temperatures(ctx context.Context, baseURL string) (*temperature.Response, error)
}

// Hub polls a Source on a fixed interval and pushes each snapshot to all
// connected websocket clients. New clients receive the latest snapshot
// immediately.
type Hub struct {
	logger   *zap.Logger
	source   Source
	baseURL  string
	interval time.Duration

	// Registered clients
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu   sync.RWMutex
	last []byte
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	id string
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a hub that polls source against baseURL every interval
func NewHub(logger *zap.Logger, source Source, baseURL string, interval time.Duration) *Hub {
	return &Hub{
		logger:     logger,
		source:     source,
		baseURL:    baseURL,
		interval:   interval,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run polls and fans out snapshots until ctx is cancelled. All clients are
// disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	go h.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info("Stream hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.last != nil {
				client.send <- h.last
			}
			h.mu.Unlock()

			metrics.RecordStreamConnection()
			h.logger.Info("Stream client registered", zap.String("id", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

			h.logger.Info("Stream client unregistered", zap.String("id", client.id))

		case message := <-h.broadcast:
			h.mu.Lock()
			h.last = message
			dropped := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.removeLocked(client)
					dropped++
				}
			}
			h.mu.Unlock()

			if dropped > 0 {
				h.logger.Warn("Dropped unresponsive stream clients", zap.Int("dropped", dropped))
			}
		}
	}
}

// removeLocked disconnects client; called with mu held.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.RecordStreamDisconnection()
}

func (h *Hub) poll(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if message, ok := h.snapshot(ctx); ok {
			select {
			case h.broadcast <- message:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) snapshot(ctx context.Context) ([]byte, bool) {
	pollCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	resp, err := h.source.Temperatures(pollCtx, h.baseURL)
	metrics.RecordStreamBroadcast(err)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("Failed to poll temperatures for stream", zap.Error(err))
		}
		return nil, false
	}

	message, err := json.Marshal(Message{Type: MessageTypeTemperatures, Data: resp})
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return nil, false
	}
	return message, true
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles websocket requests from the peer
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "Stream unavailable", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Unexpected WebSocket close",
					zap.String("id", c.id),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
