package protohttp

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/gameproto-dashboard/internal/dashboard"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans emitted events out to every connected feed subscriber.
type Hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	logger  *log.Logger
	closed  bool
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		logger:  logger,
	}
}

// Subscribers returns the number of connected feed clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues ev for every subscriber. Subscribers whose buffer is full
// miss the event.
func (h *Hub) Broadcast(ev dashboard.GameEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Printf("hub: encode event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

// ServeWS upgrades the request and registers the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("hub: upgrade: %v", err)
		return
	}
	c := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writer()
	c.reader()
	h.remove(c)
}

// Close disconnects all subscribers and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reader drains client frames so control messages are processed; the feed is
// push-only, so payloads are discarded.
func (c *subscriber) reader() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *subscriber) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(writeWait))
}
