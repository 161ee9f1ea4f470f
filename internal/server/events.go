package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/audiobridge/internal/events"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventMessage is one bus event as sent to websocket clients
type EventMessage struct {
	Kind    events.Kind `json:"kind"`
	Payload any         `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// hub fans every bus event out to the connected websocket clients
type hub struct {
	mu            sync.Mutex
	clients       map[*client]struct{}
	subscriptions []*events.Subscription
	closed        bool
}

func newHub(bus *events.Bus) *hub {
	h := &hub{clients: make(map[*client]struct{})}
	for _, kind := range events.AllKinds() {
		kind := kind
		h.subscriptions = append(h.subscriptions, bus.AddListener(kind, func(payload any) {
			h.broadcast(kind, payload)
		}))
	}
	return h
}

// broadcast runs on the bus goroutine and never blocks; a client that
// cannot keep up loses the event
func (h *hub) broadcast(kind events.Kind, payload any) {
	data, err := json.Marshal(EventMessage{Kind: kind, Payload: payload})
	if err != nil {
		slog.Error("Failed to encode event", "kind", kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("Websocket client too slow, dropping event", "kind", kind, "remote", c.conn.RemoteAddr().String())
		}
	}
}

func (h *hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// close releases the bus subscriptions and disconnects every client
func (h *hub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, sub := range h.subscriptions {
		sub.Remove()
	}
	for c := range clients {
		c.close()
	}
}

// serveWS upgrades the request and streams events until the client leaves
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	slog.Debug("Event stream client connected", "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects
func (h *hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Event stream client error", "error", err)
			}
			return
		}
	}
}

func (h *hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		slog.Debug("Event stream client disconnected", "remote", c.conn.RemoteAddr().String())
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
