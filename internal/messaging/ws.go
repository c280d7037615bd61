package messaging

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/realtime"
)

var logger = logging.NewPackageLogger("messaging")

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer), closed: make(chan struct{})}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// writePump is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readPump discards client frames; the protocol is server push.
func (c *client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// room is every local connection watching one topic. It holds a single bus
// subscription while it has clients.
type room struct {
	topic       string
	mu          sync.RWMutex
	clients     map[*client]struct{}
	unsubscribe func()
}

func (r *room) broadcast(evt realtime.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		select {
		case c.send <- payload:
		default:
			// slow consumer
			logger.Warn().Str("topic", r.topic).Msg("dropping slow websocket client")
			c.close()
		}
	}
}

// Hub maps bus topics to websocket rooms.
type Hub struct {
	bus      realtime.Bus
	upgrader websocket.Upgrader
	mu       sync.Mutex
	rooms    map[string]*room
}

// NewHub accepts browser upgrades only from origins, the same list the CORS
// middleware enforces.
func NewHub(bus realtime.Bus, origins []string) *Hub {
	return &Hub{bus: bus, upgrader: newUpgrader(origins), rooms: make(map[string]*room)}
}

func (h *Hub) join(topic string, c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[topic]
	if !ok {
		r = &room{topic: topic, clients: make(map[*client]struct{})}
		unsub, err := h.bus.Subscribe(topic, r.broadcast)
		if err != nil {
			return err
		}
		r.unsubscribe = unsub
		h.rooms[topic] = r
	}
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (h *Hub) leave(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[topic]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.clients, c)
	empty := len(r.clients) == 0
	r.mu.Unlock()
	if empty {
		r.unsubscribe()
		delete(h.rooms, topic)
	}
}

// Clients reports how many local connections watch topic.
func (h *Hub) Clients(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[topic]
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// serve upgrades the request and pumps topic events until the client leaves.
func (h *Hub) serve(c echo.Context, topic string) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := newClient(ws)
	if err := h.join(topic, cl); err != nil {
		cl.close()
		logger.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
		return nil
	}
	defer h.leave(topic, cl)

	go cl.writePump()
	cl.readPump()
	cl.close()
	return nil
}
