package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forged/internal/sink"
	"forged/pkg/types"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-origin requests, and any origin allowed by the
// CORS configuration when CORS is enabled.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if corsEnabled {
		for _, o := range corsAllowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Hub fans engine progress, log lines and telemetry snapshots out to
// websocket clients. It implements sink.Sink so it can be handed to the
// engine and the monitor alongside the logging sink. Publishing never blocks:
// a client whose buffer is full misses the message.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	minLevel sink.Level
	closed   bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub returns a hub that forwards log lines at minLevel and above.
func NewHub(minLevel sink.Level) *Hub {
	if minLevel == "" {
		minLevel = sink.LevelInfo
	}
	return &Hub{clients: make(map[*client]struct{}), minLevel: minLevel}
}

var levelRank = map[sink.Level]int{
	sink.LevelDebug: 0,
	sink.LevelInfo:  1,
	sink.LevelWarn:  2,
	sink.LevelError: 3,
}

// Log implements sink.Sink.
func (h *Hub) Log(level sink.Level, component, message string) {
	if levelRank[level] < levelRank[h.minLevel] {
		return
	}
	h.broadcast(types.StreamMessage{
		Type: "log",
		Log:  &types.LogEvent{Level: string(level), Component: component, Message: message},
	})
}

// Progress implements sink.Sink.
func (h *Hub) Progress(operationID string, fraction float64) {
	h.broadcast(types.StreamMessage{
		Type:     "progress",
		Progress: &types.ProgressEvent{OperationID: operationID, Fraction: fraction},
	})
}

// Observe publishes a telemetry snapshot; it has the shape expected by
// telemetry.Monitor.Subscribe.
func (h *Hub) Observe(snap types.SystemSnapshot) {
	snap = snap.Clone()
	h.broadcast(types.StreamMessage{Type: "snapshot", Snapshot: &snap})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg types.StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			streamDropped.Inc()
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	streamClients.Set(0)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	streamClients.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	streamClients.Set(float64(len(h.clients)))
}

// ServeHTTP upgrades the request and streams messages until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		zlog.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	go h.readPump(c)
	h.writePump(c)
}

// readPump discards client frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
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

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
