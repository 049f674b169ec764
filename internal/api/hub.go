package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/trajectory.editor/internal/httputil"
	"github.com/banshee-data/trajectory.editor/internal/monitoring"
	"github.com/banshee-data/trajectory.editor/internal/projection"
	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// FrameMessage is one render pass as streamed to websocket subscribers.
type FrameMessage struct {
	Type   string                               `json:"type"`
	Seq    uint64                               `json:"seq"`
	Frames map[projection.View]projection.Frame `json:"frames"`
}

// FrameSource yields the current frames of both projections.
type FrameSource interface {
	Frames() map[projection.View]projection.Frame
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan FrameMessage
}

// Hub fans rendered frames out to websocket subscribers. A slow subscriber
// only ever sees the latest frame; older ones are dropped.
type Hub struct {
	source FrameSource

	mu      sync.Mutex
	clients map[string]*subscriber
	seq     uint64
}

// NewHub creates a hub reading frames from source.
func NewHub(source FrameSource) *Hub {
	return &Hub{source: source, clients: make(map[string]*subscriber)}
}

// renderHook runs under the workspace lock, after the adapter has drawn.
func (h *Hub) renderHook(*trajectory.State) {
	h.Broadcast()
}

// Refresh re-sends the current frames to every subscriber.
func (h *Hub) Refresh() {
	h.Broadcast()
}

// Broadcast queues the current frames for every subscriber without
// blocking.
func (h *Hub) Broadcast() {
	frames := h.source.Frames()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	msg := FrameMessage{Type: "frames", Seq: h.seq, Frames: frames}
	for _, c := range h.clients {
		offer(c.send, msg)
	}
}

func offer(ch chan FrameMessage, msg FrameMessage) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) register(conn *websocket.Conn) *subscriber {
	c := &subscriber{id: uuid.NewString(), conn: conn, send: make(chan FrameMessage, 1)}
	frames := h.source.Frames()
	h.mu.Lock()
	h.clients[c.id] = c
	h.seq++
	c.send <- FrameMessage{Type: "frames", Seq: h.seq, Frames: frames}
	n := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("websocket client %s connected (%d total)", c.id, n)
	return c
}

func (h *Hub) unregister(c *subscriber) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		monitoring.Logf("websocket client %s disconnected (%d total)", c.id, n)
	}
}

// HandleWebSocket upgrades the request and streams frames until the client
// goes away.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		httputil.BadRequest(w, "websocket upgrade required")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}
	c := h.register(conn)
	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages; it exists to notice disconnects and
// answer pings.
func (h *Hub) readPump(c *subscriber) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				monitoring.Logf("websocket client %s: %v", c.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				monitoring.Logf("websocket client %s write failed: %v", c.id, err)
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
