package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	xlogger "FinTrade/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from arbitrary origins; the API carries no
	// credentials, so cross-origin upgrades are fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts cycle snapshots to connected websocket clients. A client
// that cannot keep up is dropped rather than allowed to block the
// snapshot pipeline.
type Hub struct {
	logger *xlogger.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewHub(logger *xlogger.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

// Broadcast marshals the snapshot once and fans it out. Never blocks.
func (h *Hub) Broadcast(snap *models.CycleSnapshot) {
	if snap == nil {
		return
	}
	b, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("snapshot marshal failed", xlogger.Error(err))
		return
	}

	var stale []*wsClient
	h.mu.Lock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			stale = append(stale, cl)
		}
	}
	h.mu.Unlock()

	for _, cl := range stale {
		h.logger.Warn("websocket client lagging, dropping")
		h.drop(cl)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}

	cl := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected", xlogger.Int("clients", n))
	go h.writePump(cl)
	go h.readPump(cl)
	return nil
}

// Close drops every client and rejects further upgrades.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		h.drop(cl)
	}
}

// drop unregisters the client exactly once and closes its connection.
func (h *Hub) drop(cl *wsClient) {
	h.mu.Lock()
	_, registered := h.clients[cl]
	if registered {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()

	_ = cl.conn.Close()
	if registered {
		h.logger.Info("websocket client disconnected")
	}
}

// readPump discards inbound frames and keeps the pong deadline fresh.
func (h *Hub) readPump(cl *wsClient) {
	defer h.drop(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(cl)
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
