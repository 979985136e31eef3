package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 25 * time.Second
)

type wsClient struct {
	userID int
	conn   *websocket.Conn
	writeM sync.Mutex
}

// write serialises writes; gorilla connections allow one writer at a time.
func (c *wsClient) write(messageType int, data []byte) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// eventHub fans change events out to each user's open sockets.
type eventHub struct {
	mu      sync.RWMutex
	clients map[int]map[*wsClient]struct{}
	logger  *zap.Logger
}

func newEventHub(logger *zap.Logger) *eventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &eventHub{clients: make(map[int]map[*wsClient]struct{}), logger: logger}
}

// Attach subscribes the hub to a change feed.
func (h *eventHub) Attach(changes *observable[changeEvent]) (detach func()) {
	return changes.Subscribe(h.Broadcast)
}

func (h *eventHub) register(c *wsClient) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*wsClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *eventHub) unregister(c *wsClient) {
	h.mu.Lock()
	if set := h.clients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// connections reports how many sockets a user has open.
func (h *eventHub) connections(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Broadcast sends e to every socket of e.UserID. Failed sockets are dropped.
func (h *eventHub) Broadcast(e changeEvent) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to encode change event", zap.String("kind", e.Kind), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[e.UserID]))
	for c := range h.clients[e.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("dropping websocket client", zap.Int("user_id", c.userID), zap.Error(err))
			h.unregister(c)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades to a websocket and streams the user's change events.
// GET /api/events.
func (h *Handler) streamEvents(c *gin.Context) {
	userID := c.GetInt("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	cl := &wsClient{userID: userID, conn: conn}
	h.hub.register(cl)

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(wsPingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := cl.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Clients only listen; the read loop exists to notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.unregister(cl)
			return
		}
	}
}
