package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

const wsWriteTimeout = 5 * time.Second

// Notification is the frame pushed to websocket clients.
type Notification struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
	TS      int64  `json:"ts"`
}

// Hub fans notifications out to connected websocket clients. It implements
// the rewards publisher and the events subscriber, so badge unlocks and
// score updates reach the UI without either service knowing about HTTP.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub builds an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("ws-hub")
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// Publish broadcasts a notification frame to every connected client.
func (h *Hub) Publish(topic string, payload any) {
	h.broadcast(Notification{Topic: topic, Payload: payload, TS: time.Now().UnixMilli()})
}

// EventAppended pushes the recomputed score state after each applied event.
func (h *Hub) EventAppended(userID string, _ event.Event, st score.State) {
	h.Publish("credit:score:updated", map[string]any{
		"userId": userID,
		"points": st.Points,
		"score":  st.Score,
		"tier":   st.Tier,
	})
}

func (h *Hub) broadcast(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(n); err != nil {
			h.log.WithError(err).Debug("dropping websocket client")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// the read loop only exists to detect disconnects; inbound frames are
	// discarded
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
