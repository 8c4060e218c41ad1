// Package ws streams security events to WebSocket subscribers.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// EventHub manages WebSocket subscribers for real-time event streaming.
// Subscribers with cameraID 0 receive events from every camera.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]int64
}

// NewEventHub creates an event hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*websocket.Conn]int64)}
}

// Register subscribes a connection. cameraID 0 subscribes to all cameras.
func (h *EventHub) Register(conn *websocket.Conn, cameraID int64) {
	h.mu.Lock()
	h.clients[conn] = cameraID
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client registered (camera filter %d, total %d)", cameraID, n)
}

// Unregister drops a connection.
func (h *EventHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] Client unregistered (total %d)", n)
}

// ClientCount returns the number of connected subscribers.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// eventMessage is the wire envelope for event broadcasts.
type eventMessage struct {
	Type  string       `json:"type"`
	Event *model.Event `json:"event"`
}

// PublishEvent broadcasts an event to all matching subscribers. Failed
// writes evict the subscriber.
func (h *EventHub) PublishEvent(e *model.Event) {
	h.mu.RLock()
	if len(h.clients) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*websocket.Conn, 0, len(h.clients))
	for conn, filter := range h.clients {
		if filter == 0 || filter == e.CameraID {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(eventMessage{Type: "event", Event: e})
	if err != nil {
		log.Printf("[WS] Failed to encode event %d: %v", e.ID, err)
		return
	}

	for _, conn := range targets {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[WS] Dropping client: %v", err)
			h.Unregister(conn)
			conn.Close()
		}
	}
}
