package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is meant to sit behind a trusted frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvents upgrades the connection and subscribes it to the event stream.
// An optional camera_id query parameter filters to one camera.
func (s *Server) wsEvents(w http.ResponseWriter, r *http.Request) {
	var cameraID int64
	if v := r.URL.Query().Get("camera_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid camera_id")
			return
		}
		cameraID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[API] WebSocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn, cameraID)

	// Drain the connection; a read error means the client went away.
	go func() {
		defer func() {
			s.hub.Unregister(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
