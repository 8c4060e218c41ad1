// Package api serves the HTTP management API: camera and zone CRUD, event
// queries, health and metrics, plus the WebSocket event stream.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/auth"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/database"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/middleware"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/pipeline"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/ws"
)

const apiVersion = "1.0.0"

// DetectorStatus is what the health endpoint needs from the detection
// capability.
type DetectorStatus interface {
	IsReady() bool
	AvgLatencyMs() float64
}

// Broker reports the notification broker connection state.
type Broker interface {
	IsConnected() bool
}

// Server holds the API dependencies.
type Server struct {
	db          *database.Database
	coord       *pipeline.Coordinator
	detector    DetectorStatus
	broker      Broker
	hub         *ws.EventHub
	metrics     *metrics.Metrics
	auth        *auth.Authenticator
	snapshotDir string
	started     time.Time
}

// New creates the API server. broker and detector may be nil when those
// subsystems are disabled.
func New(db *database.Database, coord *pipeline.Coordinator, detector DetectorStatus, broker Broker, hub *ws.EventHub, m *metrics.Metrics, authenticator *auth.Authenticator, snapshotDir string) *Server {
	return &Server{
		db:          db,
		coord:       coord,
		detector:    detector,
		broker:      broker,
		hub:         hub,
		metrics:     m,
		auth:        authenticator,
		snapshotDir: snapshotDir,
		started:     time.Now(),
	}
}

// Handler builds the route table. Everything under /api/v1 except login is
// behind the auth middleware.
func (s *Server) Handler() http.Handler {
	authed := middleware.Auth(s.auth)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/cameras", s.listCameras)
	api.HandleFunc("POST /api/v1/cameras", s.createCamera)
	api.HandleFunc("GET /api/v1/cameras/{id}", s.getCamera)
	api.HandleFunc("PUT /api/v1/cameras/{id}", s.updateCamera)
	api.HandleFunc("DELETE /api/v1/cameras/{id}", s.deleteCamera)
	api.HandleFunc("POST /api/v1/cameras/{id}/start", s.startCamera)
	api.HandleFunc("POST /api/v1/cameras/{id}/stop", s.stopCamera)

	api.HandleFunc("GET /api/v1/zones", s.listZones)
	api.HandleFunc("POST /api/v1/zones", s.createZone)
	api.HandleFunc("PUT /api/v1/zones/{id}", s.updateZone)
	api.HandleFunc("DELETE /api/v1/zones/{id}", s.deleteZone)

	api.HandleFunc("GET /api/v1/events", s.listEvents)
	api.HandleFunc("GET /api/v1/events/stats", s.eventStats)
	api.HandleFunc("GET /api/v1/events/{id}", s.getEvent)
	api.HandleFunc("PUT /api/v1/events/{id}/status", s.updateEventStatus)

	api.HandleFunc("GET /api/v1/health", s.health)
	api.HandleFunc("GET /api/v1/status", s.systemMetrics)
	api.HandleFunc("GET /api/v1/metrics", s.systemMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.root)
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.Handle("/api/v1/", authed(api))
	mux.HandleFunc("GET /ws/events", s.wsEvents)
	mux.Handle("GET /metrics", s.metrics.Handler())
	if s.snapshotDir != "" {
		mux.Handle("GET /snapshots/", http.StripPrefix("/snapshots/",
			http.FileServer(http.Dir(s.snapshotDir))))
	}

	return middleware.RequestID(mux)
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "SentinelSight API",
		"version": apiVersion,
		"status":  "running",
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.auth.Authenticate(req.Username, req.Password)
	if err == auth.ErrAuthDisabled {
		writeError(w, http.StatusBadRequest, "authentication is disabled")
		return
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
