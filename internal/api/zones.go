package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/database"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

type zoneRequest struct {
	CameraID    int64          `json:"camera_id"`
	Name        string         `json:"name"`
	Type        model.ZoneType `json:"type"`
	Coordinates [][2]int       `json:"coordinates"`
}

func (r zoneRequest) points() []model.Point {
	points := make([]model.Point, len(r.Coordinates))
	for i, c := range r.Coordinates {
		points[i] = model.Point{X: c[0], Y: c[1]}
	}
	return points
}

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	var zones []*model.Zone
	var err error

	if v := r.URL.Query().Get("camera_id"); v != "" {
		cameraID, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid camera_id")
			return
		}
		zones, err = s.db.ZonesForCamera(cameraID)
	} else {
		zones, err = s.db.ListZones()
	}
	if err != nil {
		log.Printf("[API] Listing zones: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list zones")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones, "count": len(zones)})
}

func (s *Server) createZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.CameraID == 0 {
		writeError(w, http.StatusBadRequest, "camera_id and name are required")
		return
	}

	if _, err := s.db.GetCamera(req.CameraID); errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}

	zone, err := s.db.CreateZone(req.CameraID, req.Name, req.Type, req.points())
	if errors.Is(err, database.ErrInvalidZone) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("[API] Creating zone: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create zone")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"zone": zone, "status": "created"})
}

func (s *Server) updateZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := database.ZoneUpdate{}
	if req.Name != "" {
		update.Name = &req.Name
	}
	if req.Type != "" {
		update.Type = &req.Type
	}
	if req.Coordinates != nil {
		update.Points = req.points()
	}

	zone, err := s.db.UpdateZone(id, update)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	if errors.Is(err, database.ErrInvalidZone) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("[API] Updating zone %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update zone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zone": zone, "status": "updated"})
}

func (s *Server) deleteZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := s.db.DeleteZone(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "zone not found")
		return
	}
	if err != nil {
		log.Printf("[API] Deleting zone %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete zone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
