package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/database"
)

type cameraCreateRequest struct {
	Name        string `json:"name"`
	RTSPURL     string `json:"rtsp_url"`
	LocationTag string `json:"location_tag"`
}

type cameraUpdateRequest struct {
	Name        *string `json:"name"`
	RTSPURL     *string `json:"rtsp_url"`
	LocationTag *string `json:"location_tag"`
}

func (s *Server) listCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.db.ListCameras()
	if err != nil {
		log.Printf("[API] Listing cameras: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list cameras")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cameras": cameras, "count": len(cameras)})
}

func (s *Server) createCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.RTSPURL == "" {
		writeError(w, http.StatusBadRequest, "name and rtsp_url are required")
		return
	}

	if _, err := s.db.GetCameraByURL(req.RTSPURL); err == nil {
		writeError(w, http.StatusBadRequest, "camera with this RTSP URL already exists")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		log.Printf("[API] Checking camera URL: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create camera")
		return
	}

	cam, err := s.db.CreateCamera(req.Name, req.RTSPURL, req.LocationTag)
	if err != nil {
		log.Printf("[API] Creating camera: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create camera")
		return
	}

	if err := s.coord.StartCamera(cam.ID); err != nil {
		log.Printf("[API] Starting pipeline for new camera %d: %v", cam.ID, err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"camera": cam, "status": "created"})
}

func (s *Server) getCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cam, err := s.db.GetCamera(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}
	if err != nil {
		log.Printf("[API] Getting camera %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"camera": cam})
}

func (s *Server) updateCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cameraUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cam, err := s.db.UpdateCamera(id, database.CameraUpdate{
		Name:        req.Name,
		LocationTag: req.LocationTag,
		RTSPURL:     req.RTSPURL,
	})
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}
	if err != nil {
		log.Printf("[API] Updating camera %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update camera")
		return
	}

	// A URL change requires reconnecting to the new stream.
	if req.RTSPURL != nil {
		s.coord.StopCamera(id)
		if err := s.coord.StartCamera(id); err != nil {
			log.Printf("[API] Restarting pipeline for camera %d: %v", id, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"camera": cam, "status": "updated"})
}

func (s *Server) deleteCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.coord.StopCamera(id)

	err := s.db.DeleteCamera(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "camera not found")
		return
	}
	if err != nil {
		log.Printf("[API] Deleting camera %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *Server) startCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.coord.StartCamera(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "camera not found")
			return
		}
		log.Printf("[API] Starting camera %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to start camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *Server) stopCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.coord.StopCamera(id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
