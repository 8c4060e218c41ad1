package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/database"
)

const maxEventPageSize = 500

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.EventFilter{
		RuleType: q.Get("rule"),
		Priority: q.Get("priority"),
		Status:   q.Get("status"),
		Limit:    100,
	}

	if v := q.Get("camera_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid camera_id")
			return
		}
		filter.CameraID = id
	}
	if v := q.Get("from_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from_time, expected RFC3339")
			return
		}
		filter.From = t
	}
	if v := q.Get("to_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to_time, expected RFC3339")
			return
		}
		filter.To = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxEventPageSize {
			n = maxEventPageSize
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	events, total, err := s.db.QueryEvents(filter)
	if err != nil {
		log.Printf("[API] Querying events: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *Server) eventStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cameraID int64
	if v := q.Get("camera_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid camera_id")
			return
		}
		cameraID = id
	}
	hours := 24
	if v := q.Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		hours = n
	}

	stats, err := s.db.EventStats(cameraID, hours)
	if err != nil {
		log.Printf("[API] Event stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get event stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	event, err := s.db.GetEvent(id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		log.Printf("[API] Getting event %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

type eventStatusRequest struct {
	Status string `json:"status"`
}

var validEventStatuses = map[string]bool{
	"new":       true,
	"reviewed":  true,
	"dismissed": true,
}

func (s *Server) updateEventStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req eventStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validEventStatuses[req.Status] {
		writeError(w, http.StatusBadRequest, "status must be new, reviewed or dismissed")
		return
	}

	event, err := s.db.UpdateEventStatus(id, req.Status)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		log.Printf("[API] Updating event %d status: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event, "status": "updated"})
}
