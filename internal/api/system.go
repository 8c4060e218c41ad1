package api

import (
	"log"
	"math"
	"net/http"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.db.ListCameras()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	online := 0
	for _, cam := range cameras {
		if cam.Status == model.CameraOnline {
			online++
		}
	}

	mqttState := "disabled"
	if s.broker != nil {
		mqttState = "disconnected"
		if s.broker.IsConnected() {
			mqttState = "ok"
		}
	}

	inference := map[string]any{"ready": false, "avg_inference_time_ms": 0.0}
	if s.detector != nil {
		inference["ready"] = s.detector.IsReady()
		inference["avg_inference_time_ms"] = round2(s.detector.AvgLatencyMs())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"subsystems": map[string]any{
			"database": "ok",
			"mqtt":     mqttState,
			"cameras": map[string]int{
				"total":   len(cameras),
				"online":  online,
				"offline": len(cameras) - online,
			},
			"inference": inference,
		},
		"uptime_seconds": round2(time.Since(s.started).Seconds()),
	})
}

type cameraMetrics struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	Status          model.CameraStatus `json:"status"`
	FPS             float64            `json:"fps"`
	QueueDepth      int                `json:"queue_depth"`
	ProcessingAlive bool               `json:"processing_alive"`
}

func (s *Server) systemMetrics(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.db.ListCameras()
	if err != nil {
		log.Printf("[API] Listing cameras for metrics: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}

	pipelines := s.coord.Status()
	perCamera := make([]cameraMetrics, 0, len(cameras))
	for _, cam := range cameras {
		p := pipelines[cam.ID]
		perCamera = append(perCamera, cameraMetrics{
			ID:              cam.ID,
			Name:            cam.Name,
			Status:          cam.Status,
			FPS:             round2(cam.FPS),
			QueueDepth:      p.QueueDepth,
			ProcessingAlive: p.ProcessingAlive,
		})
	}

	var latency float64
	if s.detector != nil {
		latency = round2(s.detector.AvgLatencyMs())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cameras": perCamera,
		"pipeline": map[string]any{
			"frames_captured":       s.metrics.FramesCaptured.Load(),
			"frames_dropped":        s.metrics.FramesDropped.Load(),
			"detections_run":        s.metrics.DetectionsRun.Load(),
			"process_errors":        s.metrics.ProcessErrors.Load(),
			"events_intrusion":      s.metrics.EventsIntrusion.Load(),
			"events_loitering":      s.metrics.EventsLoitering.Load(),
			"avg_inference_time_ms": latency,
		},
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
