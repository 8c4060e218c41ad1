// Package detection talks to the external YOLO inference service over HTTP.
package detection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

const (
	healthCacheTTL = 30 * time.Second
	latencyWindow  = 100
)

// ClientConfig holds configuration for the detection client.
type ClientConfig struct {
	Endpoint            string
	ConfidenceThreshold float64
	Timeout             time.Duration

	// ClassesFilter restricts detection to the named classes. Empty means
	// all classes.
	ClassesFilter []string
}

// Client submits frames to the inference service and tracks its observed
// latency. Safe for concurrent use by multiple processing loops.
type Client struct {
	endpoint      string
	client        *http.Client
	confThreshold float64
	classesFilter string

	mu          sync.RWMutex
	lastHealthy time.Time
	latencies   []float64
	latencySum  float64
}

// wireDetection is a single detection in the service response.
type wireDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// wireResult is the /detect response envelope.
type wireResult struct {
	Detections      []wireDetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
	Device          string          `json:"device"`
}

// healthResponse is the /health response.
type healthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewClient creates a detection client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second // GPU inference can be slow on cold start
	}
	conf := cfg.ConfidenceThreshold
	if conf <= 0 {
		conf = 0.5
	}
	return &Client{
		endpoint:      cfg.Endpoint,
		client:        &http.Client{Timeout: timeout},
		confThreshold: conf,
		classesFilter: strings.Join(cfg.ClassesFilter, ","),
	}
}

// IsReady reports whether the inference service answered a health probe
// recently. A positive result is cached for 30 seconds.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	if time.Since(c.lastHealthy) < healthCacheTTL {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	resp, err := c.client.Get(c.endpoint + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	if !health.ModelLoaded {
		return false
	}

	c.mu.Lock()
	c.lastHealthy = time.Now()
	c.mu.Unlock()
	return true
}

// Detect submits one frame and returns its detections. The service's
// reported inference time feeds the latency window.
func (c *Client) Detect(frame *model.Frame) ([]model.Detection, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(frame.Data); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.3f", c.confThreshold)); err != nil {
		return nil, err
	}
	if c.classesFilter != "" {
		if err := w.WriteField("classes_filter", c.classesFilter); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detection service returned %d: %s", resp.StatusCode, body)
	}

	var result wireResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding detection response: %w", err)
	}

	latency := result.InferenceTimeMs
	if latency <= 0 {
		latency = float64(time.Since(start).Milliseconds())
	}
	c.recordLatency(latency)

	detections := make([]model.Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		if len(d.BBox) != 4 {
			continue
		}
		detections = append(detections, model.Detection{
			ClassName:  d.Class,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			BBox: model.BBox{
				X1: int(d.BBox[0]),
				Y1: int(d.BBox[1]),
				X2: int(d.BBox[2]),
				Y2: int(d.BBox[3]),
			},
		})
	}
	return detections, nil
}

// AvgLatencyMs returns the average inference latency over the sample
// window, zero before the first detection.
func (c *Client) AvgLatencyMs() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.latencies) == 0 {
		return 0
	}
	return c.latencySum / float64(len(c.latencies))
}

func (c *Client) recordLatency(ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, ms)
	c.latencySum += ms
	if len(c.latencies) > latencyWindow {
		c.latencySum -= c.latencies[0]
		c.latencies = c.latencies[1:]
	}
}
