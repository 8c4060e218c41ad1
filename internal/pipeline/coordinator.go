package pipeline

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
)

// CoordinatorConfig tunes the per-camera processing loop.
type CoordinatorConfig struct {
	PopTimeout    time.Duration // frame wait per iteration (default 1s)
	ErrorCooldown time.Duration // pause after a failed iteration (default 1s)
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.PopTimeout <= 0 {
		c.PopTimeout = time.Second
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = time.Second
	}
	return c
}

// PipelineStatus describes one camera's processing pipeline for the status
// endpoint.
type PipelineStatus struct {
	ProcessingAlive bool `json:"processing_alive"`
	QueueDepth      int  `json:"queue_depth"`
}

// Coordinator pairs each camera's capture goroutine with a processing
// goroutine that pulls frames, invokes the detection capability and
// forwards results to the rules engine. Nothing short of an explicit stop
// terminates a processing loop: per-iteration failures are logged and
// followed by a cooldown.
type Coordinator struct {
	ingest   *Ingestor
	detector Detector
	rules    DetectionProcessor
	cameras  CameraStore
	metrics  *metrics.Metrics
	cfg      CoordinatorConfig

	mu    sync.Mutex
	procs map[int64]*processor
}

type processor struct {
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (p *processor) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *processor) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// NewCoordinator wires the pipeline together. metrics may be nil.
func NewCoordinator(ingest *Ingestor, detector Detector, rules DetectionProcessor, cameras CameraStore, cfg CoordinatorConfig, m *metrics.Metrics) *Coordinator {
	c := &Coordinator{
		ingest:   ingest,
		detector: detector,
		rules:    rules,
		cameras:  cameras,
		metrics:  m,
		cfg:      cfg.withDefaults(),
		procs:    make(map[int64]*processor),
	}
	m.SetQueueDepthFunc(func() float64 { return float64(ingest.TotalQueueDepth()) })
	return c
}

// StartCamera starts the capture and processing pair for a camera.
// Idempotent: a second call while running warns and returns nil.
func (c *Coordinator) StartCamera(cameraID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.procs[cameraID]; ok && p.alive() {
		log.Printf("[Coordinator] Processing already running for camera %d", cameraID)
		return nil
	}

	cam, err := c.cameras.GetCamera(cameraID)
	if err != nil {
		return fmt.Errorf("camera %d: %w", cameraID, err)
	}

	c.ingest.StartCamera(cam.ID, cam.RTSPURL)

	p := &processor{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.procs[cameraID] = p
	go c.processLoop(cameraID, p)

	log.Printf("[Coordinator] Started processing for camera %d", cameraID)
	return nil
}

// StopCamera signals the capture and processing goroutines to stop. The
// signal is synchronous; goroutine exit is not.
func (c *Coordinator) StopCamera(cameraID int64) {
	c.mu.Lock()
	p, ok := c.procs[cameraID]
	c.mu.Unlock()

	if ok {
		p.stop()
	}
	c.ingest.StopCamera(cameraID)
	log.Printf("[Coordinator] Stopped processing for camera %d", cameraID)
}

// StartAll starts processing for every camera in the store.
func (c *Coordinator) StartAll() error {
	cams, err := c.cameras.ListCameras()
	if err != nil {
		return fmt.Errorf("listing cameras: %w", err)
	}
	for _, cam := range cams {
		if err := c.StartCamera(cam.ID); err != nil {
			log.Printf("[Coordinator] Failed to start camera %d: %v", cam.ID, err)
		}
	}
	return nil
}

// StopAll signals every pipeline to stop.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.procs))
	for id := range c.procs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.StopCamera(id)
	}
}

// Status returns, per known camera, whether the processing goroutine is
// alive and its frame queue depth.
func (c *Coordinator) Status() map[int64]PipelineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := make(map[int64]PipelineStatus, len(c.procs))
	for id, p := range c.procs {
		status[id] = PipelineStatus{
			ProcessingAlive: p.alive(),
			QueueDepth:      c.ingest.QueueDepth(id),
		}
	}
	return status
}

func (c *Coordinator) processLoop(cameraID int64, p *processor) {
	defer close(p.done)
	log.Printf("[Coordinator] Processing loop started for camera %d", cameraID)

	for {
		select {
		case <-p.stopCh:
			log.Printf("[Coordinator] Processing loop stopped for camera %d", cameraID)
			return
		default:
		}
		c.processOnce(cameraID)
	}
}

// processOnce runs one iteration. Panics and errors are contained here so
// a single bad frame never kills the loop.
func (c *Coordinator) processOnce(cameraID int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Coordinator] Panic in processing loop for camera %d: %v", cameraID, r)
			c.metrics.IncProcessErrors()
			time.Sleep(c.cfg.ErrorCooldown)
		}
	}()

	frame, ok := c.ingest.GetFrame(cameraID, c.cfg.PopTimeout)
	if !ok {
		return
	}

	detections, err := c.detector.Detect(frame)
	if err != nil {
		log.Printf("[Coordinator] Detection error for camera %d: %v", cameraID, err)
		c.metrics.IncProcessErrors()
		time.Sleep(c.cfg.ErrorCooldown)
		return
	}
	c.metrics.IncDetectionsRun()

	if len(detections) > 0 {
		c.rules.ProcessDetections(cameraID, frame, detections)
	}
}
