package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// IngestorConfig tunes the per-camera capture behavior. The zero value is
// usable; missing fields fall back to the defaults below.
type IngestorConfig struct {
	QueueSize   int           // frame queue capacity (default 100)
	MaxRetries  int           // reconnect attempts before giving up (default 10)
	BackoffBase time.Duration // unit for exponential backoff (default 1s)
	BackoffMax  time.Duration // backoff ceiling (default 60s)
	FPSWindow   int           // capture timestamps kept for fps (default 30)
}

func (c IngestorConfig) withDefaults() IngestorConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 60 * time.Second
	}
	if c.FPSWindow <= 0 {
		c.FPSWindow = 30
	}
	return c
}

type statusUpdate struct {
	cameraID int64
	status   model.CameraStatus
	fps      float64
}

// Ingestor owns one capture goroutine per camera: it opens the stream,
// reads frames into the camera's FrameQueue, tracks fps over a sliding
// window, reconnects with capped exponential backoff and reports status
// transitions to the CameraStatusSink. Status writes are decoupled from the
// capture loops through a buffered channel so a slow sink never stalls
// capture.
type Ingestor struct {
	source  StreamSource
	status  CameraStatusSink
	cfg     IngestorConfig
	metrics *metrics.Metrics

	mu       sync.Mutex
	captures map[int64]*capture
	wg       sync.WaitGroup

	statusCh  chan statusUpdate
	drainDone chan struct{}
}

// NewIngestor creates an ingestor and starts its status-drain goroutine.
// metrics may be nil.
func NewIngestor(source StreamSource, status CameraStatusSink, cfg IngestorConfig, m *metrics.Metrics) *Ingestor {
	ing := &Ingestor{
		source:    source,
		status:    status,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		captures:  make(map[int64]*capture),
		statusCh:  make(chan statusUpdate, 256),
		drainDone: make(chan struct{}),
	}
	go ing.drainStatus()
	return ing
}

func (ing *Ingestor) drainStatus() {
	defer close(ing.drainDone)
	for u := range ing.statusCh {
		if ing.status == nil {
			continue
		}
		if err := ing.status.UpdateStatus(u.cameraID, u.status, u.fps); err != nil {
			log.Printf("[Ingest] Camera %d: status update failed: %v", u.cameraID, err)
		}
	}
}

// pushStatus queues a status update. Transitions are delivered reliably;
// per-frame fps refreshes may be dropped under load.
func (ing *Ingestor) pushStatus(u statusUpdate, reliable bool) {
	if reliable {
		ing.statusCh <- u
		return
	}
	select {
	case ing.statusCh <- u:
	default:
	}
}

// StartCamera launches the capture goroutine for a camera. Re-invoking
// while the capture is still running is a no-op.
func (ing *Ingestor) StartCamera(cameraID int64, url string) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	if c, ok := ing.captures[cameraID]; ok && c.alive() {
		log.Printf("[Ingest] Camera %d already running", cameraID)
		return
	}

	c := &capture{
		ing:      ing,
		cameraID: cameraID,
		url:      url,
		queue:    NewFrameQueue(ing.cfg.QueueSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	ing.captures[cameraID] = c

	ing.wg.Add(1)
	go c.run()
	log.Printf("[Ingest] Started camera %d: %s", cameraID, url)
}

// StopCamera signals the capture goroutine to stop. The call returns once
// the stop is signaled, not once the goroutine has exited.
func (ing *Ingestor) StopCamera(cameraID int64) {
	ing.mu.Lock()
	c, ok := ing.captures[cameraID]
	ing.mu.Unlock()
	if !ok {
		return
	}
	c.stop()
	log.Printf("[Ingest] Stopping camera %d", cameraID)
}

// StopAll signals every capture goroutine to stop.
func (ing *Ingestor) StopAll() {
	ing.mu.Lock()
	captures := make([]*capture, 0, len(ing.captures))
	for _, c := range ing.captures {
		captures = append(captures, c)
	}
	ing.mu.Unlock()

	for _, c := range captures {
		c.stop()
	}
}

// Close stops all captures, waits for them to exit and shuts down the
// status drain.
func (ing *Ingestor) Close() {
	ing.StopAll()
	ing.wg.Wait()
	close(ing.statusCh)
	<-ing.drainDone
}

// GetFrame pops the next frame for a camera, waiting up to timeout.
func (ing *Ingestor) GetFrame(cameraID int64, timeout time.Duration) (*model.Frame, bool) {
	ing.mu.Lock()
	c, ok := ing.captures[cameraID]
	ing.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.queue.Pop(timeout)
}

// QueueDepth returns the current frame queue occupancy for a camera.
func (ing *Ingestor) QueueDepth(cameraID int64) int {
	ing.mu.Lock()
	c, ok := ing.captures[cameraID]
	ing.mu.Unlock()
	if !ok {
		return 0
	}
	return c.queue.Depth()
}

// TotalQueueDepth sums the queue depth across all cameras.
func (ing *Ingestor) TotalQueueDepth() int {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	total := 0
	for _, c := range ing.captures {
		total += c.queue.Depth()
	}
	return total
}

// Running reports whether a camera's capture goroutine is alive.
func (ing *Ingestor) Running(cameraID int64) bool {
	ing.mu.Lock()
	c, ok := ing.captures[cameraID]
	ing.mu.Unlock()
	return ok && c.alive()
}

// capture is the per-camera capture state. The run goroutine owns all
// fields except conn, which stop() closes to unblock a pending read.
type capture struct {
	ing      *Ingestor
	cameraID int64
	url      string
	queue    *FrameQueue

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	connMu sync.Mutex
	conn   StreamConn

	seq         uint64
	fpsTimes    []time.Time
	lastDropped uint64
}

func (c *capture) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *capture) stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.closeConn()
	})
}

func (c *capture) setConn(conn StreamConn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *capture) current() StreamConn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *capture) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// run is the capture loop: Disconnected -> Connecting -> Online ->
// Reconnecting -> (Online | terminal Offline). Transient open/read failures
// are retried with backoff; the terminal state is reported through the
// status sink, never raised.
func (c *capture) run() {
	defer c.ing.wg.Done()
	defer func() {
		c.closeConn()
		c.ing.pushStatus(statusUpdate{c.cameraID, model.CameraOffline, 0}, true)
		log.Printf("[Ingest] Camera %d: capture loop stopped", c.cameraID)
		close(c.done)
	}()

	retries := 0
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if c.current() == nil {
			c.ing.pushStatus(statusUpdate{c.cameraID, model.CameraConnecting, 0}, true)
			log.Printf("[Ingest] Camera %d: connecting to %s", c.cameraID, c.url)

			conn, err := c.ing.source.Open(c.url)
			if err != nil {
				if c.fail(err, &retries) {
					return
				}
				continue
			}
			c.setConn(conn)
			retries = 0
			c.fpsTimes = c.fpsTimes[:0]
			c.ing.pushStatus(statusUpdate{c.cameraID, model.CameraOnline, 0}, true)
			log.Printf("[Ingest] Camera %d: connected", c.cameraID)
		}

		conn := c.current()
		if conn == nil {
			// stop() raced the connect; loop back and observe stopCh.
			continue
		}

		data, err := conn.ReadFrame()
		if err != nil {
			select {
			case <-c.stopCh:
				return
			default:
			}
			if c.fail(err, &retries) {
				return
			}
			continue
		}

		now := time.Now()
		c.seq++
		c.queue.Push(&model.Frame{CameraID: c.cameraID, Seq: c.seq, Data: data, Timestamp: now})
		c.ing.metrics.IncFramesCaptured()
		if d := c.queue.Dropped(); d > c.lastDropped {
			c.ing.metrics.AddFramesDropped(d - c.lastDropped)
			c.lastDropped = d
		}

		c.trackFPS(now)
	}
}

// trackFPS records the capture timestamp in the sliding window and pushes
// the instantaneous rate to the status sink.
func (c *capture) trackFPS(now time.Time) {
	c.fpsTimes = append(c.fpsTimes, now)
	if n := len(c.fpsTimes); n > c.ing.cfg.FPSWindow {
		c.fpsTimes = c.fpsTimes[n-c.ing.cfg.FPSWindow:]
	}
	if len(c.fpsTimes) < 2 {
		return
	}
	span := c.fpsTimes[len(c.fpsTimes)-1].Sub(c.fpsTimes[0]).Seconds()
	if span <= 0 {
		return
	}
	fps := float64(len(c.fpsTimes)-1) / span
	c.ing.pushStatus(statusUpdate{c.cameraID, model.CameraOnline, fps}, false)
}

// fail handles an open or read failure. It returns true when the capture
// must exit: either retries are exhausted or a stop arrived during backoff.
func (c *capture) fail(err error, retries *int) bool {
	log.Printf("[Ingest] Camera %d: stream error: %v", c.cameraID, err)
	c.ing.metrics.IncReadErrors()
	c.closeConn()
	c.ing.pushStatus(statusUpdate{c.cameraID, model.CameraError, 0}, true)

	*retries++
	if *retries > c.ing.cfg.MaxRetries {
		log.Printf("[Ingest] Camera %d: max retries exceeded, giving up", c.cameraID)
		return true
	}

	wait := backoff(c.ing.cfg, *retries)
	log.Printf("[Ingest] Camera %d: retrying in %s (attempt %d/%d)",
		c.cameraID, wait, *retries, c.ing.cfg.MaxRetries)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-c.stopCh:
		return true
	}
}

// backoff returns base*2^retries capped at the configured maximum.
func backoff(cfg IngestorConfig, retries int) time.Duration {
	if retries > 30 {
		return cfg.BackoffMax
	}
	d := cfg.BackoffBase << uint(retries)
	if d > cfg.BackoffMax || d <= 0 {
		return cfg.BackoffMax
	}
	return d
}
