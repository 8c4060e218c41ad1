// Package metrics exposes pipeline counters through a private Prometheus
// registry. Counters are plain atomics updated from the hot paths; the
// registry reads them lazily on scrape. All methods are nil-receiver safe
// so components can run without metrics wired.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	FramesCaptured  atomic.Uint64
	FramesDropped   atomic.Uint64
	ReadErrors      atomic.Uint64
	DetectionsRun   atomic.Uint64
	ProcessErrors   atomic.Uint64
	EventsIntrusion atomic.Uint64
	EventsLoitering atomic.Uint64
	SnapshotErrors  atomic.Uint64
	NotifyErrors    atomic.Uint64

	mu           sync.RWMutex
	queueDepthFn func() float64
	latencyFn    func() float64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"sentinel_frames_captured_total", "Total frames read from camera streams", &m.FramesCaptured},
		{"sentinel_frames_dropped_total", "Total frames dropped due to consumer lag", &m.FramesDropped},
		{"sentinel_stream_read_errors_total", "Total stream open/read failures", &m.ReadErrors},
		{"sentinel_detections_run_total", "Total frames sent to the detection service", &m.DetectionsRun},
		{"sentinel_process_errors_total", "Total processing loop iteration failures", &m.ProcessErrors},
		{"sentinel_events_intrusion_total", "Total intrusion events created", &m.EventsIntrusion},
		{"sentinel_events_loitering_total", "Total loitering events created", &m.EventsLoitering},
		{"sentinel_snapshot_errors_total", "Total snapshot save failures", &m.SnapshotErrors},
		{"sentinel_notify_errors_total", "Total notification publish failures", &m.NotifyErrors},
	}

	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentinel_frame_queue_depth",
			Help: "Frames currently buffered across all camera queues",
		},
		func() float64 {
			m.mu.RLock()
			fn := m.queueDepthFn
			m.mu.RUnlock()
			if fn == nil {
				return 0
			}
			return fn()
		},
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentinel_inference_latency_ms",
			Help: "Average detection service latency in milliseconds",
		},
		func() float64 {
			m.mu.RLock()
			fn := m.latencyFn
			m.mu.RUnlock()
			if fn == nil {
				return 0
			}
			return fn()
		},
	))
}

// SetQueueDepthFunc installs the callback used by the queue depth gauge.
func (m *Metrics) SetQueueDepthFunc(fn func() float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.queueDepthFn = fn
	m.mu.Unlock()
}

// SetLatencyFunc installs the callback used by the inference latency gauge.
func (m *Metrics) SetLatencyFunc(fn func() float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.latencyFn = fn
	m.mu.Unlock()
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncFramesCaptured() {
	if m != nil {
		m.FramesCaptured.Add(1)
	}
}

func (m *Metrics) AddFramesDropped(n uint64) {
	if m != nil && n > 0 {
		m.FramesDropped.Add(n)
	}
}

func (m *Metrics) IncReadErrors() {
	if m != nil {
		m.ReadErrors.Add(1)
	}
}

func (m *Metrics) IncDetectionsRun() {
	if m != nil {
		m.DetectionsRun.Add(1)
	}
}

func (m *Metrics) IncProcessErrors() {
	if m != nil {
		m.ProcessErrors.Add(1)
	}
}

func (m *Metrics) IncEvent(ruleType string) {
	if m == nil {
		return
	}
	switch ruleType {
	case "intrusion":
		m.EventsIntrusion.Add(1)
	case "loitering":
		m.EventsLoitering.Add(1)
	}
}

func (m *Metrics) IncSnapshotErrors() {
	if m != nil {
		m.SnapshotErrors.Add(1)
	}
}

func (m *Metrics) IncNotifyErrors() {
	if m != nil {
		m.NotifyErrors.Add(1)
	}
}
