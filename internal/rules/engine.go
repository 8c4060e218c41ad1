// Package rules evaluates zone-based security rules against per-frame
// detections and emits events with annotated snapshots. One engine instance
// serves every camera pipeline; its occupancy and dedup maps are the only
// cross-pipeline shared state and live under a single mutex.
package rules

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/geometry"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

const (
	// DefaultDedupWindow suppresses repeat events for the same key.
	DefaultDedupWindow = 5 * time.Second

	// occupancyTTL expires occupancy entries not refreshed in time; the
	// object is presumed to have left the zone.
	occupancyTTL = 60 * time.Second

	// trackingGrid is the spatial quantization for the loitering object
	// key. Coarse grid binning stands in for identity tracking: objects in
	// the same cell share a key.
	trackingGrid = 50

	defaultLoiterThreshold = 30 // seconds
)

// ZoneStore provides the zones for a camera. Queried fresh on every
// ProcessDetections call so zone edits apply on the next frame.
type ZoneStore interface {
	ZonesForCamera(cameraID int64) ([]*model.Zone, error)
}

// EventSink persists events and assigns their identity.
type EventSink interface {
	CreateEvent(e *model.Event) (*model.Event, error)
}

// SnapshotWriter persists an annotated snapshot and returns its path.
type SnapshotWriter interface {
	Save(filename string, jpeg []byte) (string, error)
}

// Notifier receives events after they are durably created. Best effort:
// failures are the notifier's to log, never the engine's to propagate.
type Notifier interface {
	PublishEvent(e *model.Event)
}

// LatencyProvider reports the detection capability's average inference
// latency, included in event metadata.
type LatencyProvider interface {
	AvgLatencyMs() float64
}

// ConfigSource returns the current configuration for a rule name. Read per
// invocation so config changes apply immediately.
type ConfigSource func(rule string) model.RuleConfig

type occupancyKey struct {
	zoneID    int64
	objectKey string
}

// Engine is the rules engine.
type Engine struct {
	zones     ZoneStore
	events    EventSink
	snapshots SnapshotWriter
	latency   LatencyProvider
	config    ConfigSource
	notifiers []Notifier
	metrics   *metrics.Metrics

	dedupWindow time.Duration
	now         func() time.Time

	mu        sync.Mutex
	occupancy map[occupancyKey]time.Time
	recent    map[string]time.Time
}

// NewEngine creates a rules engine. snapshots, latency, config, notifiers
// and metrics may each be nil; sensible defaults apply.
func NewEngine(zones ZoneStore, events EventSink, snapshots SnapshotWriter, latency LatencyProvider, config ConfigSource, m *metrics.Metrics, notifiers ...Notifier) *Engine {
	if config == nil {
		config = func(string) model.RuleConfig { return model.RuleConfig{} }
	}
	return &Engine{
		zones:       zones,
		events:      events,
		snapshots:   snapshots,
		latency:     latency,
		config:      config,
		notifiers:   notifiers,
		metrics:     m,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
		occupancy:   make(map[occupancyKey]time.Time),
		recent:      make(map[string]time.Time),
	}
}

// ProcessDetections checks each detection against the camera's zones and
// applies the intrusion and loitering rules, then runs housekeeping. No-op
// when there are no detections or no zones.
func (e *Engine) ProcessDetections(cameraID int64, frame *model.Frame, detections []model.Detection) {
	if len(detections) == 0 {
		return
	}

	zones, err := e.zones.ZonesForCamera(cameraID)
	if err != nil {
		log.Printf("[Rules] Camera %d: zone lookup failed: %v", cameraID, err)
		return
	}
	if len(zones) == 0 {
		return
	}

	for i := range detections {
		det := &detections[i]
		x, y := det.BBox.RefPoint()

		for _, zone := range zones {
			if !geometry.PointInZone(x, y, zone) {
				continue
			}
			e.checkIntrusion(cameraID, zone, det, frame)
			e.checkLoitering(cameraID, zone, det, frame)
		}
	}

	e.cleanupOccupancy()
	e.cleanupRecent()
}

// checkIntrusion fires immediately for any class inside a zone, gated only
// by dedup on (camera, zone, rule, class).
func (e *Engine) checkIntrusion(cameraID int64, zone *model.Zone, det *model.Detection, frame *model.Frame) {
	cfg := e.config(model.RuleIntrusion)
	if !cfg.IsEnabled() {
		return
	}

	hash := fmt.Sprintf("%d_%d_intrusion_%s", cameraID, zone.ID, det.ClassName)
	if e.isDuplicate(hash) {
		return
	}

	priority := cfg.Priority
	if priority == "" {
		priority = "high"
	}

	metadata := map[string]any{
		"zone_id":           zone.ID,
		"zone_name":         zone.Name,
		"inference_time_ms": e.avgLatency(),
	}

	e.emit(cameraID, model.RuleIntrusion, zone, det, frame, priority, metadata, hash)
	log.Printf("[Rules] Intrusion event: %s in zone %q (camera %d)", det.ClassName, zone.Name, cameraID)
}

// checkLoitering tracks person dwell time per spatial grid key and fires
// once the dwell reaches the threshold. The occupancy entry is deleted on
// fire so a continuously present person re-arms for another full period.
func (e *Engine) checkLoitering(cameraID int64, zone *model.Zone, det *model.Detection, frame *model.Frame) {
	cfg := e.config(model.RuleLoitering)
	if !cfg.IsEnabled() {
		return
	}
	if det.ClassName != "person" {
		return
	}

	threshold := cfg.ThresholdSeconds
	if threshold <= 0 {
		threshold = defaultLoiterThreshold
	}

	x, y := det.BBox.RefPoint()
	objectKey := fmt.Sprintf("%d_%d", x/trackingGrid, y/trackingGrid)
	key := occupancyKey{zoneID: zone.ID, objectKey: objectKey}
	now := e.now()

	e.mu.Lock()
	firstSeen, seen := e.occupancy[key]
	if !seen {
		e.occupancy[key] = now
		e.mu.Unlock()
		return
	}
	dwell := now.Sub(firstSeen)
	e.mu.Unlock()

	if dwell < time.Duration(threshold)*time.Second {
		return
	}

	hash := fmt.Sprintf("%d_%d_loitering_%s", cameraID, zone.ID, objectKey)
	if e.isDuplicate(hash) {
		return
	}

	priority := cfg.Priority
	if priority == "" {
		priority = "medium"
	}

	metadata := map[string]any{
		"zone_id":           zone.ID,
		"zone_name":         zone.Name,
		"duration_seconds":  int(dwell.Seconds()),
		"inference_time_ms": e.avgLatency(),
	}

	e.emit(cameraID, model.RuleLoitering, zone, det, frame, priority, metadata, hash)

	e.mu.Lock()
	delete(e.occupancy, key)
	e.mu.Unlock()

	log.Printf("[Rules] Loitering event: person in zone %q for %ds (camera %d)",
		zone.Name, int(dwell.Seconds()), cameraID)
}

// emit saves the snapshot, persists the event, records the dedup entry and
// notifies sinks. Snapshot failure degrades to an empty path; notification
// failure never affects the event.
func (e *Engine) emit(cameraID int64, ruleType string, zone *model.Zone, det *model.Detection, frame *model.Frame, priority string, metadata map[string]any, hash string) {
	now := e.now()
	snapshotPath := e.saveSnapshot(cameraID, ruleType, det, frame, now)

	bbox := det.BBox
	event, err := e.events.CreateEvent(&model.Event{
		CameraID:     cameraID,
		Timestamp:    now,
		RuleType:     ruleType,
		ObjectType:   det.ClassName,
		Confidence:   det.Confidence,
		BBox:         &bbox,
		SnapshotPath: snapshotPath,
		Priority:     priority,
		Metadata:     metadata,
	})
	if err != nil {
		log.Printf("[Rules] Failed to create %s event for camera %d: %v", ruleType, cameraID, err)
		return
	}

	e.mu.Lock()
	e.recent[hash] = now
	e.mu.Unlock()

	e.metrics.IncEvent(ruleType)

	for _, n := range e.notifiers {
		n.PublishEvent(event)
	}
}

// saveSnapshot annotates a copy of the frame and writes it. Any failure is
// non-fatal and yields an empty path.
func (e *Engine) saveSnapshot(cameraID int64, ruleType string, det *model.Detection, frame *model.Frame, now time.Time) string {
	if e.snapshots == nil || frame == nil || len(frame.Data) == 0 {
		return ""
	}

	annotated, err := Annotate(frame.Data, det.BBox, now)
	if err != nil {
		log.Printf("[Rules] Failed to annotate snapshot for camera %d: %v", cameraID, err)
		e.metrics.IncSnapshotErrors()
		return ""
	}

	filename := fmt.Sprintf("cam%d_%s_%s.jpg", cameraID, ruleType, now.Format("20060102_150405"))
	path, err := e.snapshots.Save(filename, annotated)
	if err != nil {
		log.Printf("[Rules] Failed to save snapshot %s: %v", filename, err)
		e.metrics.IncSnapshotErrors()
		return ""
	}
	return path
}

// isDuplicate reports whether the event hash fired within the dedup
// window. The window is exclusive: a key re-arms strictly after the window
// elapses.
func (e *Engine) isDuplicate(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.recent[hash]
	return ok && e.now().Sub(last) < e.dedupWindow
}

// cleanupOccupancy purges entries not refreshed within occupancyTTL.
func (e *Engine) cleanupOccupancy() {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, firstSeen := range e.occupancy {
		if now.Sub(firstSeen) > occupancyTTL {
			delete(e.occupancy, key)
		}
	}
}

// cleanupRecent purges dedup entries older than the window.
func (e *Engine) cleanupRecent() {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for hash, last := range e.recent {
		if now.Sub(last) > e.dedupWindow {
			delete(e.recent, hash)
		}
	}
}

func (e *Engine) avgLatency() float64 {
	if e.latency == nil {
		return 0
	}
	return e.latency.AvgLatencyMs()
}
