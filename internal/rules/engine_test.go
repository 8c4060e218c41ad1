package rules

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

type fakeZoneStore struct {
	zones []*model.Zone
	err   error
}

func (f *fakeZoneStore) ZonesForCamera(cameraID int64) ([]*model.Zone, error) {
	return f.zones, f.err
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []*model.Event
	err    error
}

func (f *fakeEventSink) CreateEvent(e *model.Event) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e.ID = int64(len(f.events) + 1)
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeEventSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeEventSink) last() *model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

type fakeSnapshotWriter struct {
	saved []string
	err   error
}

func (f *fakeSnapshotWriter) Save(filename string, jpeg []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, filename)
	return "/snapshots/" + filename, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*model.Event
}

func (f *fakeNotifier) PublishEvent(e *model.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

// testClock is a manually advanced clock for deterministic timing tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func rectZone(id int64, name string) *model.Zone {
	return &model.Zone{
		ID:       id,
		CameraID: 1,
		Name:     name,
		Type:     model.ZoneRectangle,
		Points:   []model.Point{{X: 0, Y: 0}, {X: 100, Y: 100}},
	}
}

func personAt(x1, y1, x2, y2 int) model.Detection {
	return model.Detection{
		ClassName:  "person",
		Confidence: 0.92,
		BBox:       model.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
	}
}

func newTestEngine(t *testing.T, zones *fakeZoneStore, events *fakeEventSink, cfg ConfigSource) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	e := NewEngine(zones, events, nil, nil, cfg, nil)
	e.now = clock.Now
	return e, clock
}

func TestIntrusionEventFields(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(7, "entrance")}}
	events := &fakeEventSink{}
	e, _ := newTestEngine(t, zones, events, nil)

	// Bottom-center (50, 90) lies inside the zone even though the box top
	// does not matter.
	det := personAt(40, 40, 60, 90)
	e.ProcessDetections(1, nil, []model.Detection{det})

	if events.count() != 1 {
		t.Fatalf("expected 1 event, got %d", events.count())
	}
	ev := events.last()
	if ev.RuleType != model.RuleIntrusion {
		t.Errorf("rule type = %q, want intrusion", ev.RuleType)
	}
	if ev.ObjectType != "person" {
		t.Errorf("object type = %q, want person", ev.ObjectType)
	}
	if ev.Priority != "high" {
		t.Errorf("priority = %q, want high", ev.Priority)
	}
	if ev.CameraID != 1 {
		t.Errorf("camera id = %d, want 1", ev.CameraID)
	}
	if ev.BBox == nil || *ev.BBox != det.BBox {
		t.Errorf("bbox = %+v, want %+v", ev.BBox, det.BBox)
	}
	if ev.Metadata["zone_id"] != int64(7) {
		t.Errorf("metadata zone_id = %v, want 7", ev.Metadata["zone_id"])
	}
	if ev.Metadata["zone_name"] != "entrance" {
		t.Errorf("metadata zone_name = %v, want entrance", ev.Metadata["zone_name"])
	}
	if ev.SnapshotPath != "" {
		t.Errorf("snapshot path = %q, want empty without a writer", ev.SnapshotPath)
	}
}

func TestIntrusionOutsideZone(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	e, _ := newTestEngine(t, zones, events, nil)

	// Bottom-center (150, 290) is outside the 100x100 zone.
	e.ProcessDetections(1, nil, []model.Detection{personAt(140, 240, 160, 290)})

	if events.count() != 0 {
		t.Fatalf("expected no events, got %d", events.count())
	}
}

func TestIntrusionDedup(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	e, clock := newTestEngine(t, zones, events, nil)

	det := personAt(40, 40, 60, 90)
	e.ProcessDetections(1, nil, []model.Detection{det})
	clock.Advance(2 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})

	if events.count() != 1 {
		t.Fatalf("expected 1 event within the dedup window, got %d", events.count())
	}

	clock.Advance(4 * time.Second) // 6s since the first event
	e.ProcessDetections(1, nil, []model.Detection{det})

	if events.count() != 2 {
		t.Fatalf("expected 2 events after the dedup window, got %d", events.count())
	}
}

func TestIntrusionDedupPerClass(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	e, _ := newTestEngine(t, zones, events, nil)

	car := model.Detection{ClassName: "car", Confidence: 0.8, BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 50}}
	e.ProcessDetections(1, nil, []model.Detection{personAt(40, 40, 60, 90), car})

	if events.count() != 2 {
		t.Fatalf("expected separate events per class, got %d", events.count())
	}
}

func TestLoiteringFiresAfterThreshold(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "lobby")}}
	events := &fakeEventSink{}
	threshold := 30
	cfg := func(rule string) model.RuleConfig {
		if rule == model.RuleIntrusion {
			disabled := false
			return model.RuleConfig{Enabled: &disabled}
		}
		return model.RuleConfig{ThresholdSeconds: threshold}
	}
	e, clock := newTestEngine(t, zones, events, cfg)

	det := personAt(40, 40, 60, 90)

	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 0 {
		t.Fatalf("first sighting must not fire, got %d events", events.count())
	}

	clock.Advance(29 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 0 {
		t.Fatalf("below threshold must not fire, got %d events", events.count())
	}

	clock.Advance(2 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 1 {
		t.Fatalf("expected loitering event past threshold, got %d", events.count())
	}
	ev := events.last()
	if ev.RuleType != model.RuleLoitering {
		t.Errorf("rule type = %q, want loitering", ev.RuleType)
	}
	if ev.Priority != "medium" {
		t.Errorf("priority = %q, want medium", ev.Priority)
	}
	if ev.Metadata["duration_seconds"] != 31 {
		t.Errorf("duration_seconds = %v, want 31", ev.Metadata["duration_seconds"])
	}
}

func TestLoiteringRearmsAfterFiring(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "lobby")}}
	events := &fakeEventSink{}
	cfg := func(rule string) model.RuleConfig {
		if rule == model.RuleIntrusion {
			disabled := false
			return model.RuleConfig{Enabled: &disabled}
		}
		return model.RuleConfig{ThresholdSeconds: 10}
	}
	e, clock := newTestEngine(t, zones, events, cfg)

	det := personAt(40, 40, 60, 90)
	e.ProcessDetections(1, nil, []model.Detection{det})
	clock.Advance(11 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})

	if events.count() != 1 {
		t.Fatalf("expected 1 loitering event, got %d", events.count())
	}

	// Firing deleted the occupancy entry, so the person must dwell another
	// full threshold before the next event.
	clock.Advance(6 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 1 {
		t.Fatalf("re-armed tracker fired early, got %d events", events.count())
	}

	clock.Advance(11 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 2 {
		t.Fatalf("expected second loitering event after re-dwell, got %d", events.count())
	}
}

func TestLoiteringIgnoresNonPersons(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "lobby")}}
	events := &fakeEventSink{}
	cfg := func(rule string) model.RuleConfig {
		if rule == model.RuleIntrusion {
			disabled := false
			return model.RuleConfig{Enabled: &disabled}
		}
		return model.RuleConfig{ThresholdSeconds: 1}
	}
	e, clock := newTestEngine(t, zones, events, cfg)

	car := model.Detection{ClassName: "car", Confidence: 0.8, BBox: model.BBox{X1: 10, Y1: 10, X2: 30, Y2: 50}}
	e.ProcessDetections(1, nil, []model.Detection{car})
	clock.Advance(5 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{car})

	if events.count() != 0 {
		t.Fatalf("loitering must only track persons, got %d events", events.count())
	}
	if len(e.occupancy) != 0 {
		t.Fatalf("non-person created occupancy entries: %d", len(e.occupancy))
	}
}

func TestOccupancyPurgedAfterAbsence(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "lobby")}}
	events := &fakeEventSink{}
	cfg := func(rule string) model.RuleConfig {
		if rule == model.RuleIntrusion {
			disabled := false
			return model.RuleConfig{Enabled: &disabled}
		}
		return model.RuleConfig{ThresholdSeconds: 300}
	}
	e, clock := newTestEngine(t, zones, events, cfg)

	e.ProcessDetections(1, nil, []model.Detection{personAt(40, 40, 60, 90)})
	if len(e.occupancy) != 1 {
		t.Fatalf("expected 1 occupancy entry, got %d", len(e.occupancy))
	}

	// Another person in a different grid cell 61s later; the stale entry
	// must be purged by housekeeping.
	clock.Advance(61 * time.Second)
	e.ProcessDetections(1, nil, []model.Detection{personAt(0, 0, 10, 20)})

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.occupancy) != 1 {
		t.Fatalf("stale occupancy entry not purged, have %d entries", len(e.occupancy))
	}
	stale := occupancyKey{zoneID: 1, objectKey: "1_1"}
	if _, ok := e.occupancy[stale]; ok {
		t.Fatal("entry for the absent person survived the purge")
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	disabled := false
	cfg := func(rule string) model.RuleConfig {
		return model.RuleConfig{Enabled: &disabled}
	}
	e, clock := newTestEngine(t, zones, events, cfg)

	det := personAt(40, 40, 60, 90)
	e.ProcessDetections(1, nil, []model.Detection{det})
	clock.Advance(time.Hour)
	e.ProcessDetections(1, nil, []model.Detection{det})

	if events.count() != 0 {
		t.Fatalf("disabled rules produced %d events", events.count())
	}
}

func TestMissingConfigMeansEnabled(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	e, _ := newTestEngine(t, zones, events, nil)

	e.ProcessDetections(1, nil, []model.Detection{personAt(40, 40, 60, 90)})
	if events.count() != 1 {
		t.Fatalf("zero-value config must leave rules enabled, got %d events", events.count())
	}
}

func TestZoneLookupErrorIsSwallowed(t *testing.T) {
	zones := &fakeZoneStore{err: errors.New("db closed")}
	events := &fakeEventSink{}
	e, _ := newTestEngine(t, zones, events, nil)

	e.ProcessDetections(1, nil, []model.Detection{personAt(40, 40, 60, 90)})
	if events.count() != 0 {
		t.Fatalf("expected no events on zone lookup failure, got %d", events.count())
	}
}

func TestEventCreateFailureDoesNotRecordDedup(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{err: errors.New("disk full")}
	e, _ := newTestEngine(t, zones, events, nil)

	det := personAt(40, 40, 60, 90)
	e.ProcessDetections(1, nil, []model.Detection{det})

	events.err = nil
	e.ProcessDetections(1, nil, []model.Detection{det})
	if events.count() != 1 {
		t.Fatalf("failed create must not arm dedup, got %d events", events.count())
	}
}

func TestNotifiersReceiveCreatedEvent(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	n1 := &fakeNotifier{}
	n2 := &fakeNotifier{}
	clock := newTestClock()
	e := NewEngine(zones, events, nil, nil, nil, nil, n1, n2)
	e.now = clock.Now

	e.ProcessDetections(1, nil, []model.Detection{personAt(40, 40, 60, 90)})

	for i, n := range []*fakeNotifier{n1, n2} {
		if len(n.events) != 1 {
			t.Fatalf("notifier %d got %d events, want 1", i, len(n.events))
		}
		if n.events[0].ID == 0 {
			t.Errorf("notifier %d received event before identity was assigned", i)
		}
	}
}

func TestSnapshotFailureDegradesToEmptyPath(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	snaps := &fakeSnapshotWriter{err: errors.New("volume gone")}
	clock := newTestClock()
	e := NewEngine(zones, events, snaps, nil, nil, nil)
	e.now = clock.Now

	frame := &model.Frame{CameraID: 1, Seq: 1, Data: testJPEG(t, 120, 120), Timestamp: clock.Now()}
	e.ProcessDetections(1, frame, []model.Detection{personAt(40, 40, 60, 90)})

	if events.count() != 1 {
		t.Fatalf("snapshot failure must not block the event, got %d", events.count())
	}
	if p := events.last().SnapshotPath; p != "" {
		t.Errorf("snapshot path = %q, want empty on save failure", p)
	}
}

func TestSnapshotFilenameFormat(t *testing.T) {
	zones := &fakeZoneStore{zones: []*model.Zone{rectZone(1, "yard")}}
	events := &fakeEventSink{}
	snaps := &fakeSnapshotWriter{}
	clock := newTestClock()
	e := NewEngine(zones, events, snaps, nil, nil, nil)
	e.now = clock.Now

	frame := &model.Frame{CameraID: 3, Seq: 1, Data: testJPEG(t, 120, 120), Timestamp: clock.Now()}
	e.ProcessDetections(3, frame, []model.Detection{personAt(40, 40, 60, 90)})

	if len(snaps.saved) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps.saved))
	}
	want := "cam3_intrusion_20250601_120000.jpg"
	if snaps.saved[0] != want {
		t.Errorf("snapshot filename = %q, want %q", snaps.saved[0], want)
	}
	if p := events.last().SnapshotPath; p != "/snapshots/"+want {
		t.Errorf("event snapshot path = %q", p)
	}
}
