package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

type staticCameraStore struct {
	cameras map[int64]*model.Camera
}

func (s *staticCameraStore) GetCamera(id int64) (*model.Camera, error) {
	cam, ok := s.cameras[id]
	if !ok {
		return nil, errors.New("camera not found")
	}
	return cam, nil
}

func (s *staticCameraStore) ListCameras() ([]*model.Camera, error) {
	out := make([]*model.Camera, 0, len(s.cameras))
	for _, cam := range s.cameras {
		out = append(out, cam)
	}
	return out, nil
}

type stubDetector struct {
	mu         sync.Mutex
	detections []model.Detection
	err        error
	calls      int
}

func (d *stubDetector) Detect(frame *model.Frame) ([]model.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.detections, d.err
}

func (d *stubDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *stubDetector) AvgLatencyMs() float64 { return 5 }
func (d *stubDetector) IsReady() bool         { return true }

type recordingProcessor struct {
	mu    sync.Mutex
	calls []int64
}

func (p *recordingProcessor) ProcessDetections(cameraID int64, frame *model.Frame, detections []model.Detection) {
	p.mu.Lock()
	p.calls = append(p.calls, cameraID)
	p.mu.Unlock()
}

func (p *recordingProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestCoordinator(t *testing.T, detector Detector, proc DetectionProcessor) (*Coordinator, *scriptedSource) {
	t.Helper()
	source := &scriptedSource{}
	ing := NewIngestor(source, &recordingSink{}, fastConfig(), nil)
	t.Cleanup(ing.Close)

	store := &staticCameraStore{cameras: map[int64]*model.Camera{
		1: {ID: 1, Name: "gate", RTSPURL: "rtsp://cam/1"},
	}}
	coord := NewCoordinator(ing, detector, proc, store,
		CoordinatorConfig{PopTimeout: 10 * time.Millisecond, ErrorCooldown: time.Millisecond},
		metrics.New())
	t.Cleanup(coord.StopAll)
	return coord, source
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCoordinatorFlowsFramesToRules(t *testing.T) {
	detector := &stubDetector{detections: []model.Detection{{
		ClassName: "person", Confidence: 0.9, BBox: model.BBox{X1: 1, Y1: 1, X2: 2, Y2: 2},
	}}}
	proc := &recordingProcessor{}
	coord, source := newTestCoordinator(t, detector, proc)

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	waitUntil(t, "stream open", func() bool { return source.lastConn() != nil })

	source.lastConn().frames <- []byte{0x01}
	waitUntil(t, "detections forwarded", func() bool { return proc.callCount() >= 1 })

	proc.mu.Lock()
	got := proc.calls[0]
	proc.mu.Unlock()
	if got != 1 {
		t.Errorf("rules invoked for camera %d, want 1", got)
	}
}

func TestCoordinatorSkipsEmptyDetections(t *testing.T) {
	detector := &stubDetector{} // no detections
	proc := &recordingProcessor{}
	coord, source := newTestCoordinator(t, detector, proc)

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	waitUntil(t, "stream open", func() bool { return source.lastConn() != nil })

	source.lastConn().frames <- []byte{0x01}
	waitUntil(t, "frame detected", func() bool { return detector.callCount() >= 1 })

	time.Sleep(20 * time.Millisecond)
	if proc.callCount() != 0 {
		t.Errorf("rules invoked %d times for empty detections", proc.callCount())
	}
}

func TestCoordinatorSurvivesDetectorErrors(t *testing.T) {
	detector := &stubDetector{err: errors.New("inference service down")}
	proc := &recordingProcessor{}
	coord, source := newTestCoordinator(t, detector, proc)

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	waitUntil(t, "stream open", func() bool { return source.lastConn() != nil })

	source.lastConn().frames <- []byte{0x01}
	waitUntil(t, "failed detection", func() bool { return detector.callCount() >= 1 })

	// The loop keeps going: recovery feeds the next frame through.
	detector.mu.Lock()
	detector.err = nil
	detector.detections = []model.Detection{{ClassName: "person", BBox: model.BBox{X2: 1, Y2: 1}}}
	detector.mu.Unlock()

	source.lastConn().frames <- []byte{0x02}
	waitUntil(t, "recovery", func() bool { return proc.callCount() >= 1 })

	status := coord.Status()
	if !status[1].ProcessingAlive {
		t.Error("processing loop died on detector error")
	}
}

func TestCoordinatorStartUnknownCamera(t *testing.T) {
	coord, _ := newTestCoordinator(t, &stubDetector{}, &recordingProcessor{})
	if err := coord.StartCamera(42); err == nil {
		t.Fatal("expected error for unknown camera")
	}
}

func TestCoordinatorStartIsIdempotent(t *testing.T) {
	coord, source := newTestCoordinator(t, &stubDetector{}, &recordingProcessor{})

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	waitUntil(t, "stream open", func() bool { return source.lastConn() != nil })
	opens := source.openCount()

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("second StartCamera: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if source.openCount() != opens {
		t.Error("second StartCamera opened another stream")
	}

	status := coord.Status()
	if len(status) != 1 || !status[1].ProcessingAlive {
		t.Errorf("status = %+v", status)
	}
}

func TestCoordinatorStopCamera(t *testing.T) {
	coord, source := newTestCoordinator(t, &stubDetector{}, &recordingProcessor{})

	if err := coord.StartCamera(1); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	waitUntil(t, "stream open", func() bool { return source.lastConn() != nil })

	coord.StopCamera(1)
	waitUntil(t, "processing stop", func() bool { return !coord.Status()[1].ProcessingAlive })
}

func TestCoordinatorStartAll(t *testing.T) {
	source := &scriptedSource{}
	ing := NewIngestor(source, &recordingSink{}, fastConfig(), nil)
	t.Cleanup(ing.Close)

	store := &staticCameraStore{cameras: map[int64]*model.Camera{
		1: {ID: 1, RTSPURL: "rtsp://cam/1"},
		2: {ID: 2, RTSPURL: "rtsp://cam/2"},
	}}
	coord := NewCoordinator(ing, &stubDetector{}, &recordingProcessor{}, store,
		CoordinatorConfig{PopTimeout: 10 * time.Millisecond}, nil)
	t.Cleanup(coord.StopAll)

	if err := coord.StartAll(); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	status := coord.Status()
	if len(status) != 2 {
		t.Fatalf("status has %d pipelines, want 2", len(status))
	}
	for id, st := range status {
		if !st.ProcessingAlive {
			t.Errorf("camera %d processing not alive", id)
		}
	}
}
