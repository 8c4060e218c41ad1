package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// scriptedSource fails Open a configured number of times, then hands out
// connections that produce frames on demand.
type scriptedSource struct {
	mu        sync.Mutex
	openFails int
	opens     int
	conns     []*scriptedConn
}

func (s *scriptedSource) Open(url string) (StreamConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openFails > 0 {
		s.openFails--
		return nil, errors.New("connection refused")
	}
	c := &scriptedConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
	s.conns = append(s.conns, c)
	return c, nil
}

func (s *scriptedSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *scriptedSource) lastConn() *scriptedConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

type scriptedConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *scriptedConn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.frames:
		if f == nil {
			return nil, errors.New("stream reset")
		}
		return f, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *scriptedConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// recordingSink captures every status update in order.
type recordingSink struct {
	mu      sync.Mutex
	updates []statusUpdate
}

func (s *recordingSink) UpdateStatus(cameraID int64, status model.CameraStatus, fps float64) error {
	s.mu.Lock()
	s.updates = append(s.updates, statusUpdate{cameraID, status, fps})
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) statuses() []model.CameraStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CameraStatus, len(s.updates))
	for i, u := range s.updates {
		out[i] = u.status
	}
	return out
}

func (s *recordingSink) waitFor(t *testing.T, status model.CameraStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		for _, got := range s.statuses() {
			if got == status {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("status %q never reported; saw %v", status, s.statuses())
		case <-time.After(time.Millisecond):
		}
	}
}

func fastConfig() IngestorConfig {
	return IngestorConfig{
		QueueSize:   8,
		MaxRetries:  10,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
	}
}

func TestIngestorDeliversFrames(t *testing.T) {
	source := &scriptedSource{}
	sink := &recordingSink{}
	ing := NewIngestor(source, sink, fastConfig(), nil)
	defer ing.Close()

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraOnline)

	conn := source.lastConn()
	conn.frames <- []byte{0xAA}
	conn.frames <- []byte{0xBB}

	f1, ok := ing.GetFrame(1, time.Second)
	if !ok {
		t.Fatal("first frame not delivered")
	}
	if f1.Seq != 1 || f1.CameraID != 1 || string(f1.Data) != "\xaa" {
		t.Errorf("frame 1 = %+v", f1)
	}
	f2, ok := ing.GetFrame(1, time.Second)
	if !ok || f2.Seq != 2 {
		t.Fatalf("frame 2 = %+v ok=%v", f2, ok)
	}
}

func TestIngestorReconnectsAfterStreamError(t *testing.T) {
	source := &scriptedSource{}
	sink := &recordingSink{}
	ing := NewIngestor(source, sink, fastConfig(), nil)
	defer ing.Close()

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraOnline)

	source.lastConn().frames <- nil // force a read error
	sink.waitFor(t, model.CameraError)

	// A fresh connection comes up after backoff.
	deadline := time.After(5 * time.Second)
	for source.openCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("no reconnect attempt")
		case <-time.After(time.Millisecond):
		}
	}

	online := 0
	deadline = time.After(5 * time.Second)
	for online < 2 {
		online = 0
		for _, st := range sink.statuses() {
			if st == model.CameraOnline {
				online++
			}
		}
		select {
		case <-deadline:
			t.Fatalf("second online transition never reported; saw %v", sink.statuses())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestIngestorGivesUpAfterMaxRetries(t *testing.T) {
	source := &scriptedSource{openFails: 1 << 20}
	sink := &recordingSink{}
	cfg := fastConfig()
	cfg.MaxRetries = 3
	ing := NewIngestor(source, sink, cfg, nil)
	defer ing.Close()

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraOffline)

	// connecting/error alternate per attempt; offline arrives exactly once,
	// last.
	statuses := sink.statuses()
	var errorCount, offlineCount int
	for _, st := range statuses {
		switch st {
		case model.CameraError:
			errorCount++
		case model.CameraOffline:
			offlineCount++
		}
	}
	if errorCount != 4 {
		t.Errorf("error transitions = %d, want 4 (initial + 3 retries)", errorCount)
	}
	if offlineCount != 1 {
		t.Errorf("offline transitions = %d, want 1", offlineCount)
	}
	if statuses[0] != model.CameraConnecting {
		t.Errorf("first status = %q, want connecting", statuses[0])
	}
	if statuses[len(statuses)-1] != model.CameraOffline {
		t.Errorf("last status = %q, want offline", statuses[len(statuses)-1])
	}

	if ing.Running(1) {
		t.Error("capture still reported running after giving up")
	}
}

func TestIngestorStartIsIdempotent(t *testing.T) {
	source := &scriptedSource{}
	sink := &recordingSink{}
	ing := NewIngestor(source, sink, fastConfig(), nil)
	defer ing.Close()

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraOnline)
	opens := source.openCount()

	ing.StartCamera(1, "rtsp://cam/1")
	time.Sleep(10 * time.Millisecond)
	if source.openCount() != opens {
		t.Error("second StartCamera opened another stream")
	}
}

func TestIngestorStopReportsOffline(t *testing.T) {
	source := &scriptedSource{}
	sink := &recordingSink{}
	ing := NewIngestor(source, sink, fastConfig(), nil)
	defer ing.Close()

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraOnline)

	ing.StopCamera(1)
	sink.waitFor(t, model.CameraOffline)

	deadline := time.After(5 * time.Second)
	for ing.Running(1) {
		select {
		case <-deadline:
			t.Fatal("capture goroutine did not exit")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestIngestorStopDuringBackoff(t *testing.T) {
	source := &scriptedSource{openFails: 1 << 20}
	sink := &recordingSink{}
	cfg := fastConfig()
	cfg.BackoffBase = time.Hour // park the capture in backoff
	cfg.BackoffMax = time.Hour
	ing := NewIngestor(source, sink, cfg, nil)

	ing.StartCamera(1, "rtsp://cam/1")
	sink.waitFor(t, model.CameraError)

	done := make(chan struct{})
	go func() {
		ing.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a capture stuck in backoff")
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := IngestorConfig{BackoffBase: time.Second, BackoffMax: 60 * time.Second}.withDefaults()

	cases := []struct {
		retries int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{10, 60 * time.Second},
		{40, 60 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff(cfg, tc.retries); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.retries, got, tc.want)
		}
	}
}
