package pipeline

import (
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// StreamSource opens camera streams. The production implementation spawns
// an ffmpeg subprocess; tests substitute fakes.
type StreamSource interface {
	// Open connects to a stream and returns a connection ready to read
	// frames from.
	Open(url string) (StreamConn, error)
}

// StreamConn is an open camera stream.
type StreamConn interface {
	// ReadFrame returns the next encoded frame. An error means the stream
	// has failed and the connection must be discarded.
	ReadFrame() ([]byte, error)

	// Close releases the stream resources. Safe to call more than once.
	Close() error
}

// CameraStatusSink receives camera status and fps transitions. Updates are
// fire-and-forget from the capture loop's point of view.
type CameraStatusSink interface {
	UpdateStatus(cameraID int64, status model.CameraStatus, fps float64) error
}

// CameraStore provides camera lookups for the coordinator.
type CameraStore interface {
	GetCamera(id int64) (*model.Camera, error)
	ListCameras() ([]*model.Camera, error)
}

// Detector is the black-box object-detection capability invoked once per
// frame. A failed call returns an error; the processing loop tolerates it
// and moves on to the next frame.
type Detector interface {
	Detect(frame *model.Frame) ([]model.Detection, error)
	AvgLatencyMs() float64
	IsReady() bool
}

// DetectionProcessor consumes per-frame detections. Implemented by the
// rules engine.
type DetectionProcessor interface {
	ProcessDetections(cameraID int64, frame *model.Frame, detections []model.Detection)
}
