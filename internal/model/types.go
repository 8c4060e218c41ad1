package model

import (
	"time"
)

// CameraStatus reflects the connection state of a camera's stream.
type CameraStatus string

const (
	CameraOffline    CameraStatus = "offline"
	CameraConnecting CameraStatus = "connecting"
	CameraOnline     CameraStatus = "online"
	CameraError      CameraStatus = "error"
)

// Camera represents a registered video source.
type Camera struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	LocationTag   string       `json:"location_tag,omitempty"`
	RTSPURL       string       `json:"rtsp_url"`
	Status        CameraStatus `json:"status"`
	FPS           float64      `json:"fps"`
	LastFrameTime *time.Time   `json:"last_frame_time,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ZoneType identifies the geometric shape of a zone.
type ZoneType string

const (
	ZonePolygon   ZoneType = "polygon"
	ZoneRectangle ZoneType = "rectangle"
)

// Point is a pixel coordinate on a camera's image plane.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Zone is a named region on a camera's image plane used to scope rule
// evaluation. Polygons carry at least 3 points and are implicitly closed;
// rectangles carry exactly 2 corner points in any order.
type Zone struct {
	ID        int64     `json:"id"`
	CameraID  int64     `json:"camera_id"`
	Name      string    `json:"name"`
	Type      ZoneType  `json:"type"`
	Points    []Point   `json:"coordinates"`
	CreatedAt time.Time `json:"created_at"`
}

// BBox is a detection bounding box with x1<=x2, y1<=y2.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// RefPoint returns the bbox bottom-center, the point used for zone
// containment tests. The bottom edge approximates the object's ground
// contact better than the centroid.
func (b BBox) RefPoint() (int, int) {
	return (b.X1 + b.X2) / 2, b.Y2
}

// Detection is a single object detection produced for one frame.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Frame is a captured video frame. Data is an encoded JPEG owned by the
// queue slot until the processing task consumes it.
type Frame struct {
	CameraID  int64
	Seq       uint64
	Data      []byte
	Timestamp time.Time
}

// Rule types emitted by the rules engine.
const (
	RuleIntrusion = "intrusion"
	RuleLoitering = "loitering"
)

// Event is a security event produced by the rules engine. Immutable once
// created except for Status, which operators update through the API.
type Event struct {
	ID           int64          `json:"id"`
	CameraID     int64          `json:"camera_id"`
	Timestamp    time.Time      `json:"timestamp"`
	RuleType     string         `json:"rule_type"`
	ObjectType   string         `json:"object_type"`
	Confidence   float64        `json:"confidence"`
	BBox         *BBox          `json:"bbox,omitempty"`
	SnapshotPath string         `json:"snapshot_path,omitempty"`
	Priority     string         `json:"priority"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RuleConfig holds per-rule configuration. A nil Enabled means the rule is
// enabled by default.
type RuleConfig struct {
	Enabled          *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority         string `json:"priority,omitempty" yaml:"priority,omitempty"`
	Description      string `json:"description,omitempty" yaml:"description,omitempty"`
	ThresholdSeconds int    `json:"threshold_seconds,omitempty" yaml:"threshold_seconds,omitempty"`
}

// IsEnabled resolves the enabled flag, defaulting to true.
func (rc RuleConfig) IsEnabled() bool {
	return rc.Enabled == nil || *rc.Enabled
}

// EventStats aggregates event counts over a time window.
type EventStats struct {
	Total      int            `json:"total"`
	ByRule     map[string]int `json:"by_rule"`
	ByPriority map[string]int `json:"by_priority"`
}
