package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// CameraUpdate lists the mutable camera fields. Nil pointers are left
// untouched.
type CameraUpdate struct {
	Name        *string
	LocationTag *string
	RTSPURL     *string
}

const cameraColumns = `id, name, location_tag, rtsp_url, status, fps, last_frame_time, created_at, updated_at`

// CreateCamera registers a camera. The RTSP URL must be unique.
func (d *Database) CreateCamera(name, rtspURL, locationTag string) (*model.Camera, error) {
	now := time.Now().UTC()
	res, err := d.db.Exec(
		`INSERT INTO cameras (name, location_tag, rtsp_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, 'offline', ?, ?)`,
		name, nullString(locationTag), rtspURL, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read camera id: %w", err)
	}
	return d.GetCamera(id)
}

// GetCamera retrieves a camera by ID.
func (d *Database) GetCamera(id int64) (*model.Camera, error) {
	row := d.db.QueryRow(`SELECT `+cameraColumns+` FROM cameras WHERE id = ?`, id)
	return scanCamera(row)
}

// GetCameraByURL retrieves a camera by its RTSP URL.
func (d *Database) GetCameraByURL(rtspURL string) (*model.Camera, error) {
	row := d.db.QueryRow(`SELECT `+cameraColumns+` FROM cameras WHERE rtsp_url = ?`, rtspURL)
	return scanCamera(row)
}

// ListCameras returns all cameras, newest first.
func (d *Database) ListCameras() ([]*model.Camera, error) {
	rows, err := d.db.Query(`SELECT ` + cameraColumns + ` FROM cameras ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []*model.Camera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, cam)
	}
	return cameras, rows.Err()
}

// UpdateCamera applies the non-nil fields and returns the updated record.
func (d *Database) UpdateCamera(id int64, u CameraUpdate) (*model.Camera, error) {
	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	if u.Name != nil {
		set += ", name = ?"
		args = append(args, *u.Name)
	}
	if u.LocationTag != nil {
		set += ", location_tag = ?"
		args = append(args, nullString(*u.LocationTag))
	}
	if u.RTSPURL != nil {
		set += ", rtsp_url = ?"
		args = append(args, *u.RTSPURL)
	}
	args = append(args, id)

	res, err := d.db.Exec(`UPDATE cameras SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update camera: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return d.GetCamera(id)
}

// DeleteCamera removes a camera; its zones and events cascade.
func (d *Database) DeleteCamera(id int64) error {
	res, err := d.db.Exec(`DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete camera: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus records the stream state and fps. last_frame_time advances
// only while the camera is online.
func (d *Database) UpdateStatus(cameraID int64, status model.CameraStatus, fps float64) error {
	now := time.Now().UTC()
	var err error
	if status == model.CameraOnline {
		_, err = d.db.Exec(
			`UPDATE cameras SET status = ?, fps = ?, last_frame_time = ?, updated_at = ? WHERE id = ?`,
			string(status), fps, now, now, cameraID,
		)
	} else {
		_, err = d.db.Exec(
			`UPDATE cameras SET status = ?, fps = ?, updated_at = ? WHERE id = ?`,
			string(status), fps, now, cameraID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update camera status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(row rowScanner) (*model.Camera, error) {
	var cam model.Camera
	var locationTag sql.NullString
	var lastFrame sql.NullTime

	err := row.Scan(&cam.ID, &cam.Name, &locationTag, &cam.RTSPURL, &cam.Status,
		&cam.FPS, &lastFrame, &cam.CreatedAt, &cam.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan camera: %w", err)
	}

	cam.LocationTag = locationTag.String
	if lastFrame.Valid {
		t := lastFrame.Time
		cam.LastFrameTime = &t
	}
	return &cam, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
