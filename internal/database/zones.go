package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// ErrInvalidZone is returned when zone coordinates fail validation.
var ErrInvalidZone = errors.New("invalid zone coordinates")

// ValidateZone checks the coordinate count for the zone type.
func ValidateZone(zoneType model.ZoneType, points []model.Point) error {
	switch zoneType {
	case model.ZonePolygon:
		if len(points) < 3 {
			return fmt.Errorf("%w: polygon must have at least 3 points", ErrInvalidZone)
		}
	case model.ZoneRectangle:
		if len(points) != 2 {
			return fmt.Errorf("%w: rectangle must have exactly 2 points", ErrInvalidZone)
		}
	default:
		return fmt.Errorf("%w: unknown zone type %q", ErrInvalidZone, zoneType)
	}
	return nil
}

// CreateZone adds a zone to a camera after validating its coordinates.
func (d *Database) CreateZone(cameraID int64, name string, zoneType model.ZoneType, points []model.Point) (*model.Zone, error) {
	if err := ValidateZone(zoneType, points); err != nil {
		return nil, err
	}

	coords, err := marshalPoints(points)
	if err != nil {
		return nil, err
	}

	res, err := d.db.Exec(
		`INSERT INTO zones (camera_id, name, type, coordinates, created_at) VALUES (?, ?, ?, ?, ?)`,
		cameraID, name, string(zoneType), coords, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read zone id: %w", err)
	}
	return d.GetZone(id)
}

// GetZone retrieves a zone by ID.
func (d *Database) GetZone(id int64) (*model.Zone, error) {
	row := d.db.QueryRow(`SELECT id, camera_id, name, type, coordinates, created_at FROM zones WHERE id = ?`, id)
	return scanZone(row)
}

// ZonesForCamera returns all zones defined on a camera.
func (d *Database) ZonesForCamera(cameraID int64) ([]*model.Zone, error) {
	return d.queryZones(`SELECT id, camera_id, name, type, coordinates, created_at FROM zones WHERE camera_id = ?`, cameraID)
}

// ListZones returns every zone.
func (d *Database) ListZones() ([]*model.Zone, error) {
	return d.queryZones(`SELECT id, camera_id, name, type, coordinates, created_at FROM zones`)
}

func (d *Database) queryZones(query string, args ...any) ([]*model.Zone, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var zones []*model.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// ZoneUpdate lists the mutable zone fields.
type ZoneUpdate struct {
	Name   *string
	Type   *model.ZoneType
	Points []model.Point
}

// UpdateZone applies the non-nil fields. A coordinate change is validated
// against the (possibly also updated) zone type.
func (d *Database) UpdateZone(id int64, u ZoneUpdate) (*model.Zone, error) {
	current, err := d.GetZone(id)
	if err != nil {
		return nil, err
	}

	zoneType := current.Type
	if u.Type != nil {
		zoneType = *u.Type
	}
	points := current.Points
	if u.Points != nil {
		points = u.Points
	}
	if err := ValidateZone(zoneType, points); err != nil {
		return nil, err
	}

	coords, err := marshalPoints(points)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if u.Name != nil {
		name = *u.Name
	}

	_, err = d.db.Exec(`UPDATE zones SET name = ?, type = ?, coordinates = ? WHERE id = ?`,
		name, string(zoneType), coords, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update zone: %w", err)
	}
	return d.GetZone(id)
}

// DeleteZone removes a zone.
func (d *Database) DeleteZone(id int64) error {
	res, err := d.db.Exec(`DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanZone(row rowScanner) (*model.Zone, error) {
	var z model.Zone
	var coords string

	err := row.Scan(&z.ID, &z.CameraID, &z.Name, &z.Type, &coords, &z.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan zone: %w", err)
	}

	z.Points, err = unmarshalPoints(coords)
	if err != nil {
		return nil, fmt.Errorf("zone %d: %w", z.ID, err)
	}
	return &z, nil
}

// Coordinates are stored as a JSON array of [x, y] pairs.

func marshalPoints(points []model.Point) (string, error) {
	pairs := make([][2]int, len(points))
	for i, p := range points {
		pairs[i] = [2]int{p.X, p.Y}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("failed to encode coordinates: %w", err)
	}
	return string(b), nil
}

func unmarshalPoints(coords string) ([]model.Point, error) {
	var pairs [][2]int
	if err := json.Unmarshal([]byte(coords), &pairs); err != nil {
		return nil, fmt.Errorf("failed to decode coordinates: %w", err)
	}
	points := make([]model.Point, len(pairs))
	for i, p := range pairs {
		points[i] = model.Point{X: p[0], Y: p[1]}
	}
	return points, nil
}
