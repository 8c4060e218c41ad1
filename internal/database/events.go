package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

const eventColumns = `id, camera_id, timestamp, rule_type, object_type, confidence, bbox, snapshot_path, priority, status, metadata, created_at`

// CreateEvent persists an event and returns it with its assigned ID and
// default status.
func (d *Database) CreateEvent(e *model.Event) (*model.Event, error) {
	var bboxJSON sql.NullString
	if e.BBox != nil {
		b, err := json.Marshal([]int{e.BBox.X1, e.BBox.Y1, e.BBox.X2, e.BBox.Y2})
		if err != nil {
			return nil, fmt.Errorf("failed to encode bbox: %w", err)
		}
		bboxJSON = sql.NullString{String: string(b), Valid: true}
	}

	var metaJSON sql.NullString
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	priority := e.Priority
	if priority == "" {
		priority = "medium"
	}

	res, err := d.db.Exec(
		`INSERT INTO events (camera_id, timestamp, rule_type, object_type, confidence,
			bbox, snapshot_path, priority, status, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'new', ?, ?)`,
		e.CameraID, ts, e.RuleType, nullString(e.ObjectType), e.Confidence,
		bboxJSON, nullString(e.SnapshotPath), priority, metaJSON, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read event id: %w", err)
	}
	return d.GetEvent(id)
}

// GetEvent retrieves an event by ID.
func (d *Database) GetEvent(id int64) (*model.Event, error) {
	row := d.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// EventFilter narrows a QueryEvents call. Zero values mean no filtering on
// that field.
type EventFilter struct {
	CameraID int64
	From     time.Time
	To       time.Time
	RuleType string
	Priority string
	Status   string
	Limit    int
	Offset   int
}

// QueryEvents returns matching events newest first, plus the total count
// ignoring pagination.
func (d *Database) QueryEvents(f EventFilter) ([]*model.Event, int, error) {
	var where []string
	var args []any

	if f.CameraID != 0 {
		where = append(where, "camera_id = ?")
		args = append(args, f.CameraID)
	}
	if !f.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, f.To)
	}
	if f.RuleType != "" {
		where = append(where, "rule_type = ?")
		args = append(args, f.RuleType)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM events`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events` + clause + ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// UpdateEventStatus sets an event's review status and returns the updated
// record.
func (d *Database) UpdateEventStatus(id int64, status string) (*model.Event, error) {
	res, err := d.db.Exec(`UPDATE events SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update event status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return d.GetEvent(id)
}

// DeleteOldEvents removes events created before the retention cutoff and
// returns how many were deleted.
func (d *Database) DeleteOldEvents(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := d.db.Exec(`DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted events: %w", err)
	}
	return n, nil
}

// EventStats aggregates event counts over the last hours, optionally for a
// single camera (cameraID zero means all).
func (d *Database) EventStats(cameraID int64, hours int) (*model.EventStats, error) {
	if hours <= 0 {
		hours = 24
	}
	from := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	query := `SELECT rule_type, priority, COUNT(*) FROM events WHERE timestamp >= ?`
	args := []any{from}
	if cameraID != 0 {
		query += ` AND camera_id = ?`
		args = append(args, cameraID)
	}
	query += ` GROUP BY rule_type, priority`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}
	defer rows.Close()

	stats := &model.EventStats{
		ByRule:     make(map[string]int),
		ByPriority: make(map[string]int),
	}
	for rows.Next() {
		var rule, priority string
		var count int
		if err := rows.Scan(&rule, &priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event stats: %w", err)
		}
		stats.Total += count
		stats.ByRule[rule] += count
		stats.ByPriority[priority] += count
	}
	return stats, rows.Err()
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var objectType, bboxJSON, snapshotPath, metaJSON sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(&e.ID, &e.CameraID, &e.Timestamp, &e.RuleType, &objectType,
		&confidence, &bboxJSON, &snapshotPath, &e.Priority, &e.Status, &metaJSON, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	e.ObjectType = objectType.String
	e.SnapshotPath = snapshotPath.String
	e.Confidence = confidence.Float64

	if bboxJSON.Valid {
		var coords []int
		if err := json.Unmarshal([]byte(bboxJSON.String), &coords); err != nil {
			return nil, fmt.Errorf("event %d: failed to decode bbox: %w", e.ID, err)
		}
		if len(coords) == 4 {
			e.BBox = &model.BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
		}
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("event %d: failed to decode metadata: %w", e.ID, err)
		}
	}
	return &e, nil
}
