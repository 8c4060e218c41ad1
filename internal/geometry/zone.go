// Package geometry implements point-in-zone containment tests for the
// rules engine. Malformed zones are treated as non-containing rather than
// returned as errors so one bad zone cannot block evaluation of the rest.
package geometry

import (
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// PointInZone reports whether the point (x, y) lies inside the zone.
// Rectangle bounds are inclusive. An unknown shape or a shape with the
// wrong point count returns false.
func PointInZone(x, y int, zone *model.Zone) bool {
	if zone == nil {
		return false
	}

	switch zone.Type {
	case model.ZonePolygon:
		return pointInPolygon(x, y, zone.Points)
	case model.ZoneRectangle:
		return pointInRectangle(x, y, zone.Points)
	default:
		return false
	}
}

// pointInPolygon runs a standard ray cast over the implicitly closed ring.
func pointInPolygon(x, y int, pts []model.Point) bool {
	if len(pts) < 3 {
		return false
	}

	px, py := float64(x), float64(y)
	inside := false

	j := len(pts) - 1
	for i := 0; i < len(pts); i++ {
		xi, yi := float64(pts[i].X), float64(pts[i].Y)
		xj, yj := float64(pts[j].X), float64(pts[j].Y)

		if (yi > py) != (yj > py) &&
			px < (xj-xi)*(py-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}

	return inside
}

// pointInRectangle normalizes the two corner points to min/max bounds, so
// callers may supply any pair of opposite corners in any order.
func pointInRectangle(x, y int, pts []model.Point) bool {
	if len(pts) != 2 {
		return false
	}

	minX, maxX := pts[0].X, pts[1].X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := pts[0].Y, pts[1].Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	return x >= minX && x <= maxX && y >= minY && y <= maxY
}
