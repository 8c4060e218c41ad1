package geometry

import (
	"testing"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

func polygon(pts ...model.Point) *model.Zone {
	return &model.Zone{Type: model.ZonePolygon, Points: pts}
}

func rectangle(a, b model.Point) *model.Zone {
	return &model.Zone{Type: model.ZoneRectangle, Points: []model.Point{a, b}}
}

func TestPolygonContainment(t *testing.T) {
	// Simple convex quad around (0,0)-(100,100).
	z := polygon(
		model.Point{X: 0, Y: 0},
		model.Point{X: 100, Y: 0},
		model.Point{X: 100, Y: 100},
		model.Point{X: 0, Y: 100},
	)

	if !PointInZone(50, 50, z) {
		t.Error("Expected interior point (50,50) inside polygon")
	}
	if PointInZone(500, 500, z) {
		t.Error("Expected far point (500,500) outside polygon")
	}
	if PointInZone(-1, 50, z) {
		t.Error("Expected point left of polygon to be outside")
	}
}

func TestPolygonConcave(t *testing.T) {
	// L-shape: the notch at top-right must be outside.
	z := polygon(
		model.Point{X: 0, Y: 0},
		model.Point{X: 100, Y: 0},
		model.Point{X: 100, Y: 50},
		model.Point{X: 50, Y: 50},
		model.Point{X: 50, Y: 100},
		model.Point{X: 0, Y: 100},
	)

	if !PointInZone(25, 75, z) {
		t.Error("Expected (25,75) inside L-shape")
	}
	if PointInZone(75, 75, z) {
		t.Error("Expected (75,75) in the notch to be outside")
	}
}

func TestPolygonVertexConsistent(t *testing.T) {
	z := polygon(
		model.Point{X: 10, Y: 10},
		model.Point{X: 90, Y: 10},
		model.Point{X: 50, Y: 90},
	)

	first := PointInZone(10, 10, z)
	for i := 0; i < 10; i++ {
		if PointInZone(10, 10, z) != first {
			t.Fatal("Vertex containment result changed between calls")
		}
	}
}

func TestRectangleCornerOrder(t *testing.T) {
	corners := [][2]model.Point{
		{{X: 0, Y: 0}, {X: 100, Y: 100}},
		{{X: 100, Y: 100}, {X: 0, Y: 0}},
		{{X: 0, Y: 100}, {X: 100, Y: 0}},
		{{X: 100, Y: 0}, {X: 0, Y: 100}},
	}

	for _, c := range corners {
		z := rectangle(c[0], c[1])
		if !PointInZone(50, 90, z) {
			t.Errorf("Expected (50,90) inside rectangle %v", c)
		}
		if PointInZone(101, 50, z) {
			t.Errorf("Expected (101,50) outside rectangle %v", c)
		}
	}
}

func TestRectangleInclusiveBounds(t *testing.T) {
	z := rectangle(model.Point{X: 0, Y: 0}, model.Point{X: 100, Y: 100})

	edges := [][2]int{{0, 0}, {100, 100}, {0, 100}, {100, 0}, {50, 0}, {0, 50}}
	for _, e := range edges {
		if !PointInZone(e[0], e[1], z) {
			t.Errorf("Expected boundary point (%d,%d) inside rectangle", e[0], e[1])
		}
	}
}

func TestMalformedZones(t *testing.T) {
	cases := []*model.Zone{
		nil,
		{Type: model.ZonePolygon, Points: []model.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}},
		{Type: model.ZoneRectangle, Points: []model.Point{{X: 0, Y: 0}}},
		{Type: model.ZoneRectangle, Points: []model.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}},
		{Type: "circle", Points: []model.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}},
	}

	for i, z := range cases {
		if PointInZone(5, 5, z) {
			t.Errorf("Case %d: expected malformed zone to contain nothing", i)
		}
	}
}
