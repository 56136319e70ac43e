package geometry

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// PolygonContains reports whether c lies inside or on the exterior ring of p
// and not in the interior of any hole. Points on a hole's edge count as
// inside.
func PolygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p == nil || p.NumLinearRings() == 0 {
		return false
	}
	b := p.Bounds()
	if c.X() < b.Min(0) || c.X() > b.Max(0) || c.Y() < b.Min(1) || c.Y() > b.Max(1) {
		return false
	}
	layout := p.Layout()
	if !xy.IsPointInRing(layout, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, c, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

// Contains reports whether c lies inside or on p.
func (p *Polygon) Contains(c geom.Coord) bool {
	return PolygonContains(p.p, c)
}

// Contains reports whether c lies inside or on any part of m.
func (m *MultiPolygon) Contains(c geom.Coord) bool {
	for _, part := range m.Polygons() {
		if PolygonContains(part, c) {
			return true
		}
	}
	return false
}
