package sphere

import (
	"math"

	"github.com/twpayne/go-geom"
)

// ShoelaceArea returns the signed planar area of the ring stored in flat
// with the given stride. Counter-clockwise rings are positive.
func ShoelaceArea(flat []float64, stride int) float64 {
	n := len(flat) / stride
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x1, y1 := flat[i*stride], flat[i*stride+1]
		x2, y2 := flat[j*stride], flat[j*stride+1]
		sum += x1*y2 - x2*y1
	}
	return sum / 2
}

// project maps lon/lat degrees onto the Lambert cylindrical equal-area plane
// (lon in radians, sin of lat).
func project(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, 2*len(coords))
	for _, c := range coords {
		flat = append(flat, Radians(c.X()), math.Sin(Radians(c.Y())))
	}
	return flat
}

// RingArea returns the surface area enclosed by a ring of lon/lat degree
// coordinates on a sphere of the given radius, in radius² units.
// Accuracy degrades near the poles and across the anti-meridian.
func RingArea(coords []geom.Coord, radius float64) float64 {
	return math.Abs(ShoelaceArea(project(coords), 2)) * radius * radius
}

// LinearRingArea is RingArea for a go-geom ring.
func LinearRingArea(ring *geom.LinearRing, radius float64) float64 {
	if ring == nil {
		return 0
	}
	return RingArea(ring.Coords(), radius)
}

// PolygonArea returns the area of the exterior ring of p. Holes are not
// subtracted.
func PolygonArea(p *geom.Polygon, radius float64) float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return 0
	}
	return LinearRingArea(p.LinearRing(0), radius)
}
