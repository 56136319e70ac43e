// Package sphere provides great-circle distance and surface area on a sphere
// for longitude/latitude coordinates given in degrees.
package sphere

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Reference radii in metres.
// https://earth-info.nga.mil/index.php?dir=wgs84&action=wgs84
const (
	EquatorialRadius = 6_378_137.0
	Flattening       = 1 / 298.257223563
	PolarRadius      = EquatorialRadius * (1 - Flattening)

	// AuthalicRadius is the radius of the sphere with the same surface area
	// as the WGS-84 ellipsoid.
	AuthalicRadius = 6_371_007.2

	// MeanRadius is the IUGG mean radius (2a+b)/3.
	MeanRadius = 6_371_008.8
)

const degToRad = math.Pi / 180

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * degToRad
}

// hav is the haversine function (1 - cos x) / 2.
func hav(x float64) float64 {
	return (1 - math.Cos(x)) / 2
}

// Distance returns the great-circle distance between a and b, given as
// (longitude, latitude) in degrees, on a sphere of the given radius. The
// result is in the units of radius.
func Distance(a, b geom.Coord, radius float64) float64 {
	lon1, lat1 := Radians(a.X()), Radians(a.Y())
	lon2, lat2 := Radians(b.X()), Radians(b.Y())

	h := hav(lat2-lat1) + math.Cos(lat1)*math.Cos(lat2)*hav(lon2-lon1)

	// Rounding can push 1-2h a hair outside [-1, 1] near antipodes.
	c := 1 - 2*h
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return radius * math.Acos(c)
}
