package sphere

import (
	"math"

	"github.com/twpayne/go-geom"
)

// PixelScale returns the ground size of one pixel, in radius units, for a
// raster window of rows x cols covering bounds (lon/lat degrees).
//
// lonScale is the north-south extent of a pixel. latScale is the east-west
// extent, averaged between the top and bottom edges of the window.
func PixelScale(rows, cols int, bounds *geom.Bounds, radius float64) (lonScale, latScale float64) {
	if rows <= 0 || cols <= 0 || bounds == nil || bounds.IsEmpty() {
		return 0, 0
	}
	lonMin, latMin := Radians(bounds.Min(0)), Radians(bounds.Min(1))
	lonMax, latMax := Radians(bounds.Max(0)), Radians(bounds.Max(1))

	lonScale = (latMax - latMin) * radius / float64(rows)
	top := (lonMax - lonMin) * radius * math.Cos(latMax) / float64(cols)
	bottom := (lonMax - lonMin) * radius * math.Cos(latMin) / float64(cols)
	latScale = (top + bottom) / 2
	return lonScale, latScale
}
