// Package raster exposes gridded numeric surfaces (population counts per
// cell) to the density engine through the Source interface.
package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/popdensity/internal/geometry"
)

// ErrNoOverlap is returned by Mask when the shapes do not intersect the
// raster extent.
var ErrNoOverlap = eris.New("raster: input shapes do not overlap raster")

// Source is a raster that can be clipped to polygons. Implementations must
// be safe for concurrent Mask calls.
type Source interface {
	// Mask returns the cells covered by the union of shapes, cropped to the
	// shapes' bounding box.
	Mask(ctx context.Context, shapes []geometry.Geometry) (*Window, error)
	// Bounds returns the geographic extent.
	Bounds() *geom.Bounds
	// Shape returns the pixel dimensions.
	Shape() (rows, cols int)
}

// Affine maps pixel (col, row) to geographic (x, y) in GDAL order:
// x = A*col + B*row + C, y = D*col + E*row + F.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp returns the transform of an unrotated raster whose top-left corner
// is (originX, originY) and whose cells are cellW by cellH.
func NorthUp(originX, originY, cellW, cellH float64) Affine {
	return Affine{A: cellW, C: originX, E: -cellH, F: originY}
}

// Apply maps a pixel position to geographic coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert returns the geographic-to-pixel transform.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 || math.IsNaN(det) {
		return Affine{}, eris.New("raster: transform is not invertible")
	}
	a, b := t.E/det, -t.B/det
	d, e := -t.D/det, t.A/det
	return Affine{
		A: a, B: b, C: -(a*t.C + b*t.F),
		D: d, E: e, F: -(d*t.C + e*t.F),
	}, nil
}

// Offset returns the transform of a window starting at (col, row).
func (t Affine) Offset(col, row int) Affine {
	x, y := t.Apply(float64(col), float64(row))
	out := t
	out.C, out.F = x, y
	return out
}

// Window is a masked, cropped block of raster cells in row-major order.
// Cells with Inside false are outside every shape or hold no data.
type Window struct {
	Rows, Cols int
	Values     []float64
	Inside     []bool
	Transform  Affine
}

// At returns the value at (row, col) and whether it is inside the mask.
func (w *Window) At(row, col int) (float64, bool) {
	i := row*w.Cols + col
	return w.Values[i], w.Inside[i]
}

// Count returns the number of cells inside the mask.
func (w *Window) Count() int {
	n := 0
	for _, in := range w.Inside {
		if in {
			n++
		}
	}
	return n
}

// Sum adds the masked cells, treating negative values as zero.
func (w *Window) Sum() float64 {
	var total float64
	for i, v := range w.Values {
		if w.Inside[i] && v > 0 {
			total += v
		}
	}
	return total
}

// Max returns the largest masked cell, treating negative values as zero.
func (w *Window) Max() float64 {
	var m float64
	for i, v := range w.Values {
		if w.Inside[i] && v > m {
			m = v
		}
	}
	return m
}
