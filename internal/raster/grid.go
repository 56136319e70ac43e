package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/popdensity/internal/geometry"
)

// Grid is an immutable in-memory raster. Cells are stored row-major, row 0
// at the top for north-up transforms.
type Grid struct {
	rows, cols int
	values     []float64
	transform  Affine
	inverse    Affine
	noData     float64
	hasNoData  bool
}

// GridOption configures a Grid.
type GridOption func(*Grid)

// WithNoData marks cells equal to v as holding no data. Such cells are never
// part of a mask.
func WithNoData(v float64) GridOption {
	return func(g *Grid) {
		g.noData = v
		g.hasNoData = true
	}
}

// NewGrid builds a Grid over values, which must hold rows*cols cells.
func NewGrid(rows, cols int, values []float64, transform Affine, opts ...GridOption) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, eris.Errorf("raster: invalid shape %dx%d", rows, cols)
	}
	if len(values) != rows*cols {
		return nil, eris.Errorf("raster: got %d values for %dx%d grid", len(values), rows, cols)
	}
	inv, err := transform.Invert()
	if err != nil {
		return nil, err
	}
	g := &Grid{
		rows:      rows,
		cols:      cols,
		values:    append([]float64(nil), values...),
		transform: transform,
		inverse:   inv,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Shape returns the pixel dimensions.
func (g *Grid) Shape() (rows, cols int) { return g.rows, g.cols }

// Transform returns the pixel-to-geographic transform.
func (g *Grid) Transform() Affine { return g.transform }

// NoData returns the no-data value, if any.
func (g *Grid) NoData() (float64, bool) { return g.noData, g.hasNoData }

// Value returns the cell at (row, col).
func (g *Grid) Value(row, col int) float64 { return g.values[row*g.cols+col] }

// Bounds returns the geographic extent.
func (g *Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, c := range [][2]float64{{0, 0}, {float64(g.cols), 0}, {0, float64(g.rows)}, {float64(g.cols), float64(g.rows)}} {
		x, y := g.transform.Apply(c[0], c[1])
		b.Extend(geom.NewPointFlat(geom.XY, []float64{x, y}))
	}
	return b
}

// Mask marks every cell whose centre lies inside any of shapes. The window
// is cropped to the shapes' bounding box; ErrNoOverlap is returned when that
// box misses the grid.
func (g *Grid) Mask(ctx context.Context, shapes []geometry.Geometry) (*Window, error) {
	if len(shapes) == 0 {
		return nil, eris.New("raster: no shapes to mask")
	}

	var polys []*geom.Polygon
	box := geom.NewBounds(geom.XY)
	for i, s := range shapes {
		if geometry.IsNil(s) {
			return nil, eris.Wrapf(geometry.ErrUnsupportedGeometryType, "raster: shape %d is nil", i)
		}
		box.Extend(s.T())
		polys = append(polys, s.Polygons()...)
	}

	c0, r0, c1, r1, ok := g.pixelWindow(box)
	if !ok {
		return nil, ErrNoOverlap
	}

	w := &Window{
		Rows:      r1 - r0,
		Cols:      c1 - c0,
		Transform: g.transform.Offset(c0, r0),
	}
	w.Values = make([]float64, w.Rows*w.Cols)
	w.Inside = make([]bool, w.Rows*w.Cols)

	for r := r0; r < r1; r++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "raster: mask cancelled")
		}
		for c := c0; c < c1; c++ {
			i := (r-r0)*w.Cols + (c - c0)
			v := g.values[r*g.cols+c]
			w.Values[i] = v
			if g.hasNoData && (v == g.noData || (math.IsNaN(v) && math.IsNaN(g.noData))) {
				continue
			}
			x, y := g.transform.Apply(float64(c)+0.5, float64(r)+0.5)
			centre := geom.Coord{x, y}
			for _, p := range polys {
				if geometry.PolygonContains(p, centre) {
					w.Inside[i] = true
					break
				}
			}
		}
	}
	return w, nil
}

// pixelWindow converts a geographic box to a clamped [c0,c1) x [r0,r1)
// pixel range.
func (g *Grid) pixelWindow(box *geom.Bounds) (c0, r0, c1, r1 int, ok bool) {
	if box.IsEmpty() {
		return 0, 0, 0, 0, false
	}
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, p := range [][2]float64{
		{box.Min(0), box.Min(1)}, {box.Max(0), box.Min(1)},
		{box.Min(0), box.Max(1)}, {box.Max(0), box.Max(1)},
	} {
		col, row := g.inverse.Apply(p[0], p[1])
		minC, maxC = math.Min(minC, col), math.Max(maxC, col)
		minR, maxR = math.Min(minR, row), math.Max(maxR, row)
	}

	c0 = clamp(int(math.Floor(minC)), 0, g.cols)
	c1 = clamp(int(math.Ceil(maxC)), 0, g.cols)
	r0 = clamp(int(math.Floor(minR)), 0, g.rows)
	r1 = clamp(int(math.Ceil(maxR)), 0, g.rows)
	if c0 >= c1 || r0 >= r1 {
		return 0, 0, 0, 0, false
	}
	return c0, r0, c1, r1, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
