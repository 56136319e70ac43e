// Package density aggregates a population raster over boundary polygons and
// reports people per square kilometre.
package density

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/raster"
	"github.com/sells-group/popdensity/internal/sphere"
)

// ErrUnsupportedShapeType is recorded for shapes that are neither a Polygon
// nor a MultiPolygon.
var ErrUnsupportedShapeType = eris.New("density: unsupported shape type")

// Result is the density of one shape. Population and AreaM2 are summed over
// every member polygon of a MultiPolygon.
type Result struct {
	Density    float64  `json:"density"`
	Population float64  `json:"population"`
	AreaM2     float64  `json:"area_m2"`
	Warnings   []string `json:"warnings,omitempty"`
	Err        error    `json:"-"`
}

// AreaKm2 returns the area in square kilometres.
func (r Result) AreaKm2() float64 { return r.AreaM2 / 1e6 }

// Option configures an Engine.
type Option func(*Engine)

// WithRadius sets the sphere radius in metres used for area.
func WithRadius(r float64) Option {
	return func(e *Engine) {
		if r > 0 {
			e.radius = r
		}
	}
}

// WithWorkers bounds how many shapes ForShapes processes at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaskTimeout puts a deadline on each raster mask call. Zero disables it.
func WithMaskTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.maskTimeout = d
	}
}

// Engine computes densities against one raster source.
type Engine struct {
	source      raster.Source
	radius      float64
	workers     int
	maskTimeout time.Duration
}

// New creates an Engine. The radius defaults to the authalic radius and the
// worker count to the number of CPUs.
func New(source raster.Source, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, eris.New("density: raster source is required")
	}
	e := &Engine{
		source:  source,
		radius:  sphere.AuthalicRadius,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Radius returns the sphere radius in metres.
func (e *Engine) Radius() float64 { return e.radius }

// Workers returns the concurrency limit of ForShapes.
func (e *Engine) Workers() int { return e.workers }

// ForPolygon masks the raster to p, sums the non-negative cells and divides
// by the exterior ring area. A polygon outside the raster yields zero
// population with a warning.
func (e *Engine) ForPolygon(ctx context.Context, p *geom.Polygon) (Result, error) {
	poly, err := geometry.NewPolygon(p)
	if err != nil {
		return Result{}, eris.Wrap(err, "density: polygon")
	}
	return e.forPolygon(ctx, poly)
}

func (e *Engine) forPolygon(ctx context.Context, p *geometry.Polygon) (Result, error) {
	var res Result
	w, err := e.mask(ctx, []geometry.Geometry{p})
	switch {
	case eris.Is(err, raster.ErrNoOverlap):
		res.Warnings = append(res.Warnings, noOverlapWarning(p))
	case err != nil:
		return Result{}, err
	case w.Count() == 0:
		res.Warnings = append(res.Warnings, noCellsWarning(p))
	default:
		res.Population = w.Sum()
	}
	res.AreaM2 = sphere.PolygonArea(p.Geom(), e.radius)
	res.Density = perKm2(res.Population, res.AreaM2)
	return res, nil
}

// ForShape computes one combined result for g. MultiPolygon members are
// masked one at a time and their populations and areas summed before the
// ratio is taken.
func (e *Engine) ForShape(ctx context.Context, g geometry.Geometry) (Result, error) {
	switch s := g.(type) {
	case *geometry.Polygon:
		if s == nil {
			break
		}
		return e.forPolygon(ctx, s)
	case *geometry.MultiPolygon:
		if s == nil {
			break
		}
		var total Result
		for i, member := range s.Polygons() {
			poly, err := geometry.NewPolygon(member)
			if err != nil {
				return Result{}, eris.Wrapf(err, "density: member %d", i)
			}
			r, err := e.forPolygon(ctx, poly)
			if err != nil {
				return Result{}, eris.Wrapf(err, "density: member %d", i)
			}
			total.Population += r.Population
			total.AreaM2 += r.AreaM2
			total.Warnings = append(total.Warnings, r.Warnings...)
		}
		total.Density = perKm2(total.Population, total.AreaM2)
		return total, nil
	}
	return Result{}, eris.Wrapf(ErrUnsupportedShapeType, "density: got %T", g)
}

// ForShapes returns one result per shape in input order. A failing shape
// carries its error in Result.Err and does not stop the batch; the returned
// error joins every per-shape failure.
func (e *Engine) ForShapes(ctx context.Context, shapes []geometry.Geometry) ([]Result, error) {
	results := make([]Result, len(shapes))
	if len(shapes) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, s := range shapes {
		g.Go(func() error {
			r, err := e.ForShape(gctx, s)
			if err != nil {
				r = Result{Err: err}
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, eris.Wrapf(r.Err, "density: shape %d", i))
		}
	}
	if len(errs) > 0 {
		zap.L().With(zap.String("component", "density")).Warn("density: shapes failed",
			zap.Int("failed", len(errs)),
			zap.Int("total", len(shapes)),
		)
	}
	return results, errors.Join(errs...)
}

func (e *Engine) mask(ctx context.Context, shapes []geometry.Geometry) (*raster.Window, error) {
	if e.maskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.maskTimeout)
		defer cancel()
	}
	w, err := e.source.Mask(ctx, shapes)
	if err != nil {
		if eris.Is(err, raster.ErrNoOverlap) {
			return nil, err
		}
		return nil, eris.Wrap(err, "density: mask raster")
	}
	return w, nil
}

func noOverlapWarning(g geometry.Geometry) string {
	b := g.Bounds()
	msg := fmt.Sprintf("no raster cells within [%g %g, %g %g]; population set to 0",
		b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	zap.L().With(zap.String("component", "density")).Warn("density: shape does not overlap raster",
		zap.Float64s("bounds", []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}),
	)
	return msg
}

// noCellsWarning covers shapes whose box meets the raster but which contain
// no cell centre holding data.
func noCellsWarning(g geometry.Geometry) string {
	b := g.Bounds()
	msg := fmt.Sprintf("no raster cell centres within [%g %g, %g %g]; population set to 0",
		b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	zap.L().With(zap.String("component", "density")).Warn("density: shape covers no raster cells",
		zap.Float64s("bounds", []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}),
	)
	return msg
}

func perKm2(population, areaM2 float64) float64 {
	if areaM2 <= 0 {
		return 0
	}
	return population / (areaM2 / 1e6)
}
