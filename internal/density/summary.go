package density

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/raster"
	"github.com/sells-group/popdensity/internal/sphere"
)

// Stats aggregates a whole shape set in one mask pass.
type Stats struct {
	TotalPopulation float64  `json:"total_population"`
	MaxCellValue    float64  `json:"max_cell_value"`
	TotalAreaKm2    float64  `json:"total_area_km2"`
	Density         float64  `json:"density"`
	Cells           int      `json:"cells"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Summary masks the raster to the union of shapes once and reports totals.
// Overlapping shapes count shared cells once; area is the sum of every
// member's exterior ring.
func (e *Engine) Summary(ctx context.Context, shapes []geometry.Geometry) (Stats, error) {
	if len(shapes) == 0 {
		return Stats{}, eris.New("density: no shapes to summarise")
	}

	var areaM2 float64
	for i, s := range shapes {
		if geometry.IsNil(s) {
			return Stats{}, eris.Wrapf(ErrUnsupportedShapeType, "density: shape %d is nil", i)
		}
		for _, p := range s.Polygons() {
			areaM2 += sphere.PolygonArea(p, e.radius)
		}
	}

	st := Stats{TotalAreaKm2: areaM2 / 1e6}
	w, err := e.mask(ctx, shapes)
	switch {
	case eris.Is(err, raster.ErrNoOverlap):
		st.Warnings = append(st.Warnings, "no raster cells within the selected shapes; population set to 0")
	case err != nil:
		return Stats{}, err
	case w.Count() == 0:
		st.Warnings = append(st.Warnings, "no raster cell centres within the selected shapes; population set to 0")
	default:
		st.TotalPopulation = w.Sum()
		st.MaxCellValue = w.Max()
		st.Cells = w.Count()
	}
	st.Density = perKm2(st.TotalPopulation, areaM2)
	return st, nil
}
