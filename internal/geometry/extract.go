package geometry

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/popdensity/internal/sphere"
)

// ExtractOptions controls how MultiPolygon records are reduced.
type ExtractOptions struct {
	// MinRingArea drops MultiPolygon parts whose exterior ring encloses less
	// than this many square metres. Zero keeps all parts.
	MinRingArea float64

	// Radius is the sphere radius in metres used to measure parts for
	// MinRingArea and KeepTop. Zero means sphere.AuthalicRadius.
	Radius float64

	// KeepTop keeps only the n largest parts, largest first. 1 yields a
	// Polygon (the "mainland"). Zero or negative keeps every part.
	KeepTop int
}

// Extract converts a decoded Polygon or MultiPolygon record into a Geometry.
// Rings keep their input order: the first ring of each polygon is the
// exterior, the rest are holes.
func Extract(record geom.T, minRingArea float64) (Geometry, error) {
	return ExtractWithOptions(record, ExtractOptions{MinRingArea: minRingArea})
}

// ExtractWithOptions is Extract with part filtering controls.
func ExtractWithOptions(record geom.T, opts ExtractOptions) (Geometry, error) {
	switch g := record.(type) {
	case *geom.Polygon:
		if g == nil {
			break
		}
		p, err := NewPolygon(g)
		if err != nil {
			return nil, eris.Wrap(err, "geometry: extract polygon")
		}
		return p, nil
	case *geom.MultiPolygon:
		if g == nil {
			break
		}
		return extractMulti(g, opts)
	}
	return nil, eris.Wrapf(ErrUnsupportedGeometryType, "geometry: record type %s", typeName(record))
}

// ExtractRecord decodes a raw {type, coordinates} record and extracts it.
func ExtractRecord(record *geojson.Geometry, opts ExtractOptions) (Geometry, error) {
	if record == nil {
		return nil, eris.Wrap(ErrUnsupportedGeometryType, "geometry: record type null")
	}
	if record.Type != "Polygon" && record.Type != "MultiPolygon" {
		return nil, eris.Wrapf(ErrUnsupportedGeometryType, "geometry: record type %s", record.Type)
	}
	t, err := record.Decode()
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: decode %s record", record.Type)
	}
	return ExtractWithOptions(t, opts)
}

type part struct {
	poly *geom.Polygon
	area float64
}

func extractMulti(mp *geom.MultiPolygon, opts ExtractOptions) (Geometry, error) {
	radius := opts.Radius
	if radius <= 0 {
		radius = sphere.AuthalicRadius
	}
	n := mp.NumPolygons()
	parts := make([]part, 0, n)
	for i := 0; i < n; i++ {
		p := mp.Polygon(i)
		if !hasRing(p) {
			continue
		}
		area := sphere.PolygonArea(p, radius)
		if area < opts.MinRingArea {
			continue
		}
		parts = append(parts, part{poly: p, area: area})
	}
	if len(parts) == 0 {
		return nil, eris.Wrapf(ErrEmptyGeometry, "geometry: all %d parts dropped (min ring area %g m²)", n, opts.MinRingArea)
	}

	if opts.KeepTop > 0 {
		sort.SliceStable(parts, func(i, j int) bool { return parts[i].area > parts[j].area })
		if len(parts) > opts.KeepTop {
			parts = parts[:opts.KeepTop]
		}
		if opts.KeepTop == 1 {
			return NewPolygon(parts[0].poly)
		}
	}

	out := geom.NewMultiPolygon(mp.Layout())
	for _, p := range parts {
		if err := out.Push(p.poly); err != nil {
			return nil, eris.Wrap(err, "geometry: push polygon part")
		}
	}
	return NewMultiPolygon(out)
}
