package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ToCoordinates serialises g back to the nested-coordinate convention: a
// [][][]float64 for a Polygon and a [][][][]float64 for a MultiPolygon,
// together with the matching type tag.
func ToCoordinates(g Geometry) (string, any, error) {
	var (
		tag    string
		coords any
	)
	err := Match(g,
		func(p *Polygon) error {
			tag, coords = KindPolygon.String(), ringsToFloats(p.p.Coords())
			return nil
		},
		func(m *MultiPolygon) error {
			polys := m.mp.Coords()
			out := make([][][][]float64, len(polys))
			for i, rings := range polys {
				out[i] = ringsToFloats(rings)
			}
			tag, coords = KindMultiPolygon.String(), out
			return nil
		},
	)
	if err != nil {
		return "", nil, err
	}
	return tag, coords, nil
}

// ToGeoJSON encodes g as a GeoJSON geometry object.
func ToGeoJSON(g Geometry) (*geojson.Geometry, error) {
	if g == nil {
		return nil, eris.Wrap(ErrUnsupportedGeometryType, "geometry: nil geometry")
	}
	out, err := geojson.Encode(g.T())
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson")
	}
	return out, nil
}

func ringsToFloats(rings [][]geom.Coord) [][][]float64 {
	out := make([][][]float64, len(rings))
	for i, ring := range rings {
		r := make([][]float64, len(ring))
		for j, c := range ring {
			r[j] = []float64{c.X(), c.Y()}
		}
		out[i] = r
	}
	return out
}
