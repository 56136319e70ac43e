package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/sphere"
)

func squareFeature(name string, lon, lat, side float64, props map[string]any) *geojson.Feature {
	p := map[string]any{"shapeName": name}
	for k, v := range props {
		p[k] = v
	}
	return &geojson.Feature{
		Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{lon, lat}, {lon + side, lat}, {lon + side, lat + side}, {lon, lat + side}, {lon, lat},
		}}),
		Properties: p,
	}
}

func names(features []*geojson.Feature) []string {
	out := make([]string, len(features))
	for i, f := range features {
		out[i] = f.Properties["shapeName"].(string)
	}
	return out
}

func collection() []*geojson.Feature {
	return []*geojson.Feature{
		squareFeature("A", 0, 0, 1, map[string]any{"district": "Dhaka", "level": 3.0}),
		squareFeature("B", 2, 0, 1, map[string]any{"district": "Khulna", "level": 2.0}),
		squareFeature("C", 4, 0, 1, map[string]any{"district": "Dhaka", "level": 3.0}),
		squareFeature("D", 6, 0, 1, map[string]any{"district": "Sylhet"}),
	}
}

func TestByProperty(t *testing.T) {
	in := collection()
	got := ByProperty(in, "district", "Dhaka")
	assert.Equal(t, []string{"A", "C"}, names(got))

	// Integer argument matches JSON float64 values.
	got = ByProperty(in, "level", 2)
	assert.Equal(t, []string{"B"}, names(got))

	assert.Empty(t, ByProperty(in, "missing", "x"))
	assert.Len(t, in, 4)
}

func TestByPropertyIn(t *testing.T) {
	got := ByPropertyIn(collection(), "district", []string{"Sylhet", "Khulna"})
	assert.Equal(t, []string{"B", "D"}, names(got))

	assert.Empty(t, ByPropertyIn(collection(), "district", []string{}))
}

func TestByBounds(t *testing.T) {
	boundary, err := geometry.NewPolygonFromCoords([][]geom.Coord{
		{{-0.5, -0.5}, {5, -0.5}, {5, 2}, {-0.5, 2}, {-0.5, -0.5}},
	})
	require.NoError(t, err)

	got := ByBounds(collection(), boundary)
	// C touches the right edge at lon 5 and is kept; D is outside.
	assert.Equal(t, []string{"A", "B", "C"}, names(got))
}

func TestByBounds_StraddlingExcluded(t *testing.T) {
	boundary, err := geometry.NewPolygonFromCoords([][]geom.Coord{
		{{0, 0}, {3, 0}, {3, 3}, {0, 3}, {0, 0}},
	})
	require.NoError(t, err)

	features := []*geojson.Feature{
		squareFeature("inside", 1, 1, 1, nil),
		squareFeature("straddle", 2.5, 1, 1, nil),
		squareFeature("edge", 0, 0, 3, nil),
	}
	got := ByBounds(features, boundary)
	assert.Equal(t, []string{"inside", "edge"}, names(got))
}

func TestByBounds_HoleExcludes(t *testing.T) {
	boundary, err := geometry.NewPolygonFromCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}},
	})
	require.NoError(t, err)

	features := []*geojson.Feature{
		squareFeature("in-hole", 4.5, 4.5, 0.5, nil),
		squareFeature("ring", 1, 1, 1, nil),
		squareFeature("hole-edge", 4, 4, 2, nil),
	}
	got := ByBounds(features, boundary)
	assert.Equal(t, []string{"ring", "hole-edge"}, names(got))
}

func TestByProximity(t *testing.T) {
	in := collection()
	center := geom.Coord{2, 0}

	got := ByProximity(in, center, 0, sphere.AuthalicRadius)
	assert.Equal(t, []string{"B"}, names(got))

	// One degree of longitude at the equator is ~111 km.
	got = ByProximity(in, center, 120_000, sphere.AuthalicRadius)
	assert.Equal(t, []string{"A", "B"}, names(got))

	got = ByProximity(in, center, 250_000, sphere.AuthalicRadius)
	assert.Equal(t, []string{"A", "B", "C"}, names(got))
}

func TestByMinArea(t *testing.T) {
	features := []*geojson.Feature{
		squareFeature("big", 0, 0, 1, nil),
		squareFeature("small", 5, 5, 0.01, nil),
		{Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{0, 0}), Properties: map[string]any{"shapeName": "pin"}},
		{
			Geometry: geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{
				{{{0, 0}, {0.6, 0}, {0.6, 0.6}, {0, 0.6}, {0, 0}}},
				{{{1, 1}, {1.6, 1}, {1.6, 1.6}, {1, 1.6}, {1, 1}}},
			}),
			Properties: map[string]any{"shapeName": "pair"},
		},
	}

	// 0.5 square degrees at the equator is ~6.2e9 m²; the pair sums to 0.72.
	got := ByMinArea(features, 6e9, sphere.AuthalicRadius)
	assert.Equal(t, []string{"big", "pair"}, names(got))

	got = ByMinArea(features, 0, sphere.AuthalicRadius)
	assert.Equal(t, []string{"big", "small", "pair"}, names(got))
}

func TestApply_NilGeometry(t *testing.T) {
	features := []*geojson.Feature{
		{Properties: map[string]any{"shapeName": "empty"}},
		nil,
	}
	assert.Empty(t, ByProximity(features, geom.Coord{0, 0}, 1e9, sphere.AuthalicRadius))
	assert.Equal(t, []string{"empty"}, names(ByProperty(features, "shapeName", "empty")))
}

func TestApply_Combined(t *testing.T) {
	got := Apply(collection(),
		PropertyEquals("district", "Dhaka"),
		Near(geom.Coord{4, 0}, 1, sphere.AuthalicRadius),
	)
	assert.Equal(t, []string{"C"}, names(got))
}
