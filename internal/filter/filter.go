// Package filter selects features from a boundary collection by property
// values and spatial predicates. Every function preserves input order and
// returns a new slice; inputs are never modified.
package filter

import (
	"reflect"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/sphere"
)

// Predicate reports whether a feature should be kept.
type Predicate func(f *geojson.Feature) bool

// Apply keeps the features for which every predicate holds.
func Apply(features []*geojson.Feature, preds ...Predicate) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))
next:
	for _, f := range features {
		if f == nil {
			continue
		}
		for _, p := range preds {
			if !p(f) {
				continue next
			}
		}
		out = append(out, f)
	}
	return out
}

// ByProperty keeps features whose property field equals value.
func ByProperty(features []*geojson.Feature, field string, value any) []*geojson.Feature {
	return Apply(features, PropertyEquals(field, value))
}

// ByPropertyIn keeps features whose property field equals any of values.
func ByPropertyIn[T any](features []*geojson.Feature, field string, values []T) []*geojson.Feature {
	return Apply(features, PropertyIn(field, values))
}

// ByBounds keeps features all of whose vertices lie inside or on boundary.
//
// This is a vertex test, not a polygon-in-polygon test: a feature whose
// vertices are all inside but whose edges cross the boundary is still kept,
// and any vertex outside excludes the feature.
func ByBounds(features []*geojson.Feature, boundary *geometry.Polygon) []*geojson.Feature {
	return Apply(features, WithinBounds(boundary))
}

// ByProximity keeps features with at least one vertex within maxDistance
// great-circle distance of center on a sphere of the given radius.
func ByProximity(features []*geojson.Feature, center geom.Coord, maxDistance, radius float64) []*geojson.Feature {
	return Apply(features, Near(center, maxDistance, radius))
}

// ByMinArea keeps polygonal features whose total exterior-ring area (summed
// over parts, holes not subtracted) is at least minArea, in radius² units.
// Features without Polygon or MultiPolygon geometry are dropped.
func ByMinArea(features []*geojson.Feature, minArea, radius float64) []*geojson.Feature {
	return Apply(features, MinArea(minArea, radius))
}

// PropertyEquals matches features whose property field equals value.
// Numbers compare by value regardless of their Go type.
func PropertyEquals(field string, value any) Predicate {
	return func(f *geojson.Feature) bool {
		v, ok := f.Properties[field]
		return ok && equal(v, value)
	}
}

// PropertyIn matches features whose property field equals any of values.
func PropertyIn[T any](field string, values []T) Predicate {
	return func(f *geojson.Feature) bool {
		v, ok := f.Properties[field]
		if !ok {
			return false
		}
		for _, want := range values {
			if equal(v, want) {
				return true
			}
		}
		return false
	}
}

// WithinBounds matches features whose vertices all lie inside or on boundary.
func WithinBounds(boundary *geometry.Polygon) Predicate {
	return func(f *geojson.Feature) bool {
		if boundary == nil || f.Geometry == nil {
			return false
		}
		inside := true
		eachVertex(f.Geometry, func(c geom.Coord) bool {
			inside = boundary.Contains(c)
			return inside
		})
		return inside
	}
}

// Near matches features with any vertex within maxDistance of center.
func Near(center geom.Coord, maxDistance, radius float64) Predicate {
	return func(f *geojson.Feature) bool {
		if f.Geometry == nil {
			return false
		}
		found := false
		eachVertex(f.Geometry, func(c geom.Coord) bool {
			found = sphere.Distance(center, c, radius) <= maxDistance
			return !found
		})
		return found
	}
}

// MinArea matches polygonal features of at least minArea.
func MinArea(minArea, radius float64) Predicate {
	return func(f *geojson.Feature) bool {
		area, ok := ExteriorArea(f.Geometry, radius)
		return ok && area >= minArea
	}
}

// ExteriorArea sums the exterior-ring areas of a Polygon or MultiPolygon.
func ExteriorArea(t geom.T, radius float64) (float64, bool) {
	switch g := t.(type) {
	case *geom.Polygon:
		return sphere.PolygonArea(g, radius), true
	case *geom.MultiPolygon:
		var total float64
		for i := 0; i < g.NumPolygons(); i++ {
			total += sphere.PolygonArea(g.Polygon(i), radius)
		}
		return total, true
	default:
		return 0, false
	}
}

// eachVertex calls fn with every coordinate of t until fn returns false.
func eachVertex(t geom.T, fn func(geom.Coord) bool) {
	flat := t.FlatCoords()
	stride := t.Stride()
	if stride == 0 {
		return
	}
	for i := 0; i+stride <= len(flat); i += stride {
		if !fn(geom.Coord(flat[i : i+stride])) {
			return
		}
	}
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
