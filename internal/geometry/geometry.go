// Package geometry holds the polygon model used by the density pipeline and
// converts raw boundary records into it.
//
// A Geometry is either a *Polygon or a *MultiPolygon. The interface is sealed:
// no other package can add members, so a switch over those two types (or
// Match) covers every value.
package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Sentinel errors. Wrapped errors carry the feature identifier and raw type.
var (
	ErrUnsupportedGeometryType = eris.New("geometry: unsupported geometry type")
	ErrEmptyGeometry           = eris.New("geometry: no ring with at least 4 points")
	ErrDuplicateIdentifier     = eris.New("geometry: duplicate identifier")
	ErrMissingIdentifier       = eris.New("geometry: missing identifier")
)

// minRingPoints is the smallest closed ring: a triangle plus the closing point.
const minRingPoints = 4

// Kind tags the members of Geometry.
type Kind int

const (
	KindPolygon Kind = iota + 1
	KindMultiPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	default:
		return "Unknown"
	}
}

// Geometry is a Polygon or a MultiPolygon.
type Geometry interface {
	Kind() Kind
	// T returns the underlying go-geom value. Callers must not modify it.
	T() geom.T
	// Polygons returns the member polygons: one for a Polygon, every part
	// for a MultiPolygon.
	Polygons() []*geom.Polygon
	Bounds() *geom.Bounds

	sealed()
}

// Polygon is one exterior ring with zero or more holes.
type Polygon struct {
	p *geom.Polygon
}

// NewPolygon copies p into a Polygon. It fails with ErrEmptyGeometry when p
// has no ring of at least four points.
func NewPolygon(p *geom.Polygon) (*Polygon, error) {
	if p == nil || !hasRing(p) {
		return nil, ErrEmptyGeometry
	}
	return &Polygon{p: p.Clone()}, nil
}

// NewPolygonFromCoords builds a Polygon from rings of coordinates, exterior
// first.
func NewPolygonFromCoords(rings [][]geom.Coord) (*Polygon, error) {
	p, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: set polygon coords")
	}
	return NewPolygon(p)
}

func (p *Polygon) Kind() Kind                { return KindPolygon }
func (p *Polygon) T() geom.T                 { return p.p }
func (p *Polygon) Polygons() []*geom.Polygon { return []*geom.Polygon{p.p} }
func (p *Polygon) Bounds() *geom.Bounds      { return p.p.Bounds() }
func (p *Polygon) sealed()                   {}

// Geom returns the underlying polygon. Callers must not modify it.
func (p *Polygon) Geom() *geom.Polygon { return p.p }

// Exterior returns the exterior ring.
func (p *Polygon) Exterior() *geom.LinearRing { return p.p.LinearRing(0) }

// Holes returns the interior rings.
func (p *Polygon) Holes() []*geom.LinearRing {
	n := p.p.NumLinearRings()
	holes := make([]*geom.LinearRing, 0, n-1)
	for i := 1; i < n; i++ {
		holes = append(holes, p.p.LinearRing(i))
	}
	return holes
}

// MultiPolygon is an ordered group of polygons under one identifier.
type MultiPolygon struct {
	mp *geom.MultiPolygon
}

// NewMultiPolygon copies mp into a MultiPolygon. At least one part must have
// a ring of four or more points.
func NewMultiPolygon(mp *geom.MultiPolygon) (*MultiPolygon, error) {
	if mp == nil {
		return nil, ErrEmptyGeometry
	}
	ok := false
	for i := 0; i < mp.NumPolygons(); i++ {
		if hasRing(mp.Polygon(i)) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, ErrEmptyGeometry
	}
	return &MultiPolygon{mp: mp.Clone()}, nil
}

func (m *MultiPolygon) Kind() Kind           { return KindMultiPolygon }
func (m *MultiPolygon) T() geom.T            { return m.mp }
func (m *MultiPolygon) Bounds() *geom.Bounds { return m.mp.Bounds() }
func (m *MultiPolygon) sealed()              {}

// Geom returns the underlying multipolygon. Callers must not modify it.
func (m *MultiPolygon) Geom() *geom.MultiPolygon { return m.mp }

// Polygons returns the parts in order.
func (m *MultiPolygon) Polygons() []*geom.Polygon {
	n := m.mp.NumPolygons()
	out := make([]*geom.Polygon, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, m.mp.Polygon(i))
	}
	return out
}

// Len returns the number of parts.
func (m *MultiPolygon) Len() int { return m.mp.NumPolygons() }

// IsNil reports whether g is nil or a typed nil *Polygon / *MultiPolygon.
func IsNil(g Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case *Polygon:
		return v == nil
	case *MultiPolygon:
		return v == nil
	}
	return false
}

// Match calls exactly one of the callbacks depending on the kind of g. A nil
// geometry fails with ErrUnsupportedGeometryType.
func Match(g Geometry, onPolygon func(*Polygon) error, onMulti func(*MultiPolygon) error) error {
	switch v := g.(type) {
	case *Polygon:
		if v == nil {
			break
		}
		return onPolygon(v)
	case *MultiPolygon:
		if v == nil {
			break
		}
		return onMulti(v)
	}
	return eris.Wrap(ErrUnsupportedGeometryType, "geometry: nil geometry")
}

func hasRing(p *geom.Polygon) bool {
	for i := 0; i < p.NumLinearRings(); i++ {
		if p.LinearRing(i).NumCoords() >= minRingPoints {
			return true
		}
	}
	return false
}

// typeName returns the GeoJSON type name of a decoded geometry.
func typeName(t geom.T) string {
	switch t.(type) {
	case nil:
		return "null"
	case *geom.Point:
		return "Point"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.LineString:
		return "LineString"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.LinearRing:
		return "LinearRing"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return "unknown"
	}
}
