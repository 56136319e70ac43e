package boundary

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity/internal/sphere"
)

// LoadShapefile reads a polygon shapefile and its .dbf attributes. Parts are
// grouped into polygons by ring orientation: a clockwise ring starts a new
// polygon and counter-clockwise rings are holes of the preceding one.
func LoadShapefile(path string) (*geojson.FeatureCollection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	fc := &geojson.FeatureCollection{}
	var skipped int
	for reader.Next() {
		idx, shape := reader.Shape()

		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[names[i]] = attributeValue(f, reader.Attribute(i))
		}

		g, err := shapeToGeom(shape)
		if err != nil {
			zap.L().With(zap.String("component", "boundary")).Debug("boundary: skipping malformed shape",
				zap.Int("index", idx), zap.Error(err))
			skipped++
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	if skipped > 0 {
		zap.L().With(zap.String("component", "boundary")).Warn("boundary: shapefile records without geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return fc, nil
}

// LoadShapefileZip extracts a zipped shapefile to a temp dir and loads the
// first .shp it contains.
func LoadShapefileZip(zipPath string) (*geojson.FeatureCollection, error) {
	dir, err := os.MkdirTemp("", "popdensity-shp-*")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: create extract dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	if err := extractZIP(zipPath, dir); err != nil {
		return nil, eris.Wrapf(err, "boundary: extract %s", zipPath)
	}
	shpPath, err := findFileByExt(dir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: find .shp file")
	}
	return LoadShapefile(shpPath)
}

func attributeValue(f shp.Field, raw string) any {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	switch f.Fieldtype {
	case 'N', 'F':
		if val == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
	}
	return val
}

// shapeToGeom converts a go-shp shape. Non-polygon shapes are returned as
// their go-geom equivalent so extraction can reject them by type.
func shapeToGeom(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, eris.New("null shape")
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}), nil
	case *shp.PolyLine:
		return partsToLineStrings(s.Parts, s.Points)
	case *shp.Polygon:
		return partsToPolygons(s.Parts, s.Points)
	default:
		return nil, eris.Errorf("unsupported shape %T", shape)
	}
}

func partRanges(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < end {
			out = append(out, [2]int{int(start), end})
		}
	}
	return out
}

func partsToPolygons(parts []int32, points []shp.Point) (geom.T, error) {
	var polys [][][]geom.Coord
	for _, r := range partRanges(parts, len(points)) {
		ring := make([]geom.Coord, 0, r[1]-r[0])
		flat := make([]float64, 0, 2*(r[1]-r[0]))
		for _, p := range points[r[0]:r[1]] {
			ring = append(ring, geom.Coord{p.X, p.Y})
			flat = append(flat, p.X, p.Y)
		}
		clockwise := sphere.ShoelaceArea(flat, 2) < 0
		if clockwise || len(polys) == 0 {
			polys = append(polys, [][]geom.Coord{ring})
			continue
		}
		last := len(polys) - 1
		polys[last] = append(polys[last], ring)
	}

	switch len(polys) {
	case 0:
		return nil, eris.New("polygon has no parts")
	case 1:
		p, err := geom.NewPolygon(geom.XY).SetCoords(polys[0])
		return p, eris.Wrap(err, "polygon coords")
	default:
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
		return mp, eris.Wrap(err, "multipolygon coords")
	}
}

func partsToLineStrings(parts []int32, points []shp.Point) (geom.T, error) {
	var lines [][]geom.Coord
	for _, r := range partRanges(parts, len(points)) {
		line := make([]geom.Coord, 0, r[1]-r[0])
		for _, p := range points[r[0]:r[1]] {
			line = append(line, geom.Coord{p.X, p.Y})
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, eris.New("polyline has no parts")
	}
	mls, err := geom.NewMultiLineString(geom.XY).SetCoords(lines)
	return mls, eris.Wrap(err, "multilinestring coords")
}

// extractZIP extracts the files of a ZIP archive into destDir, flattening
// directories.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		outFile, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		if _, err := io.Copy(outFile, rc); err != nil {
			_ = outFile.Close()
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = outFile.Close()
		_ = rc.Close()
	}
	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
