// Package boundary loads administrative boundary features from GeoJSON
// files, ESRI shapefiles and PostGIS tables into go-geom feature
// collections.
package boundary

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = eris.New("boundary: unsupported file format")

// Load reads a boundary file, choosing the decoder by extension.
func Load(ctx context.Context, path string) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "boundary: load")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".shp":
		return LoadShapefile(path)
	case ".zip":
		return LoadShapefileZip(path)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "boundary: %s", path)
	}
}
