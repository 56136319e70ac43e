package boundary

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// LoadGeoJSON decodes a GeoJSON FeatureCollection file.
func LoadGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	return DecodeGeoJSON(data)
}

// DecodeGeoJSON decodes a GeoJSON FeatureCollection document.
func DecodeGeoJSON(data []byte) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geojson")
	}
	for i, f := range fc.Features {
		if f == nil {
			return nil, eris.Errorf("boundary: feature %d is null", i)
		}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
	}
	return &fc, nil
}
