package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/popdensity/internal/config"
)

// testASC is a 4x4 grid over lon 0..4, lat 0..4.
const testASC = `ncols 4
nrows 4
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
1 1 5 5
1 1 5 5
2 2 0 0
2 2 0 0
`

// testGeoJSON holds three squares, one with a duplicate name, and a point.
const testGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"shapeName": "A", "shapeID": "BGD-1", "shapeGroup": "BGD"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"shapeName": "B", "shapeID": "BGD-2", "shapeGroup": "BGD"},
     "geometry": {"type": "Polygon", "coordinates": [[[2,2],[4,2],[4,4],[2,4],[2,2]]]}},
    {"type": "Feature", "properties": {"shapeName": "A", "shapeID": "BGD-3", "shapeGroup": "IND"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,2],[2,2],[2,4],[0,4],[0,2]]]}},
    {"type": "Feature", "properties": {"shapeName": "P", "shapeID": "BGD-4", "shapeGroup": "BGD"},
     "geometry": {"type": "Point", "coordinates": [1,1]}}
  ]
}`

// writeInputs writes the test raster and boundaries into dir.
func writeInputs(t *testing.T, dir string) (rasterPath, boundaryPath string) {
	t.Helper()
	rasterPath = filepath.Join(dir, "pop.asc")
	boundaryPath = filepath.Join(dir, "bounds.geojson")
	require.NoError(t, os.WriteFile(rasterPath, []byte(testASC), 0o644))
	require.NoError(t, os.WriteFile(boundaryPath, []byte(testGeoJSON), 0o644))
	return rasterPath, boundaryPath
}

// chdirTemp runs the test in a fresh directory so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

// useDefaultConfig sets the package config to the loaded defaults.
func useDefaultConfig(t *testing.T) {
	t.Helper()
	chdirTemp(t)
	c, err := config.Load()
	require.NoError(t, err)
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}
