package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/geometry"
)

func sampleRows() []Row {
	return []Row{
		{ID: "Dhaka", Kind: "Polygon", Population: 1234567, AreaKm2: 306.4, Density: 4029.3},
		{ID: "Bad", Kind: "MultiPolygon", Error: "density: unsupported shape type"},
	}
}

func TestRows(t *testing.T) {
	p, err := geometry.NewPolygonFromCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	require.NoError(t, err)

	features := []geometry.Feature{{ID: "A", Geometry: p}, {ID: "B"}}
	results := []density.Result{
		{Population: 10, AreaM2: 2e6, Density: 5},
		{Err: eris.New("boom")},
	}
	rows, err := Rows(features, results)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{ID: "A", Kind: "Polygon", Population: 10, AreaKm2: 2, Density: 5}, rows[0])
	assert.Equal(t, "B", rows[1].ID)
	assert.Contains(t, rows[1].Error, "boom")

	_, err = Rows(features, results[:1])
	assert.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummary(&buf, density.Stats{
		TotalPopulation: 1234567.4,
		MaxCellValue:    987.6,
		TotalAreaKm2:    15000.2,
		Density:         82.3,
		Warnings:        []string{"no raster cells"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "988")
	assert.Contains(t, out, "15,000 km²")
	assert.Contains(t, out, "82 people/km²")
	assert.Contains(t, out, "Warning:")
	assert.Equal(t, 5, strings.Count(out, "\n"))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Dhaka")
	assert.Contains(t, lines[1], "1,234,567")
	assert.Contains(t, lines[2], "unsupported shape type")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRows()))

	var got []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRows(), got)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path, sampleRows()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "density", sheet.Rows[0].Cells[4].String())
	assert.Equal(t, "Dhaka", sheet.Rows[1].Cells[0].String())
	pop, err := sheet.Rows[1].Cells[2].Float()
	require.NoError(t, err)
	assert.Equal(t, 1234567.0, pop)
}

func TestWriteXLSX_BadPath(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "missing", "out.xlsx"), sampleRows())
	assert.Error(t, err)
}
