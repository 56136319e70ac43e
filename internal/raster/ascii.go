package raster

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// asciiHeader holds the ESRI ASCII grid header fields.
type asciiHeader struct {
	ncols, nrows int
	xll, yll     float64
	centre       bool
	cellSize     float64
	noData       float64
	hasNoData    bool
}

var asciiKeys = map[string]bool{
	"ncols": true, "nrows": true,
	"xllcorner": true, "xllcenter": true,
	"yllcorner": true, "yllcenter": true,
	"cellsize": true, "nodata_value": true,
}

// LoadASCIIGrid reads an ESRI ASCII grid (.asc) file into a Grid.
func LoadASCIIGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}
	return g, nil
}

// ReadASCIIGrid parses an ESRI ASCII grid. Rows are listed top to bottom.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	var h asciiHeader
	seen := map[string]bool{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if !asciiKeys[key] {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, eris.Errorf("raster: header %s has no value", key)
		}
		if err := h.set(key, sc.Text()); err != nil {
			return nil, err
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan header")
	}
	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if !seen[k] {
			return nil, eris.Errorf("raster: missing header %s", k)
		}
	}
	if h.ncols <= 0 || h.nrows <= 0 || h.cellSize <= 0 {
		return nil, eris.Errorf("raster: invalid header ncols=%d nrows=%d cellsize=%g", h.ncols, h.nrows, h.cellSize)
	}

	n := h.ncols * h.nrows
	values := make([]float64, 0, n)
	parse := func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return eris.Wrapf(err, "raster: cell %d", len(values))
		}
		values = append(values, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for len(values) < n && sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: scan cells")
	}
	if len(values) != n {
		return nil, eris.Errorf("raster: expected %d cells, got %d", n, len(values))
	}

	left, bottom := h.xll, h.yll
	if h.centre {
		left -= h.cellSize / 2
		bottom -= h.cellSize / 2
	}
	top := bottom + float64(h.nrows)*h.cellSize

	var opts []GridOption
	if h.hasNoData {
		opts = append(opts, WithNoData(h.noData))
	}
	return NewGrid(h.nrows, h.ncols, values, NorthUp(left, top, h.cellSize, h.cellSize), opts...)
}

func (h *asciiHeader) set(key, raw string) error {
	switch key {
	case "ncols", "nrows":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return eris.Wrapf(err, "raster: header %s", key)
		}
		if key == "ncols" {
			h.ncols = v
		} else {
			h.nrows = v
		}
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return eris.Wrapf(err, "raster: header %s", key)
	}
	switch key {
	case "xllcorner":
		h.xll = v
	case "xllcenter":
		h.xll, h.centre = v, true
	case "yllcorner":
		h.yll = v
	case "yllcenter":
		h.yll, h.centre = v, true
	case "cellsize":
		h.cellSize = v
	case "nodata_value":
		h.noData, h.hasNoData = v, true
	}
	return nil
}
