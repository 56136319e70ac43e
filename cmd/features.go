package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/popdensity/internal/filter"
	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/sphere"
)

var (
	featuresSel         *selection
	featuresWithin      string
	featuresNear        string
	featuresMaxDistance float64
	featuresMinArea     float64
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List boundary features after filtering",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := featuresSel.resolve(cmd)
		if err != nil {
			return err
		}
		features, err := loadFeatures(ctx, sel)
		if err != nil {
			return err
		}

		var preds []filter.Predicate
		if featuresWithin != "" {
			box, err := parseBox(featuresWithin)
			if err != nil {
				return err
			}
			preds = append(preds, filter.WithinBounds(box))
		}
		if featuresNear != "" {
			center, err := parseCoord(featuresNear)
			if err != nil {
				return err
			}
			if featuresMaxDistance < 0 {
				return eris.New("--max-distance must be >= 0")
			}
			preds = append(preds, filter.Near(center, featuresMaxDistance, cfg.Density.Radius))
		}
		if featuresMinArea > 0 {
			preds = append(preds, filter.MinArea(featuresMinArea, cfg.Density.Radius))
		}
		features = filter.Apply(features, preds...)

		set, err := buildSet(features, sel)
		if err != nil {
			return err
		}
		formatFeatures(cmd.OutOrStdout(), set.Features(), cfg.Density.Radius)
		for _, d := range featureDiagnostics(set) {
			cmd.PrintErrln(d)
		}
		return nil
	},
}

// formatFeatures writes one line per feature with its exterior area.
func formatFeatures(out io.Writer, features []geometry.Feature, radius float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tPARTS\tAREA_KM2")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t--------")
	for _, f := range features {
		var area float64
		polys := f.Geometry.Polygons()
		for _, p := range polys {
			area += sphere.PolygonArea(p, radius)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", f.ID, f.Geometry.Kind(), len(polys), area/1e6)
	}
	_ = w.Flush()
}

// parseCoord parses "lon,lat".
func parseCoord(s string) (geom.Coord, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return nil, err
	}
	return geom.Coord{v[0], v[1]}, nil
}

// parseBox parses "minLon,minLat,maxLon,maxLat" into a rectangle.
func parseBox(s string) (*geometry.Polygon, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return nil, err
	}
	minX, minY, maxX, maxY := v[0], v[1], v[2], v[3]
	if minX >= maxX || minY >= maxY {
		return nil, eris.Errorf("invalid box %q: min must be below max", s)
	}
	return geometry.NewPolygonFromCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, eris.Errorf("invalid value %q: want %d comma-separated numbers", s, n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid value %q", s)
		}
		out[i] = f
	}
	return out, nil
}

func init() {
	featuresSel = addSelectionFlags(featuresCmd)
	featuresCmd.Flags().StringVar(&featuresWithin, "within", "", "keep features inside minLon,minLat,maxLon,maxLat")
	featuresCmd.Flags().StringVar(&featuresNear, "near", "", "keep features with a vertex near lon,lat")
	featuresCmd.Flags().Float64Var(&featuresMaxDistance, "max-distance", 0, "great-circle distance in metres for --near; 0 matches coincident vertices only")
	featuresCmd.Flags().Float64Var(&featuresMinArea, "min-area", 0, "keep features with at least this exterior area in m²")
	rootCmd.AddCommand(featuresCmd)
}
