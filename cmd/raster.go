package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/popdensity/internal/raster"
	"github.com/sells-group/popdensity/internal/sphere"
)

var rasterCmd = &cobra.Command{
	Use:   "raster [path]",
	Short: "Describe a population raster",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Raster.Path
		if len(args) == 1 {
			path = args[0]
		}
		grid, err := loadGrid(path)
		if err != nil {
			return err
		}
		formatRaster(cmd.OutOrStdout(), path, grid, cfg.Density.Radius)
		return nil
	},
}

// formatRaster prints the shape, extent and ground pixel size of grid.
func formatRaster(out io.Writer, path string, grid *raster.Grid, radius float64) {
	rows, cols := grid.Shape()
	b := grid.Bounds()
	lonScale, latScale := sphere.PixelScale(rows, cols, b, radius)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Path:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Shape:\t%d rows x %d cols\n", rows, cols)
	_, _ = fmt.Fprintf(w, "Bounds:\t%.6f, %.6f, %.6f, %.6f\n", b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	_, _ = fmt.Fprintf(w, "Pixel size:\t%.1f m x %.1f m\n", latScale, lonScale)
	if nd, ok := grid.NoData(); ok {
		_, _ = fmt.Fprintf(w, "NoData:\t%g\n", nd)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(rasterCmd)
}
