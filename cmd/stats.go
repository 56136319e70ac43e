package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/popdensity/internal/report"
)

var statsSel *selection

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise population over all selected features",
	Long:  "Masks the raster to the union of the selected features once and prints total population, peak cell, area and density.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("density"); err != nil {
			return err
		}

		sel, err := statsSel.resolve(cmd)
		if err != nil {
			return err
		}
		features, err := loadFeatures(ctx, sel)
		if err != nil {
			return err
		}
		set, err := buildSet(features, sel)
		if err != nil {
			return err
		}
		grid, err := loadGrid(sel.raster)
		if err != nil {
			return err
		}
		eng, err := newEngine(grid, 0)
		if err != nil {
			return err
		}

		st, err := eng.Summary(ctx, set.Geometries())
		if err != nil {
			return err
		}
		st.Warnings = append(featureDiagnostics(set), st.Warnings...)
		return report.WriteSummary(cmd.OutOrStdout(), st)
	},
}

func init() {
	statsSel = addSelectionFlags(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
