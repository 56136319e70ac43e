package main

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/geometry"
	"github.com/sells-group/popdensity/internal/report"
	"github.com/sells-group/popdensity/internal/store"
)

var (
	densitySel     *selection
	densityWorkers int
	densityXLSX    string
	densityFormat  string
	densitySave    bool
)

var densityCmd = &cobra.Command{
	Use:   "density",
	Short: "Compute population density per boundary feature",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("density"); err != nil {
			return err
		}

		sel, err := densitySel.resolve(cmd)
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
		eng, err := newEngine(grid, densityWorkers)
		if err != nil {
			return err
		}

		results, err := eng.ForShapes(ctx, set.Geometries())
		if err != nil {
			if sel.strict {
				return eris.Wrap(err, "density")
			}
			zap.L().Warn("density: some features failed", zap.Error(err))
		}

		rows, err := report.Rows(set.Features(), results)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch densityFormat {
		case "json":
			err = report.WriteJSON(out, rows)
		case "table", "":
			err = report.WriteTable(out, rows)
		default:
			err = eris.Errorf("unknown --format %q", densityFormat)
		}
		if err != nil {
			return err
		}

		if densityXLSX != "" {
			if err := report.WriteXLSX(densityXLSX, rows); err != nil {
				return err
			}
			zap.L().Info("wrote spreadsheet", zap.String("path", densityXLSX))
		}

		if densitySave {
			runID, err := saveRun(ctx, sel, eng, set, results)
			if err != nil {
				return err
			}
			cmd.PrintErrf("Saved run %s\n", runID)
		}
		return nil
	},
}

// saveRun persists one density run with its per-feature records and
// diagnostics.
func saveRun(ctx context.Context, sel selection, eng *density.Engine, set *geometry.FeatureSet, results []density.Result) (string, error) {
	st, err := initStore(ctx)
	if err != nil {
		return "", err
	}
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, store.Run{
		Region:   sel.region,
		Boundary: sel.boundaries,
		Raster:   sel.raster,
		IDField:  sel.idField,
		Radius:   eng.Radius(),
		Params: map[string]string{
			"group":         sel.group,
			"min_ring_area": strconv.FormatFloat(sel.minRingArea, 'g', -1, 64),
			"keep_top":      strconv.Itoa(sel.keepTop),
			"on_duplicate":  sel.onDuplicate,
		},
	})
	if err != nil {
		return "", err
	}

	records, diags := runRecords(set, results)
	failed := len(set.Failures)
	for _, r := range records {
		if r.Error != "" {
			failed++
		}
	}

	if err := st.SaveResults(ctx, run.ID, records); err != nil {
		_ = st.FinishRun(ctx, run.ID, store.RunStatusFailed, len(records), failed)
		return "", err
	}
	if err := st.SaveDiagnostics(ctx, run.ID, diags); err != nil {
		_ = st.FinishRun(ctx, run.ID, store.RunStatusFailed, len(records), failed)
		return "", err
	}
	if err := st.FinishRun(ctx, run.ID, store.RunStatusComplete, len(records), failed); err != nil {
		return "", err
	}
	return run.ID, nil
}

// runRecords converts results into store records and collects every warning
// and rejection as a diagnostic.
func runRecords(set *geometry.FeatureSet, results []density.Result) ([]store.Record, []store.Diagnostic) {
	features := set.Features()
	records := make([]store.Record, len(features))
	var diags []store.Diagnostic

	for _, w := range set.Warnings {
		diags = append(diags, store.Diagnostic{FeatureID: w.ID, Level: "warn", Message: w.Message})
	}
	for _, f := range set.Failures {
		diags = append(diags, store.Diagnostic{FeatureID: f.ID, Level: "error", Message: f.Error()})
	}

	for i, f := range features {
		rec := store.Record{FeatureID: f.ID, Kind: f.Geometry.Kind().String()}
		if i < len(results) {
			r := results[i]
			if r.Err != nil {
				rec.Error = r.Err.Error()
				diags = append(diags, store.Diagnostic{FeatureID: f.ID, Level: "error", Message: rec.Error})
			} else {
				rec.Population = r.Population
				rec.AreaM2 = r.AreaM2
				rec.Density = r.Density
			}
			for _, w := range r.Warnings {
				diags = append(diags, store.Diagnostic{FeatureID: f.ID, Level: "warn", Message: w})
			}
		}
		records[i] = rec
	}
	return records, diags
}

func init() {
	densitySel = addSelectionFlags(densityCmd)
	densityCmd.Flags().IntVar(&densityWorkers, "workers", 0, "concurrent features (default from config, then CPU count)")
	densityCmd.Flags().StringVar(&densityXLSX, "xlsx", "", "also write results to this .xlsx file")
	densityCmd.Flags().StringVar(&densityFormat, "format", "table", "output format: table or json")
	densityCmd.Flags().BoolVar(&densitySave, "save", false, "persist the run to the configured store")
	rootCmd.AddCommand(densityCmd)
}
