// Package report renders density results as text summaries, tables and
// spreadsheets.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/popdensity/internal/density"
	"github.com/sells-group/popdensity/internal/geometry"
)

// Row is one feature's line in a report.
type Row struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Population float64 `json:"population"`
	AreaKm2    float64 `json:"area_km2"`
	Density    float64 `json:"density"`
	Error      string  `json:"error,omitempty"`
}

// Rows pairs features with their density results. Both slices must be in
// the same order.
func Rows(features []geometry.Feature, results []density.Result) ([]Row, error) {
	if len(features) != len(results) {
		return nil, eris.Errorf("report: %d features but %d results", len(features), len(results))
	}
	rows := make([]Row, len(features))
	for i, f := range features {
		r := results[i]
		row := Row{ID: f.ID}
		if f.Geometry != nil {
			row.Kind = f.Geometry.Kind().String()
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		} else {
			row.Population = r.Population
			row.AreaKm2 = r.AreaKm2()
			row.Density = r.Density
		}
		rows[i] = row
	}
	return rows, nil
}

func printer() *message.Printer {
	return message.NewPrinter(language.English)
}

// WriteSummary prints aggregate statistics with English digit grouping.
func WriteSummary(w io.Writer, st density.Stats) error {
	p := printer()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	lines := []string{
		p.Sprintf("Population:\t%d", int64(math.Round(st.TotalPopulation))),
		p.Sprintf("Max cell value:\t%d", int64(math.Round(st.MaxCellValue))),
		p.Sprintf("Area:\t%d km²", int64(math.Round(st.TotalAreaKm2))),
		p.Sprintf("Density:\t%d people/km²", int64(math.Round(st.Density))),
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(tw, l); err != nil {
			return eris.Wrap(err, "report: write summary")
		}
	}
	for _, warn := range st.Warnings {
		if _, err := fmt.Fprintf(tw, "Warning:\t%s\n", warn); err != nil {
			return eris.Wrap(err, "report: write summary")
		}
	}
	return eris.Wrap(tw.Flush(), "report: flush summary")
}

// WriteTable prints one tab-aligned line per row.
func WriteTable(w io.Writer, rows []Row) error {
	p := printer()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tKIND\tPOPULATION\tAREA_KM2\tDENSITY\tERROR")
	for _, r := range rows {
		if _, err := fmt.Fprintln(tw, p.Sprintf("%s\t%s\t%d\t%.2f\t%.1f\t%s",
			r.ID, r.Kind, int64(math.Round(r.Population)), r.AreaKm2, r.Density, r.Error)); err != nil {
			return eris.Wrap(err, "report: write table")
		}
	}
	return eris.Wrap(tw.Flush(), "report: flush table")
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "report: encode json")
}
