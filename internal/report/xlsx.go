package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetName is the worksheet WriteXLSX creates.
const SheetName = "density"

var xlsxHeader = []string{"id", "kind", "population", "area_km2", "density", "error"}

// WriteXLSX saves rows to a workbook with a header row.
func WriteXLSX(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(r.Kind)
		row.AddCell().SetFloat(r.Population)
		row.AddCell().SetFloat(r.AreaKm2)
		row.AddCell().SetFloat(r.Density)
		row.AddCell().SetString(r.Error)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
