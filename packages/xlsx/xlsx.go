// Package xlsx reads formulas, values and defined names out of an Excel
// workbook and feeds them to a spreadsheet.Loader.
package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

// workbookScope is how excelize names the scope of a global defined name
const workbookScope = "Workbook"

// Workbook is an open .xlsx or .xlsm file
type Workbook struct {
	file *excelize.File
	path string
}

// Open opens the workbook at path. cached formula results are never read,
// so the file does not need to have been calculated.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Workbook{file: f, path: path}, nil
}

// Close releases the workbook
func (w *Workbook) Close() error {
	return w.file.Close()
}

// Sheets lists the worksheet names in workbook order
func (w *Workbook) Sheets() []string {
	return w.file.GetSheetList()
}

// DefinedNames returns every defined name. workbook-global names get an
// empty scope.
func (w *Workbook) DefinedNames() []spreadsheet.DefinedName {
	var names []spreadsheet.DefinedName
	for _, dn := range w.file.GetDefinedName() {
		scope := dn.Scope
		if scope == workbookScope {
			scope = ""
		}
		names = append(names, spreadsheet.DefinedName{
			Name:       dn.Name,
			Definition: dn.RefersTo,
			Scope:      scope,
		})
	}
	return names
}

// Cells returns the non-empty cells of one sheet, column by column. formula
// cells carry their formula with a leading "=", other cells their raw value.
func (w *Workbook) Cells(ctx context.Context, sheet string) ([]spreadsheet.CellRecord, error) {
	rows, err := w.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	cols, height := 0, len(rows)
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	// formula cells without a cached result do not show up in GetRows, so
	// the declared dimension widens the scan
	if dc, dr, ok := w.dimension(sheet); ok {
		cols, height = max(cols, dc), max(height, dr)
	}

	var cells []spreadsheet.CellRecord
	for col := 1; col <= cols; col++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for row := 1; row <= height; row++ {
			name, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return nil, err
			}

			formula, err := w.file.GetCellFormula(sheet, name)
			if err != nil {
				return nil, fmt.Errorf("read formula %s!%s: %w", sheet, name, err)
			}
			if formula != "" {
				cells = append(cells, spreadsheet.CellRecord{
					Sheet:  sheet,
					Target: name,
					Raw:    "=" + strings.TrimPrefix(formula, "="),
				})
				continue
			}

			if row-1 < len(rows) && col-1 < len(rows[row-1]) {
				if v := rows[row-1][col-1]; v != "" {
					cells = append(cells, spreadsheet.CellRecord{Sheet: sheet, Target: name, Raw: v})
				}
			}
		}
	}
	return cells, nil
}

// dimension reads the bottom-right corner of the sheet's declared used range
func (w *Workbook) dimension(sheet string) (cols, rows int, ok bool) {
	ref, err := w.file.GetSheetDimension(sheet)
	if err != nil || ref == "" {
		return 0, 0, false
	}
	corner := ref
	if _, after, found := strings.Cut(ref, ":"); found {
		corner = after
	}
	cols, rows, err = excelize.CellNameToCoordinates(corner)
	if err != nil {
		return 0, 0, false
	}
	return cols, rows, true
}

// Feed loads the whole workbook: defined names first, then every sheet's
// cells. problems with single cells end up in the loader's report; only
// read failures stop the feed.
func (w *Workbook) Feed(ctx context.Context, l *spreadsheet.Loader) (*spreadsheet.LoadReport, error) {
	logger := logging.FromContext(ctx)

	names := w.DefinedNames()
	for _, dn := range names {
		l.LoadName(ctx, dn)
	}

	sheets := w.Sheets()
	for _, sheet := range sheets {
		cells, err := w.Cells(ctx, sheet)
		if err != nil {
			return l.Report(), err
		}
		for _, rec := range cells {
			l.LoadCell(ctx, rec)
		}
		logger.Debug("sheet loaded", "sheet", sheet, "cells", len(cells))
	}

	report := l.Report()
	logger.Info("workbook loaded",
		"path", w.path,
		"sheets", len(sheets),
		"names", len(names),
		"formulas", report.Formulas,
		"values", report.Values,
		"diagnostics", len(report.Diagnostics))
	return report, nil
}
