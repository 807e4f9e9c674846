package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vogtb/go-spreadflow/packages/logging"
	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

// writeWorkbook saves a two sheet workbook. Sheet1 pulls a feed into A1 and
// pushes A1*B1 plus two names out of C1.
func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Inputs")
	require.NoError(t, err)

	require.NoError(t, f.SetCellFormula("Sheet1", "A1", `RTGET("feed")`))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", 42))
	require.NoError(t, f.SetCellFormula("Sheet1", "C1", "RTC(A1*B1+rate+local)"))
	require.NoError(t, f.SetCellValue("Sheet1", "D1", 1))
	require.NoError(t, f.SetCellValue("Inputs", "B2", 3))
	require.NoError(t, f.SetSheetDimension("Sheet1", "A1:D1"))

	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{
		Name:     "rate",
		RefersTo: "Inputs!$B$2",
	}))
	require.NoError(t, f.SetDefinedName(&excelize.DefinedName{
		Name:     "local",
		RefersTo: "Sheet1!$D$1",
		Scope:    "Sheet1",
	}))

	path := filepath.Join(t.TempDir(), "model.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestDefinedNames(t *testing.T) {
	w, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer w.Close()

	assert.ElementsMatch(t, []spreadsheet.DefinedName{
		{Name: "rate", Definition: "Inputs!$B$2", Scope: ""},
		{Name: "local", Definition: "Sheet1!$D$1", Scope: "Sheet1"},
	}, w.DefinedNames())
}

func TestCells(t *testing.T) {
	w, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []string{"Sheet1", "Inputs"}, w.Sheets())

	cells, err := w.Cells(context.Background(), "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, []spreadsheet.CellRecord{
		{Sheet: "Sheet1", Target: "A1", Raw: `=RTGET("feed")`},
		{Sheet: "Sheet1", Target: "B1", Raw: "42"},
		{Sheet: "Sheet1", Target: "C1", Raw: "=RTC(A1*B1+rate+local)"},
		{Sheet: "Sheet1", Target: "D1", Raw: "1"},
	}, cells)

	cells, err = w.Cells(context.Background(), "Inputs")
	require.NoError(t, err)
	assert.Equal(t, []spreadsheet.CellRecord{
		{Sheet: "Inputs", Target: "B2", Raw: "3"},
	}, cells)
}

func TestCellsUnknownSheet(t *testing.T) {
	w, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Cells(context.Background(), "Missing")
	assert.Error(t, err)
}

func TestFeed(t *testing.T) {
	ctx := logging.WithLogger(context.Background(), logging.Discard())
	w, err := Open(writeWorkbook(t))
	require.NoError(t, err)
	defer w.Close()

	p := spreadsheet.NewProgram()
	report, err := w.Feed(ctx, spreadsheet.NewLoader(p))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Formulas)
	assert.Equal(t, 2, report.Aliases)
	assert.Equal(t, 3, report.Values)
	assert.Empty(t, report.Diagnostics)

	ingress, egress := p.Classify(spreadsheet.DefaultClassifier())
	assert.Equal(t, 1, ingress)
	assert.Equal(t, 1, egress)

	run, err := spreadsheet.NewEngine(p).Run(ctx)
	require.NoError(t, err)
	require.Len(t, run.Trees, 1)
	assert.Empty(t, run.Unresolved())

	a1, ok := p.Formula("Sheet1", spreadsheet.MustParseCoordinate("A1"))
	require.True(t, ok)
	c1, ok := p.Formula("Sheet1", spreadsheet.MustParseCoordinate("C1"))
	require.True(t, ok)
	assert.Equal(t, []spreadsheet.Location{c1.Location()}, a1.Outputs())
	assert.True(t, run.Trees[0].Contains(a1))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}
