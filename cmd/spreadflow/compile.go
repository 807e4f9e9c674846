package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadflow/packages/spreadsheet"
)

func newCompileCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <statement>",
		Short: "Print the IR of one statement",
		Long: `Compile one statement and print its instructions, value pool and
reference pool. A bare formula is compiled as if it were in A1 of --sheet
(default Sheet1).

Examples:
  spreadflow compile "'Sheet1'!C1 @= RTC(A1*B1)"
  spreadflow compile '=IF(B1>0, "pos", "neg")'
  spreadflow compile "rate := 'Inputs'!B2"
  spreadflow compile "'Sheet1'!local := \$C\$3"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, root, args[0])
		},
	}
}

func runCompile(cmd *cobra.Command, root *rootOptions, src string) error {
	sheet := root.sheet
	if sheet == "" {
		sheet = "Sheet1"
	}

	src = strings.TrimSpace(src)
	switch {
	case strings.Contains(src, spreadsheet.MarkerFormula):
		// compiled as written
	case strings.Contains(src, spreadsheet.MarkerAlias):
		return compileAlias(cmd, sheet, src)
	default:
		src = "A1 " + spreadsheet.MarkerFormula + " " + strings.TrimPrefix(src, "=")
	}

	stmt, err := spreadsheet.Compile(src, &spreadsheet.CompileContext{Line: 1, Sheet: sheet})
	if err != nil {
		return inputError("%v", err)
	}
	for _, diag := range stmt.Diagnostics {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", diag)
	}

	w := cmd.OutOrStdout()
	if stmt.Alias != nil {
		scope := stmt.Alias.Scope
		if scope == "" {
			scope = "workbook"
		}
		fmt.Fprintf(w, "%s (%s) -> %s\n", stmt.Alias.Name, scope, stmt.Alias.Target)
		return nil
	}

	classifier, err := root.classifier(cmd.Context())
	if err != nil {
		return err
	}
	stmt.Formula.SetClassification(classifier.Classify(stmt.Formula))
	fmt.Fprint(w, stmt.Formula.IR())
	return nil
}

// compileAlias loads one name definition the way a model file would, so
// sheet scoped names and coordinate aliases work the same as in analyze
func compileAlias(cmd *cobra.Command, sheet, src string) error {
	p := spreadsheet.NewProgram()
	loader := spreadsheet.NewLoader(p, spreadsheet.WithDefaultSheet(sheet))
	report, err := loader.LoadText(cmd.Context(), strings.NewReader(src))
	if err != nil {
		return inputError("%v", err)
	}
	if report.Aliases == 0 {
		if len(report.Diagnostics) == 0 {
			return inputError("no name definition in %q", src)
		}
		return inputError("%v", errors.Join(report.Diagnostics...))
	}
	for _, diag := range report.Diagnostics {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", diag)
	}

	w := cmd.OutOrStdout()
	for def := range p.Aliases().All() {
		scope := def.Scope
		if scope == "" {
			scope = "workbook"
		}
		fmt.Fprintf(w, "%s (%s) -> %s\n", def.Name, scope, def.Target)
	}
	return nil
}
