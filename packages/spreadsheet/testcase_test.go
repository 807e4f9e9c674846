package spreadsheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ProgramTestCase builds a program statement by statement, runs the engine
// and checks the resulting links. the first failure stops the chain.
type ProgramTestCase struct {
	t       *testing.T
	name    string
	program *Program
	sheet   string
	line    int
	report  *Report
	err     error
}

func NewProgramTestCase(t *testing.T, name string) *ProgramTestCase {
	return &ProgramTestCase{
		t:       t,
		name:    name,
		program: NewProgram(),
		sheet:   "Sheet1",
	}
}

// Sheet changes the sheet unqualified statements bind to
func (tc *ProgramTestCase) Sheet(name string) *ProgramTestCase {
	tc.sheet = name
	return tc
}

func (tc *ProgramTestCase) Formula(src string) *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	tc.line++
	stmt, err := Compile(src, &CompileContext{Line: tc.line, Sheet: tc.sheet})
	if err != nil {
		tc.err = err
		tc.t.Errorf("%s: Compile(%s) failed: %v", tc.name, src, err)
		return tc
	}
	tc.err = tc.program.AddFormula(stmt.Formula)
	return tc
}

// Alias defines name in scope ("" for a workbook-global name)
func (tc *ProgramTestCase) Alias(scope, name, target string) *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	tc.line++
	loc, err := ParseLocation(target, tc.sheet)
	if err != nil {
		tc.err = err
		tc.t.Errorf("%s: ParseLocation(%s) failed: %v", tc.name, target, err)
		return tc
	}
	tc.err = tc.program.AddAlias(AliasDefinition{Name: name, Scope: scope, Target: loc, Line: tc.line})
	return tc
}

func (tc *ProgramTestCase) Value(target, text string) *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	loc, err := ParseLocation(target, tc.sheet)
	if err != nil {
		tc.err = err
		return tc
	}
	tc.err = tc.program.SetValue(loc.Sheet, loc.Area.TopLeft, ParseLiteral(text))
	return tc
}

func (tc *ProgramTestCase) Classify() *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	tc.program.Classify(DefaultClassifier())
	return tc
}

func (tc *ProgramTestCase) Run(opts ...EngineOption) *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	tc.report, tc.err = NewEngine(tc.program, opts...).Run(context.Background())
	return tc
}

// RunAndAssertNoError classifies, runs, and fails on any error, including
// per-root errors kept in the report.
func (tc *ProgramTestCase) RunAndAssertNoError(opts ...EngineOption) *ProgramTestCase {
	tc.Classify().Run(opts...)
	if tc.err != nil {
		tc.t.Errorf("%s: Run() failed: %v", tc.name, tc.err)
		return tc
	}
	assert.Empty(tc.t, tc.report.Errors, tc.name)
	return tc
}

func (tc *ProgramTestCase) formula(target string) *Formula {
	loc, err := ParseLocation(target, tc.sheet)
	if err != nil {
		tc.t.Errorf("%s: ParseLocation(%s) failed: %v", tc.name, target, err)
		return nil
	}
	f, ok := tc.program.FormulaAt(loc)
	if !ok {
		tc.t.Errorf("%s: no formula at %s", tc.name, loc)
		return nil
	}
	return f
}

// AssertOutputs checks a formula's consumer list, in order
func (tc *ProgramTestCase) AssertOutputs(target string, want ...string) *ProgramTestCase {
	if tc.err != nil {
		return tc
	}
	f := tc.formula(target)
	if f == nil {
		return tc
	}
	got := make([]string, 0)
	for _, loc := range f.Outputs() {
		got = append(got, loc.String())
	}
	if want == nil {
		want = []string{}
	}
	assert.Equal(tc.t, want, got, "%s: outputs of %s", tc.name, target)
	return tc
}

// AssertTree checks the records reached from an egress root, root first
func (tc *ProgramTestCase) AssertTree(root string, want ...string) *ProgramTestCase {
	if tc.err != nil || tc.report == nil {
		return tc
	}
	f := tc.formula(root)
	if f == nil {
		return tc
	}
	tree, ok := tc.report.Tree(f.Location())
	if !ok {
		tc.t.Errorf("%s: no call tree for %s", tc.name, root)
		return tc
	}
	got := make([]string, 0, len(tree.Records))
	for _, loc := range tree.Locations() {
		got = append(got, loc.String())
	}
	assert.Equal(tc.t, want, got, "%s: tree of %s", tc.name, root)
	return tc
}

// AssertUnresolved checks the references reported as unresolved, across
// all trees
func (tc *ProgramTestCase) AssertUnresolved(want ...string) *ProgramTestCase {
	if tc.err != nil || tc.report == nil {
		return tc
	}
	got := make([]string, 0)
	for _, u := range tc.report.Unresolved() {
		got = append(got, u.Reference)
	}
	if want == nil {
		want = []string{}
	}
	assert.Equal(tc.t, want, got, "%s: unresolved references", tc.name)
	return tc
}

func (tc *ProgramTestCase) ExpectAppError(expectedCode AppErrorCode) *ProgramTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error with code %v, but got no error", tc.name, expectedCode)
		return tc
	}
	assert.Equal(tc.t, expectedCode, ErrorCode(tc.err), "%s: %v", tc.name, tc.err)
	tc.err = nil
	return tc
}

func (tc *ProgramTestCase) ExpectError(target error) *ProgramTestCase {
	assert.ErrorIs(tc.t, tc.err, target, tc.name)
	tc.err = nil
	return tc
}

func (tc *ProgramTestCase) End() {
	if tc.err != nil {
		tc.t.Errorf("%s: unexpected error: %v", tc.name, tc.err)
	}
}
