package spreadsheet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/vogtb/go-spreadflow/packages/logging"
)

// statement markers of the normalized text format
const (
	MarkerFormula = "@="
	MarkerAlias   = ":="
	MarkerValue   = "@:"
)

// maxLineSize bounds a single input line; some generated models carry very
// long formulas.
const maxLineSize = 4 * 1024 * 1024

// CellRecord is one non-empty cell as read from a workbook. Raw starting
// with "=" is a formula, anything else a plain value.
type CellRecord struct {
	Sheet  string
	Target string
	Raw    string
}

// DefinedName is a workbook or sheet level name. Scope is the owning sheet,
// "" for workbook-global names. Definition is a reference expression, with
// or without a leading "=".
type DefinedName struct {
	Name       string
	Definition string
	Scope      string
}

// LoadReport counts what a loader registered. Diagnostics holds every
// non-fatal problem: skipped characters, syntax errors, collisions.
type LoadReport struct {
	Formulas    int
	Aliases     int
	Values      int
	Diagnostics []error
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithDefaultSheet binds unqualified targets to sheet
func WithDefaultSheet(sheet string) LoaderOption {
	return func(l *Loader) {
		l.sheet = sheet
	}
}

// WithLoaderLogger sets the loader's logger. without it the logger comes
// from the context.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// Loader feeds statements into a Program. a bad line never stops loading;
// it is logged, kept in the report, and the next line is read.
type Loader struct {
	program *Program
	sheet   string
	logger  *slog.Logger
	report  LoadReport
	line    int
}

// NewLoader creates a loader writing into p
func NewLoader(p *Program, opts ...LoaderOption) *Loader {
	l := &Loader{program: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Report returns the counts so far
func (l *Loader) Report() *LoadReport {
	r := l.report
	r.Diagnostics = append([]error(nil), l.report.Diagnostics...)
	return &r
}

func (l *Loader) loggerFor(ctx context.Context) *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return logging.FromContext(ctx)
}

// LoadText reads the normalized text format:
//
//	'Sheet1'!A1 @= B1+C1*2
//	'Sheet1'!B1 @: 42
//	rate := 'Inputs'!$B$2
//	'Sheet1'!rate := $B$2
//
// blank lines and lines starting with "//" are skipped. only read failures
// and cancellation are returned as errors.
func (l *Loader) LoadText(ctx context.Context, r io.Reader) (*LoadReport, error) {
	ctx, span := startLoadSpan(ctx, "text")
	defer span.End()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return l.Report(), err
		}
		line++
		l.loadLine(ctx, line, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return l.Report(), fmt.Errorf("read line %d: %w", line+1, err)
	}

	l.loggerFor(ctx).Debug("text loaded",
		"lines", line,
		"formulas", l.report.Formulas,
		"aliases", l.report.Aliases,
		"values", l.report.Values,
		"diagnostics", len(l.report.Diagnostics))
	return l.Report(), nil
}

func (l *Loader) loadLine(ctx context.Context, line int, raw string) {
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, "//") {
		return
	}

	target, marker, body, err := splitStatement(text)
	if err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}

	switch marker {
	case MarkerFormula:
		l.compileFormula(ctx, line, text, l.sheet)
	case MarkerAlias:
		scope, name := splitScopedName(target)
		l.defineAlias(ctx, line, name, body, scope)
	case MarkerValue:
		loc, err := ParseLocation(target, l.sheet)
		if err != nil {
			l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
			return
		}
		l.setValue(ctx, line, loc, ParseLiteral(body))
	}
}

// LoadCell routes one workbook cell: formulas are compiled, anything else
// goes to the static value table.
func (l *Loader) LoadCell(ctx context.Context, rec CellRecord) {
	l.line++
	if rec.Raw == "" {
		return
	}

	if strings.HasPrefix(rec.Raw, "=") {
		src := QuoteSheet(rec.Sheet) + "!" + rec.Target + " " + MarkerFormula + " " + rec.Raw[1:]
		l.compileFormula(ctx, l.line, src, rec.Sheet)
		return
	}

	loc, err := ParseLocation(rec.Target, rec.Sheet)
	if err != nil {
		l.fail(ctx, l.line, fmt.Errorf("%s!%s: %w", rec.Sheet, rec.Target, err))
		return
	}
	l.setValue(ctx, l.line, loc, ParseLiteral(rec.Raw))
}

// LoadName registers a defined name as an alias
func (l *Loader) LoadName(ctx context.Context, name DefinedName) {
	l.line++
	l.defineAlias(ctx, l.line, name.Name, strings.TrimPrefix(strings.TrimSpace(name.Definition), "="), name.Scope)
}

func (l *Loader) compileFormula(ctx context.Context, line int, src, sheet string) {
	stmt, err := compileWithMetrics(ctx, src, &CompileContext{Line: line, Sheet: sheet})
	if err != nil {
		l.fail(ctx, line, err)
		return
	}
	l.lexical(ctx, stmt)
	if stmt.Formula == nil {
		l.fail(ctx, line, fmt.Errorf("line %d: expected a formula, got an alias definition", line))
		return
	}

	if err := l.program.AddFormula(stmt.Formula); err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}
	l.report.Formulas++
	recordLoadedLine(ctx, "formula")
}

func (l *Loader) defineAlias(ctx context.Context, line int, name, definition, scope string) {
	sheet := scope
	if sheet == "" {
		sheet = l.sheet
	}

	// a cell standing in for another location is keyed by its coordinate
	// in its own sheet's scope
	if c, err := parseCell(name); err == nil {
		l.defineCellAlias(ctx, line, sheet, c, definition)
		return
	}

	src := name + " " + MarkerFormula + " " + definition
	stmt, err := compileWithMetrics(ctx, src, &CompileContext{Line: line, Sheet: sheet, Scope: scope})
	if err != nil {
		l.fail(ctx, line, err)
		return
	}
	l.lexical(ctx, stmt)
	if stmt.Alias == nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %q is not a name definition", line, name))
		return
	}

	if err := l.program.AddAlias(*stmt.Alias); err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}
	l.report.Aliases++
	recordLoadedLine(ctx, "alias")
}

func (l *Loader) defineCellAlias(ctx context.Context, line int, sheet string, c Coordinate, definition string) {
	target, err := ParseLocation(definition, sheet)
	if err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}
	def := AliasDefinition{Name: c.String(), Scope: sheet, Target: target, Line: line}
	if err := l.program.AddAlias(def); err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}
	l.report.Aliases++
	recordLoadedLine(ctx, "alias")
}

func (l *Loader) setValue(ctx context.Context, line int, loc Location, lit Literal) {
	if !loc.Area.IsCell() {
		l.fail(ctx, line, fmt.Errorf("line %d: value target %s is not a single cell", line, loc))
		return
	}
	if err := l.program.SetValue(loc.Sheet, loc.Area.TopLeft, lit); err != nil {
		l.fail(ctx, line, fmt.Errorf("line %d: %w", line, err))
		return
	}
	l.report.Values++
	recordLoadedLine(ctx, "value")
}

func (l *Loader) lexical(ctx context.Context, stmt *Statement) {
	for _, diag := range stmt.Diagnostics {
		l.report.Diagnostics = append(l.report.Diagnostics, diag)
		l.loggerFor(ctx).Warn("skipped character", "line", diag.Line, "offset", diag.Offset, "char", string(diag.Char))
	}
}

func (l *Loader) fail(ctx context.Context, line int, err error) {
	l.report.Diagnostics = append(l.report.Diagnostics, err)
	recordLoadedLine(ctx, "error")
	l.loggerFor(ctx).Warn("statement skipped", "line", line, "error", err)
}

// splitStatement finds the target, the marker and the body of a line. the
// target may start with a quoted sheet name containing anything.
func splitStatement(text string) (target, marker, body string, err error) {
	i := 0
	if strings.HasPrefix(text, "'") {
		_, rest, qerr := unquoteSheet(text)
		if qerr != nil {
			return "", "", "", qerr
		}
		i = len(text) - len(rest)
	}

	for i < len(text) {
		ch := text[i]
		if unicode.IsSpace(rune(ch)) || ch == '@' || (ch == ':' && i+1 < len(text) && text[i+1] == '=') {
			break
		}
		i++
	}
	target = text[:i]
	rest := strings.TrimLeftFunc(text[i:], unicode.IsSpace)

	for _, m := range []string{MarkerFormula, MarkerAlias, MarkerValue} {
		if strings.HasPrefix(rest, m) {
			if target == "" {
				return "", "", "", fmt.Errorf("missing target before %q", m)
			}
			return target, m, strings.TrimSpace(rest[len(m):]), nil
		}
	}
	return "", "", "", fmt.Errorf("no %q, %q or %q marker in %q", MarkerFormula, MarkerAlias, MarkerValue, text)
}

// splitScopedName splits 'Sheet'!name or Sheet!name into its scope and
// name. a bare name has an empty scope.
func splitScopedName(target string) (scope, name string) {
	if strings.HasPrefix(target, "'") {
		if sheet, rest, err := unquoteSheet(target); err == nil && strings.HasPrefix(rest, "!") {
			return sheet, rest[1:]
		}
	}
	if i := strings.LastIndexByte(target, '!'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return "", target
}
