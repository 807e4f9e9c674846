package spreadsheet

import (
	"fmt"
	"iter"
	"strings"
)

// Range is a normalized rectangle of cells on one worksheet. a single cell
// is a range whose corners are equal.
type Range struct {
	TopLeft     Coordinate
	BottomRight Coordinate
}

// NewRange builds a range from any two opposite corners.
func NewRange(a, b Coordinate) Range {
	return Range{
		TopLeft:     Coordinate{Column: min(a.Column, b.Column), Row: min(a.Row, b.Row)},
		BottomRight: Coordinate{Column: max(a.Column, b.Column), Row: max(a.Row, b.Row)},
	}
}

// CellRange is the degenerate range covering exactly c.
func CellRange(c Coordinate) Range {
	return Range{TopLeft: c, BottomRight: c}
}

// ParseRange accepts "A1" or "A1:C2", with or without "$" anchors.
func ParseRange(text string) (Range, error) {
	first, second, isRange := strings.Cut(text, ":")
	a, err := parseCell(first)
	if err != nil {
		return Range{}, err
	}
	if !isRange {
		return CellRange(a), nil
	}
	b, err := parseCell(second)
	if err != nil {
		return Range{}, err
	}
	return NewRange(a, b), nil
}

// parseCell is ParseCoordinate restricted to real cells (row >= 1)
func parseCell(text string) (Coordinate, error) {
	c, err := ParseCoordinate(text)
	if err != nil {
		return Coordinate{}, err
	}
	if c.Row < 1 {
		return Coordinate{}, fmt.Errorf("%q has no row: %w", text, ErrInvalidCoordinate)
	}
	return c, nil
}

// IsCell reports whether the range covers a single coordinate.
func (r Range) IsCell() bool {
	return r.TopLeft == r.BottomRight
}

// Len is the number of coordinates covered.
func (r Range) Len() int {
	return (r.BottomRight.Column - r.TopLeft.Column + 1) * (r.BottomRight.Row - r.TopLeft.Row + 1)
}

// Contains is an inclusive point-in-rectangle test.
func (r Range) Contains(c Coordinate) bool {
	return c.Column >= r.TopLeft.Column && c.Column <= r.BottomRight.Column &&
		c.Row >= r.TopLeft.Row && c.Row <= r.BottomRight.Row
}

// Overlaps reports whether two ranges share at least one coordinate. edges
// touching counts as overlap.
func (r Range) Overlaps(o Range) bool {
	return r.TopLeft.Column <= o.BottomRight.Column && o.TopLeft.Column <= r.BottomRight.Column &&
		r.TopLeft.Row <= o.BottomRight.Row && o.TopLeft.Row <= r.BottomRight.Row
}

// Covers reports whether o lies entirely inside r.
func (r Range) Covers(o Range) bool {
	return r.Contains(o.TopLeft) && r.Contains(o.BottomRight)
}

// Cells lazily yields every coordinate, column-major then row-minor, so
// A1:C2 gives A1, A2, B1, B2, C1, C2. the sequence can be ranged over any
// number of times.
func (r Range) Cells() iter.Seq[Coordinate] {
	return func(yield func(Coordinate) bool) {
		for col := r.TopLeft.Column; col <= r.BottomRight.Column; col++ {
			for row := r.TopLeft.Row; row <= r.BottomRight.Row; row++ {
				if !yield(Coordinate{Column: col, Row: row}) {
					return
				}
			}
		}
	}
}

func (r Range) String() string {
	if r.IsCell() {
		return r.TopLeft.String()
	}
	return r.TopLeft.String() + ":" + r.BottomRight.String()
}

// EnumerateRange is the text form of Range.Cells.
func EnumerateRange(text string) (iter.Seq[string], error) {
	r, err := ParseRange(text)
	if err != nil {
		return nil, err
	}
	return func(yield func(string) bool) {
		for c := range r.Cells() {
			if !yield(c.String()) {
				return
			}
		}
	}, nil
}

// Location is a canonical (sheet, cell-or-range) pair. it is comparable and
// doubles as the identifier recorded in a formula's outputs.
type Location struct {
	Sheet string
	Area  Range
}

// String renders the location as 'Sheet'!A1, or just A1 when the sheet is
// empty.
func (l Location) String() string {
	if l.Sheet == "" {
		return l.Area.String()
	}
	return QuoteSheet(l.Sheet) + "!" + l.Area.String()
}

// QuoteSheet wraps a sheet name in single quotes, doubling embedded quotes.
func QuoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ParseLocation accepts 'Sheet'!A1, Sheet!A1:B2 or a bare A1. bare text is
// bound to defaultSheet.
func ParseLocation(text, defaultSheet string) (Location, error) {
	s := strings.TrimSpace(text)
	sheet := defaultSheet

	if strings.HasPrefix(s, "'") {
		name, rest, err := unquoteSheet(s)
		if err != nil {
			return Location{}, err
		}
		if !strings.HasPrefix(rest, "!") {
			return Location{}, fmt.Errorf("%q: expected '!' after sheet name: %w", text, ErrInvalidCoordinate)
		}
		sheet, s = name, rest[1:]
	} else if i := strings.LastIndexByte(s, '!'); i >= 0 {
		sheet, s = s[:i], s[i+1:]
	}

	area, err := ParseRange(s)
	if err != nil {
		return Location{}, err
	}
	return Location{Sheet: sheet, Area: area}, nil
}

// unquoteSheet reads a leading 'quoted' sheet name and returns it with the
// remaining text.
func unquoteSheet(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		if b.Len() == 0 {
			return "", "", fmt.Errorf("empty sheet name: %w", ErrInvalidCoordinate)
		}
		return b.String(), s[i+1:], nil
	}
	return "", "", fmt.Errorf("unclosed sheet name in %q: %w", s, ErrInvalidCoordinate)
}

// AliasDefinition binds a name, or a coordinate acting as a name, to a
// location. Scope is the owning sheet, or "" for workbook-global names.
type AliasDefinition struct {
	Name   string
	Scope  string
	Target Location
	Line   int
}

// AliasTable maps names to locations per sheet. the "" sheet holds the
// workbook-global names. keys are case-insensitive.
type AliasTable struct {
	scopes map[string]map[string]AliasDefinition
	order  []AliasDefinition
}

// NewAliasTable creates an empty alias table
func NewAliasTable() *AliasTable {
	return &AliasTable{
		scopes: make(map[string]map[string]AliasDefinition),
	}
}

// Define adds a name to its scope. redefining a name in the same scope is
// rejected, since the first definition may already have been resolved.
func (at *AliasTable) Define(def AliasDefinition) error {
	if def.Name == "" {
		return NewApplicationError(InvalidArgument, "alias has no name")
	}
	if def.Target.Sheet == "" {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("alias %s has no target sheet", def.Name))
	}

	key := strings.ToUpper(def.Name)
	scope, exists := at.scopes[def.Scope]
	if !exists {
		scope = make(map[string]AliasDefinition)
		at.scopes[def.Scope] = scope
	}
	if prev, dup := scope[key]; dup {
		return NewApplicationError(AlreadyExists,
			fmt.Sprintf("alias %s already defined at line %d", def.Name, prev.Line))
	}

	scope[key] = def
	at.order = append(at.order, def)
	return nil
}

// Lookup checks a single scope only.
func (at *AliasTable) Lookup(sheet, key string) (Location, bool) {
	def, ok := at.scopes[sheet][strings.ToUpper(key)]
	return def.Target, ok
}

// Resolve looks a name up in the sheet's own scope first, then in the
// workbook-global scope.
func (at *AliasTable) Resolve(sheet, name string) (Location, bool) {
	if loc, ok := at.Lookup(sheet, name); ok {
		return loc, true
	}
	if sheet == "" {
		return Location{}, false
	}
	return at.Lookup("", name)
}

// Len is the number of definitions across all scopes.
func (at *AliasTable) Len() int {
	return len(at.order)
}

// All yields definitions in the order they were added
func (at *AliasTable) All() iter.Seq[AliasDefinition] {
	return func(yield func(AliasDefinition) bool) {
		for _, def := range at.order {
			if !yield(def) {
				return
			}
		}
	}
}

// coordinateKeys returns the keys in one scope that parse as coordinates.
// those are aliases the engine can reach by enumerating a range.
func (at *AliasTable) coordinateKeys(sheet string) []Coordinate {
	var coords []Coordinate
	for key := range at.scopes[sheet] {
		if c, err := parseCell(key); err == nil {
			coords = append(coords, c)
		}
	}
	return coords
}

// scopeLen is the number of names defined directly in one scope
func (at *AliasTable) scopeLen(sheet string) int {
	return len(at.scopes[sheet])
}
