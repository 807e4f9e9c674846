package spreadsheet

import (
	"fmt"
	"iter"
)

// Program is the workbook-level index: every registered formula, the alias
// and static value tables, and the ingress/egress lists derived from
// classification.
type Program struct {
	sheets     map[string]*Worksheet
	sheetOrder []string
	formulas   []*Formula
	aliases    *AliasTable
	values     *StaticValueTable

	// caches of the classification bits, rebuilt by Classify
	ingress    []*Formula
	egress     []*Formula
	classified bool
}

// NewProgram creates an empty program
func NewProgram() *Program {
	return &Program{
		sheets:  make(map[string]*Worksheet),
		aliases: NewAliasTable(),
		values:  NewStaticValueTable(),
	}
}

func (p *Program) worksheet(name string) *Worksheet {
	ws, exists := p.sheets[name]
	if !exists {
		ws = newWorksheet(name)
		p.sheets[name] = ws
		p.sheetOrder = append(p.sheetOrder, name)
	}
	return ws
}

// AddFormula registers a compiled formula. a record can be registered only
// once, and its target must not collide with another formula's.
func (p *Program) AddFormula(f *Formula) error {
	if f == nil {
		return NewApplicationError(InvalidArgument, "nil formula")
	}
	if f.registered {
		return fmt.Errorf("%s: %w", f.Location(), ErrAlreadyRegistered)
	}
	if f.Sheet == "" {
		return NewApplicationError(InvalidArgument,
			fmt.Sprintf("line %d: formula target %s has no sheet", f.Line, f.Target))
	}

	if err := p.worksheet(f.Sheet).add(f); err != nil {
		return err
	}
	f.registered = true
	p.formulas = append(p.formulas, f)
	return nil
}

// AddAlias registers a name definition
func (p *Program) AddAlias(def AliasDefinition) error {
	return p.aliases.Define(def)
}

// SetValue stores a plain cell value
func (p *Program) SetValue(sheet string, c Coordinate, v Literal) error {
	if sheet == "" {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("value at %s has no sheet", c))
	}
	p.values.Set(sheet, c.String(), v)
	return nil
}

// Formula looks up the record owning a coordinate: its own cell formula, or
// the range formula covering it.
func (p *Program) Formula(sheet string, c Coordinate) (*Formula, bool) {
	ws, exists := p.sheets[sheet]
	if !exists {
		return nil, false
	}
	return ws.Cell(c)
}

// FormulaAt is Formula for a location. a range location only matches a
// range formula with exactly that target.
func (p *Program) FormulaAt(loc Location) (*Formula, bool) {
	if loc.Area.IsCell() {
		return p.Formula(loc.Sheet, loc.Area.TopLeft)
	}
	ws, exists := p.sheets[loc.Sheet]
	if !exists {
		return nil, false
	}
	for _, f := range ws.ranges {
		if f.Target == loc.Area {
			return f, true
		}
	}
	return nil, false
}

// Worksheet returns the index for one sheet
func (p *Program) Worksheet(name string) (*Worksheet, bool) {
	ws, exists := p.sheets[name]
	return ws, exists
}

// Sheets lists sheet names in the order their first formula was added
func (p *Program) Sheets() []string {
	return append([]string(nil), p.sheetOrder...)
}

// Formulas yields every record in registration order
func (p *Program) Formulas() iter.Seq[*Formula] {
	return func(yield func(*Formula) bool) {
		for _, f := range p.formulas {
			if !yield(f) {
				return
			}
		}
	}
}

// Len is the number of registered formulas
func (p *Program) Len() int {
	return len(p.formulas)
}

func (p *Program) Aliases() *AliasTable {
	return p.aliases
}

func (p *Program) Values() *StaticValueTable {
	return p.values
}

// Classify tags every record and rebuilds the ingress and egress lists.
// bits only accumulate, so running it again is harmless.
func (p *Program) Classify(c *Classifier) (ingress, egress int) {
	p.ingress = p.ingress[:0]
	p.egress = p.egress[:0]

	for _, f := range p.formulas {
		f.SetClassification(c.Classify(f))
		if len(f.Refs) == 0 && !f.Ingress() {
			f.setStatic()
		}
		if f.Ingress() {
			p.ingress = append(p.ingress, f)
		}
		if f.Egress() {
			p.egress = append(p.egress, f)
		}
	}
	p.classified = true
	return len(p.ingress), len(p.egress)
}

// Classified reports whether Classify has run
func (p *Program) Classified() bool {
	return p.classified
}

// Ingress returns the ingress records in registration order
func (p *Program) Ingress() []*Formula {
	return append([]*Formula(nil), p.ingress...)
}

// Egress returns the egress records in registration order
func (p *Program) Egress() []*Formula {
	return append([]*Formula(nil), p.egress...)
}

// Impact returns the egress locations consuming the formula at loc, i.e.
// what stops updating if loc's data goes away.
func (p *Program) Impact(loc Location) ([]Location, error) {
	f, ok := p.FormulaAt(loc)
	if !ok {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return f.Outputs(), nil
}
