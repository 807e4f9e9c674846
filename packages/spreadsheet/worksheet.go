package spreadsheet

import "fmt"

// Worksheet indexes the formulas registered on one sheet. single-cell
// targets live in a map; range targets live in the range index, a list
// scanned for overlap so a reference touching any part of a block resolves
// to the one record that owns it.
type Worksheet struct {
	Name string

	cells  map[Coordinate]*Formula
	ranges []*Formula
}

func newWorksheet(name string) *Worksheet {
	return &Worksheet{
		Name:  name,
		cells: make(map[Coordinate]*Formula),
	}
}

// add registers f. a target that collides with an existing cell or block
// is rejected with AlreadyExists.
func (ws *Worksheet) add(f *Formula) error {
	if prev := ws.occupant(f.Target); prev != nil {
		return NewApplicationError(AlreadyExists,
			fmt.Sprintf("%s overlaps %s registered at line %d", f.Location(), prev.Location(), prev.Line))
	}

	if f.Target.IsCell() {
		ws.cells[f.Target.TopLeft] = f
	} else {
		ws.ranges = append(ws.ranges, f)
	}
	return nil
}

// occupant returns any registered formula whose target intersects area
func (ws *Worksheet) occupant(area Range) *Formula {
	for _, f := range ws.ranges {
		if f.Target.Overlaps(area) {
			return f
		}
	}
	if area.IsCell() {
		return ws.cells[area.TopLeft]
	}

	// walk whichever side is smaller
	if area.Len() < len(ws.cells) {
		for c := range area.Cells() {
			if f, ok := ws.cells[c]; ok {
				return f
			}
		}
		return nil
	}
	for c, f := range ws.cells {
		if area.Contains(c) {
			return f
		}
	}
	return nil
}

// Cell returns the formula owning c, either its own cell formula or the
// range formula covering it.
func (ws *Worksheet) Cell(c Coordinate) (*Formula, bool) {
	if f, ok := ws.cells[c]; ok {
		return f, true
	}
	for _, f := range ws.ranges {
		if f.Target.Contains(c) {
			return f, true
		}
	}
	return nil, false
}

// cellFormula is the single-cell map lookup only
func (ws *Worksheet) cellFormula(c Coordinate) (*Formula, bool) {
	f, ok := ws.cells[c]
	return f, ok
}

// Overlapping returns every range formula intersecting area, in
// registration order.
func (ws *Worksheet) Overlapping(area Range) []*Formula {
	var hits []*Formula
	for _, f := range ws.ranges {
		if f.Target.Overlaps(area) {
			hits = append(hits, f)
		}
	}
	return hits
}

// Len is the number of formulas on the sheet
func (ws *Worksheet) Len() int {
	return len(ws.cells) + len(ws.ranges)
}
