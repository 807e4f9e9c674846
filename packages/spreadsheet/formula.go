package spreadsheet

import (
	"fmt"
	"strings"
	"sync"
)

// Kind holds a formula's classification bits. they combine: a formula may
// be both ingress and egress.
type Kind uint8

const (
	KindStatic  Kind = 1 << iota // no references and no ingress call
	KindIngress                  // calls a function that pulls external data
	KindEgress                   // calls a function that pushes results out
)

func (k Kind) String() string {
	var parts []string
	if k&KindStatic != 0 {
		parts = append(parts, "static")
	}
	if k&KindIngress != 0 {
		parts = append(parts, "ingress")
	}
	if k&KindEgress != 0 {
		parts = append(parts, "egress")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Formula is one compiled formula bound to a target on a sheet. the IR and
// pools are fixed once compiled; only the classification bits and the
// consumer list change afterwards.
type Formula struct {
	Line   int
	Text   string
	Sheet  string
	Target Range

	Instructions []Instruction
	Values       []Literal
	Refs         []Reference
	Result       Operand // what the formula evaluates to

	kind       Kind
	registered bool

	// outputs is written by the engine, possibly from several roots at
	// once, so it has its own lock.
	mu        sync.Mutex
	outputs   []Location
	outputSet map[Location]struct{}
}

// Location is the formula's own (sheet, target) pair.
func (f *Formula) Location() Location {
	return Location{Sheet: f.Sheet, Area: f.Target}
}

// SetClassification ORs the given bits in. it never clears a bit, so
// calling it again with the same arguments changes nothing.
func (f *Formula) SetClassification(ingress, egress bool) Kind {
	if ingress {
		f.kind |= KindIngress
	}
	if egress {
		f.kind |= KindEgress
	}
	return f.kind
}

func (f *Formula) setStatic() {
	f.kind |= KindStatic
}

func (f *Formula) Kind() Kind    { return f.kind }
func (f *Formula) Ingress() bool { return f.kind&KindIngress != 0 }
func (f *Formula) Egress() bool  { return f.kind&KindEgress != 0 }
func (f *Formula) Static() bool  { return f.kind&KindStatic != 0 }

// AddConsumer records loc as a consumer unless it is already present.
// returns true if it was added. first-seen order is kept.
func (f *Formula) AddConsumer(loc Location) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.outputSet[loc]; exists {
		return false
	}
	if f.outputSet == nil {
		f.outputSet = make(map[Location]struct{})
	}
	f.outputSet[loc] = struct{}{}
	f.outputs = append(f.outputs, loc)
	return true
}

// HasConsumer reports whether loc has been recorded
func (f *Formula) HasConsumer(loc Location) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, exists := f.outputSet[loc]
	return exists
}

// Outputs returns a copy of the consumer list
func (f *Formula) Outputs() []Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Location, len(f.outputs))
	copy(out, f.outputs)
	return out
}

// Calls yields the distinct function names the formula calls, in first-call
// order.
func (f *Formula) Calls() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, in := range f.Instructions {
		if in.Op != OpCall {
			continue
		}
		if _, dup := seen[in.Func]; dup {
			continue
		}
		seen[in.Func] = struct{}{}
		names = append(names, in.Func)
	}
	return names
}

// String is the statement the formula was compiled from
func (f *Formula) String() string {
	if f.Text == "" {
		return f.Location().String()
	}
	return f.Text
}

// IR renders the instruction list followed by both pools, one entry per
// line.
func (f *Formula) IR() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", f.Location(), f.kind)
	for _, in := range f.Instructions {
		b.WriteString("  ")
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	for i, v := range f.Values {
		fmt.Fprintf(&b, "  #%d = %s\n", i, v)
	}
	for i, r := range f.Refs {
		fmt.Fprintf(&b, "  $%d = %s\n", i, r)
	}
	fmt.Fprintf(&b, "  => %s\n", f.Result)
	return b.String()
}
