package spreadsheet

import (
	"strconv"
	"strings"
)

// Op tags what an instruction computes
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpConcat
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpNeg
	OpPercent
	OpIf
	OpCall
)

var opNames = [...]string{
	OpAdd:     "ADD",
	OpSub:     "SUB",
	OpMul:     "MUL",
	OpDiv:     "DIV",
	OpPow:     "POW",
	OpConcat:  "CONCAT",
	OpEq:      "EQ",
	OpNe:      "NE",
	OpLt:      "LT",
	OpLe:      "LE",
	OpGt:      "GT",
	OpGe:      "GE",
	OpNeg:     "NEG",
	OpPercent: "PERCENT",
	OpIf:      "IF",
	OpCall:    "CALL",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "OP(" + strconv.Itoa(int(o)) + ")"
}

// binaryOps maps operator text to its op
var binaryOps = map[string]Op{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"^":  OpPow,
	"&":  OpConcat,
	"=":  OpEq,
	"<>": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

// OperandKind says which list an operand indexes into
type OperandKind uint8

const (
	OperandNone        OperandKind = iota // elided function argument
	OperandInstruction                    // @id
	OperandValue                          // #i
	OperandRef                            // $i
)

// Operand points at a prior instruction, a pooled literal or a pooled
// reference.
type Operand struct {
	Kind  OperandKind
	Index int
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandInstruction:
		return "@" + strconv.Itoa(o.Index)
	case OperandValue:
		return "#" + strconv.Itoa(o.Index)
	case OperandRef:
		return "$" + strconv.Itoa(o.Index)
	default:
		return ""
	}
}

// Instruction is one IR node. ID is its position in the owning list; Func
// is only set for OpCall. conditionals carry (test, then, else) in Args.
type Instruction struct {
	ID   int
	Op   Op
	Func string
	Args []Operand
}

func (in Instruction) String() string {
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	if in.Op == OpCall {
		return "@" + strconv.Itoa(in.ID) + " = CALL " + in.Func + "(" + strings.Join(args, ", ") + ")"
	}
	return "@" + strconv.Itoa(in.ID) + " = " + in.Op.String() + " " + strings.Join(args, " ")
}

// LiteralKind is the type of a pooled constant
type LiteralKind uint8

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
)

// Literal is a constant from formula text or a plain cell. Text keeps the
// source spelling; the analyzer never needs the numeric value.
type Literal struct {
	Kind LiteralKind
	Text string
}

func (l Literal) String() string {
	if l.Kind == LiteralString {
		return `"` + strings.ReplaceAll(l.Text, `"`, `""`) + `"`
	}
	return l.Text
}

// ParseLiteral reads plain cell text: a quoted string, TRUE/FALSE, a
// number, and anything else as an unquoted string.
func ParseLiteral(text string) Literal {
	s := strings.TrimSpace(text)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return Literal{Kind: LiteralString, Text: strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)}
	}
	switch strings.ToUpper(s) {
	case "TRUE", "FALSE":
		return Literal{Kind: LiteralBool, Text: strings.ToUpper(s)}
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return Literal{Kind: LiteralNumber, Text: s}
	}
	return Literal{Kind: LiteralString, Text: text}
}

// RefKind distinguishes the three shapes a pooled reference can take
type RefKind uint8

const (
	RefLocal RefKind = iota // A1 or A1:B2 on the formula's own sheet
	RefSheet                // 'Other'!A1 or Other!A1:B2
	RefName                 // an alias or constant name
)

// Reference is an external reference as written in a formula. local
// references are bound to the owning formula's sheet at compile time, so
// Sheet is set for both RefLocal and RefSheet.
type Reference struct {
	Kind  RefKind
	Sheet string
	Area  Range
	Name  string
}

// AliasResolver finds the location a name stands for, sheet scope first.
type AliasResolver interface {
	Resolve(sheet, name string) (Location, bool)
}

// Resolve maps a reference to its canonical location. home is the owning
// formula's sheet and is the scope names are looked up from. ok is false
// only for names the resolver does not know.
func (r Reference) Resolve(home string, aliases AliasResolver) (Location, bool) {
	switch r.Kind {
	case RefName:
		if aliases == nil {
			return Location{}, false
		}
		return aliases.Resolve(home, r.Name)
	case RefLocal:
		if r.Sheet == "" {
			return Location{Sheet: home, Area: r.Area}, true
		}
	}
	return Location{Sheet: r.Sheet, Area: r.Area}, true
}

func (r Reference) String() string {
	switch r.Kind {
	case RefName:
		return r.Name
	case RefSheet:
		return QuoteSheet(r.Sheet) + "!" + r.Area.String()
	default:
		return r.Area.String()
	}
}

// unitBuilder accumulates the IR of one compilation. it lives for a
// single statement and is drained into a Formula by build.
type unitBuilder struct {
	instructions []Instruction
	values       []Literal
	refs         []Reference
}

// emit appends an instruction and returns the operand naming it. ids are
// positions, so the counter is the list length.
func (b *unitBuilder) emit(op Op, fn string, args ...Operand) Operand {
	id := len(b.instructions)
	b.instructions = append(b.instructions, Instruction{ID: id, Op: op, Func: fn, Args: args})
	return Operand{Kind: OperandInstruction, Index: id}
}

func (b *unitBuilder) literal(lit Literal) Operand {
	b.values = append(b.values, lit)
	return Operand{Kind: OperandValue, Index: len(b.values) - 1}
}

func (b *unitBuilder) reference(ref Reference) Operand {
	b.refs = append(b.refs, ref)
	return Operand{Kind: OperandRef, Index: len(b.refs) - 1}
}

// build moves the pools into a new record and resets the builder so it
// cannot leak state into another statement.
func (b *unitBuilder) build(line int, text string, target Location) *Formula {
	f := &Formula{
		Line:         line,
		Text:         text,
		Sheet:        target.Sheet,
		Target:       target.Area,
		Instructions: b.instructions,
		Values:       b.values,
		Refs:         b.refs,
	}
	*b = unitBuilder{}
	return f
}
