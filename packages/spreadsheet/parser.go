package spreadsheet

// CompileContext carries what the parser needs to know beyond the tokens
type CompileContext struct {
	// Line is the statement's line id, used in diagnostics and copied onto
	// the record.
	Line int
	// Sheet binds unqualified targets and aliases.
	Sheet string
	// Scope is the owning sheet for alias definitions, "" for global ones.
	Scope string
}

// Parser turns one statement's tokens into IR. precedence, lowest first:
// comparison, &, + -, * /, ^, postfix %, unary sign.
type Parser struct {
	tokens  []Token
	pos     int
	context *CompileContext
	sheet   string // sheet bare references bind to
	unit    unitBuilder
}

// NewParser creates a new parser with the given tokens and context
func NewParser(tokens []Token, context *CompileContext) *Parser {
	if context == nil {
		context = &CompileContext{}
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
		tokens = append(tokens, Token{Type: TokenEOF})
	}
	return &Parser{
		tokens:  tokens,
		context: context,
		sheet:   context.Sheet,
	}
}

// Parse parses a computed formula (target @= expr) or an alias definition
// (name @= reference). exactly one of the returned statement's Formula and
// Alias is set.
func (p *Parser) Parse() (*Statement, error) {
	if p.current().Type == TokenName && p.peek(1).Type == TokenAssign {
		return p.parseAlias()
	}

	target, err := p.parseReference("target cell or range")
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenAssign, "'@='"); err != nil {
		return nil, err
	}

	// everything after the target binds to the target's sheet
	p.sheet = target.Sheet

	result, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenEOF, "end of formula"); err != nil {
		return nil, err
	}

	f := p.unit.build(p.context.Line, "", Location{Sheet: target.Sheet, Area: target.Area})
	f.Result = result
	return &Statement{Formula: f}, nil
}

// parseAlias handles name @= reference
func (p *Parser) parseAlias() (*Statement, error) {
	name := p.current()
	p.pos += 2 // name and @=

	ref, err := p.parseReference("reference")
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenEOF, "end of alias definition"); err != nil {
		return nil, err
	}

	return &Statement{Alias: &AliasDefinition{
		Name:   name.Value,
		Scope:  p.context.Scope,
		Target: Location{Sheet: ref.Sheet, Area: ref.Area},
		Line:   p.context.Line,
	}}, nil
}

// parseReference reads [SHEET '!'] CELL [':' CELL] or NAME '!' CELL [':' CELL]
func (p *Parser) parseReference(expected string) (Reference, error) {
	tok := p.current()

	switch {
	case tok.Type == TokenSheet, tok.Type == TokenName && p.peek(1).Type == TokenBang:
		p.pos += 2
		area, err := p.parseArea()
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: RefSheet, Sheet: tok.Value, Area: area}, nil

	case tok.Type == TokenCell:
		area, err := p.parseArea()
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: RefLocal, Sheet: p.sheet, Area: area}, nil
	}

	return Reference{}, p.errorf(expected)
}

// parseArea reads CELL [':' CELL]
func (p *Parser) parseArea() (Range, error) {
	first, err := p.parseCell()
	if err != nil {
		return Range{}, err
	}
	if p.current().Type != TokenColon {
		return CellRange(first), nil
	}
	p.pos++
	second, err := p.parseCell()
	if err != nil {
		return Range{}, err
	}
	return NewRange(first, second), nil
}

func (p *Parser) parseCell() (Coordinate, error) {
	tok := p.current()
	if tok.Type != TokenCell {
		return Coordinate{}, p.errorf("cell")
	}
	c, err := parseCell(tok.Value)
	if err != nil {
		return Coordinate{}, p.errorf("cell with a row of at least 1")
	}
	p.pos++
	return c, nil
}

// parseComparison handles comparison operators (lowest precedence). they
// do not associate, so A1=B1=C1 is rejected.
func (p *Parser) parseComparison() (Operand, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return Operand{}, err
	}

	tok := p.current()
	if tok.Type != TokenCompare {
		return left, nil
	}
	p.pos++
	right, err := p.parseConcatenation()
	if err != nil {
		return Operand{}, err
	}
	if p.current().Type == TokenCompare {
		return Operand{}, p.errorf("operator other than a second comparison")
	}
	return p.unit.emit(binaryOps[tok.Value], "", left, right), nil
}

// parseConcatenation handles string concatenation operator
func (p *Parser) parseConcatenation() (Operand, error) {
	left, err := p.parseAddition()
	if err != nil {
		return Operand{}, err
	}

	for p.current().Type == TokenAmpersand {
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return Operand{}, err
		}
		left = p.unit.emit(OpConcat, "", left, right)
	}
	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (Operand, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return Operand{}, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenPlus && tok.Type != TokenMinus {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return Operand{}, err
		}
		left = p.unit.emit(binaryOps[tok.Value], "", left, right)
	}
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (Operand, error) {
	left, err := p.parsePower()
	if err != nil {
		return Operand{}, err
	}

	for p.current().Type == TokenMulDiv {
		tok := p.current()
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return Operand{}, err
		}
		left = p.unit.emit(binaryOps[tok.Value], "", left, right)
	}
	return left, nil
}

// parsePower handles exponentiation. left-associative: 2^3^2 is (2^3)^2.
func (p *Parser) parsePower() (Operand, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return Operand{}, err
	}

	for p.current().Type == TokenCaret {
		p.pos++
		right, err := p.parsePostfix()
		if err != nil {
			return Operand{}, err
		}
		left = p.unit.emit(OpPow, "", left, right)
	}
	return left, nil
}

// parsePostfix handles any number of trailing percent signs
func (p *Parser) parsePostfix() (Operand, error) {
	operand, err := p.parseUnary()
	if err != nil {
		return Operand{}, err
	}

	for p.current().Type == TokenPercent {
		p.pos++
		operand = p.unit.emit(OpPercent, "", operand)
	}
	return operand, nil
}

// parseUnary handles sign prefixes. "+" is a no-op and emits nothing.
func (p *Parser) parseUnary() (Operand, error) {
	switch p.current().Type {
	case TokenMinus:
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return Operand{}, err
		}
		return p.unit.emit(OpNeg, "", operand), nil
	case TokenPlus:
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

// parsePrimary handles literals, references, names, calls, IF and
// parentheses
func (p *Parser) parsePrimary() (Operand, error) {
	tok := p.current()

	switch tok.Type {
	case TokenNumber:
		p.pos++
		return p.unit.literal(Literal{Kind: LiteralNumber, Text: tok.Value}), nil

	case TokenString:
		p.pos++
		return p.unit.literal(Literal{Kind: LiteralString, Text: tok.Value}), nil

	case TokenLeftParen:
		p.pos++
		operand, err := p.parseComparison()
		if err != nil {
			return Operand{}, err
		}
		if err := p.expect(TokenRightParen, "')'"); err != nil {
			return Operand{}, err
		}
		return operand, nil

	case TokenIf:
		return p.parseIf()

	case TokenSheet, TokenCell:
		ref, err := p.parseReference("reference")
		if err != nil {
			return Operand{}, err
		}
		return p.unit.reference(ref), nil

	case TokenName:
		switch p.peek(1).Type {
		case TokenLeftParen:
			return p.parseFunctionCall()
		case TokenBang:
			ref, err := p.parseReference("reference")
			if err != nil {
				return Operand{}, err
			}
			return p.unit.reference(ref), nil
		}
		p.pos++
		return p.unit.reference(Reference{Kind: RefName, Name: tok.Value}), nil
	}

	return Operand{}, p.errorf("expression")
}

// parseIf handles IF(test, then[, else]). a missing else branch becomes a
// literal FALSE.
func (p *Parser) parseIf() (Operand, error) {
	p.pos++ // IF
	if err := p.expect(TokenLeftParen, "'(' after IF"); err != nil {
		return Operand{}, err
	}

	test, err := p.parseComparison()
	if err != nil {
		return Operand{}, err
	}
	if err := p.expect(TokenComma, "',' after IF condition"); err != nil {
		return Operand{}, err
	}
	then, err := p.parseComparison()
	if err != nil {
		return Operand{}, err
	}

	var otherwise Operand
	if p.current().Type == TokenComma {
		p.pos++
		if otherwise, err = p.parseComparison(); err != nil {
			return Operand{}, err
		}
	} else {
		otherwise = p.unit.literal(Literal{Kind: LiteralBool, Text: "FALSE"})
	}

	if err := p.expect(TokenRightParen, "')' to close IF"); err != nil {
		return Operand{}, err
	}
	return p.unit.emit(OpIf, "", test, then, otherwise), nil
}

// parseFunctionCall parses NAME '(' args ')'. arguments may be elided, so
// F(,A1) has two arguments, the first of kind OperandNone. F() has none.
func (p *Parser) parseFunctionCall() (Operand, error) {
	name := p.current().Value
	p.pos += 2 // name and '('

	args := []Operand{}
	if p.current().Type == TokenRightParen {
		p.pos++
		return p.unit.emit(OpCall, name, args...), nil
	}

	for {
		switch p.current().Type {
		case TokenComma, TokenRightParen:
			args = append(args, Operand{Kind: OperandNone})
		default:
			arg, err := p.parseComparison()
			if err != nil {
				return Operand{}, err
			}
			args = append(args, arg)
		}

		switch p.current().Type {
		case TokenComma:
			p.pos++
		case TokenRightParen:
			p.pos++
			return p.unit.emit(OpCall, name, args...), nil
		default:
			return Operand{}, p.errorf("',' or ')' in arguments to " + name)
		}
	}
}

func (p *Parser) current() Token {
	return p.peek(0)
}

func (p *Parser) peek(offset int) Token {
	pos := p.pos + offset
	if pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[pos]
}

func (p *Parser) expect(tt TokenType, expected string) error {
	if p.current().Type != tt {
		return p.errorf(expected)
	}
	if tt != TokenEOF {
		p.pos++
	}
	return nil
}

func (p *Parser) errorf(expected string) *SyntaxError {
	return &SyntaxError{
		Line:     p.context.Line,
		Token:    p.current(),
		Expected: expected,
	}
}
