package spreadsheet

import (
	"strings"
	"unicode"
)

// TokenType represents different types of tokens in formula statements
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenSheet
	TokenString
	TokenCell
	TokenNumber
	TokenAssign
	TokenCompare
	TokenMulDiv
	TokenIf
	TokenName
	TokenColon
	TokenBang
	TokenAmpersand
	TokenPercent
	TokenComma
	TokenCaret
	TokenPlus
	TokenMinus
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenLeftBrace
	TokenRightBrace
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "end of input",
	TokenSheet:        "sheet",
	TokenString:       "string",
	TokenCell:         "cell",
	TokenNumber:       "number",
	TokenAssign:       "'@='",
	TokenCompare:      "comparison",
	TokenMulDiv:       "operator",
	TokenIf:           "IF",
	TokenName:         "name",
	TokenColon:        "':'",
	TokenBang:         "'!'",
	TokenAmpersand:    "'&'",
	TokenPercent:      "'%'",
	TokenComma:        "','",
	TokenCaret:        "'^'",
	TokenPlus:         "'+'",
	TokenMinus:        "'-'",
	TokenLeftParen:    "'('",
	TokenRightParen:   "')'",
	TokenLeftBracket:  "'['",
	TokenRightBracket: "']'",
	TokenLeftBrace:    "'{'",
	TokenRightBrace:   "'}'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "unknown"
}

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charQuote      = '"'
	charApostrophe = '\''
	charPercent    = '%'
	charAmpersand  = '&'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
	charAt         = '@'
	charDollar     = '$'
	charHash       = '#'
	charLBracket   = '['
	charRBracket   = ']'
	charLBrace     = '{'
	charRBrace     = '}'
)

// punctuation maps single characters straight to their token type
var punctuation = map[rune]TokenType{
	charColon:     TokenColon,
	charExclaim:   TokenBang,
	charAmpersand: TokenAmpersand,
	charPercent:   TokenPercent,
	charComma:     TokenComma,
	charCaret:     TokenCaret,
	charPlus:      TokenPlus,
	charMinus:     TokenMinus,
	charLParen:    TokenLeftParen,
	charRParen:    TokenRightParen,
	charLBracket:  TokenLeftBracket,
	charRBracket:  TokenRightBracket,
	charLBrace:    TokenLeftBrace,
	charRBrace:    TokenRightBrace,
	charAsterisk:  TokenMulDiv,
	charSlash:     TokenMulDiv,
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune offset in the statement
}

// Lexer tokenizes one formula statement. errors never stop it: an
// unrecognized character is reported and skipped.
type Lexer struct {
	runes  []rune // UTF-8 aware representation
	pos    int
	line   int
	tokens []Token
	errors []*LexicalError
}

// NewLexer creates a new lexer for the given statement
func NewLexer(input string) *Lexer {
	return NewLexerForLine(input, 0)
}

// NewLexerForLine creates a lexer whose diagnostics carry a line id
func NewLexerForLine(input string, line int) *Lexer {
	return &Lexer{
		runes: []rune(input),
		line:  line,
	}
}

// Tokenize scans the whole input. the token slice always ends with EOF, and
// the returned errors are the characters that were skipped.
func (l *Lexer) Tokenize() ([]Token, []*LexicalError) {
	for {
		tok, ok := l.nextToken()
		if !ok {
			continue
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			return l.tokens, l.errors
		}
	}
}

// nextToken returns the next token. ok is false when a character was
// skipped and the caller should try again.
func (l *Lexer) nextToken() (Token, bool) {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}, true
	}

	startPos := l.pos
	ch := l.current()

	switch {
	case ch == charHash:
		// comment runs to the end of the statement
		l.pos = len(l.runes)
		return Token{Type: TokenEOF, Pos: l.pos}, true
	case ch == charQuote:
		return l.scanString()
	case ch == charApostrophe:
		return l.scanSheet()
	case l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))):
		return l.scanNumber(), true
	case ch == charAt:
		if l.peek(1) == charEqual {
			l.pos += 2
			return Token{Type: TokenAssign, Value: "@=", Pos: startPos}, true
		}
	case ch == charLess, ch == charGreater, ch == charEqual:
		return l.scanCompare(), true
	case ch == charDollar:
		if tok, ok := l.scanCell(); ok {
			return tok, true
		}
	case l.isWordStart(ch):
		if tok, ok := l.scanCell(); ok {
			return tok, true
		}
		return l.scanName(), true
	}

	if tt, ok := punctuation[ch]; ok {
		l.pos++
		return Token{Type: tt, Value: string(ch), Pos: startPos}, true
	}

	return l.skip(), false
}

// skip records the current character as a lexical error and moves past it
func (l *Lexer) skip() Token {
	l.errors = append(l.errors, &LexicalError{
		Line:   l.line,
		Offset: l.pos,
		Char:   l.current(),
	})
	l.pos++
	return Token{}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) at(pos int) rune {
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) && unicode.IsSpace(l.current()) {
		l.pos++
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isWordStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == charUnderscore
}

func (l *Lexer) isWordRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == charUnderscore
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	// scan integer part
	for l.isDigit(l.current()) {
		l.pos++
	}

	// decimal part, "1." is allowed
	if l.current() == charPeriod {
		l.pos++
		for l.isDigit(l.current()) {
			l.pos++
		}
	}

	// scientific notation, with an optional sign as Excel writes it (1E+5)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++
		if l.current() == charMinus || l.current() == charPlus {
			l.pos++
		}
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanQuoted reads text between quote characters where a doubled quote is
// an escaped quote. returns the unescaped body and false if the text never
// closes.
func (l *Lexer) scanQuoted(quote rune) (string, bool) {
	var b strings.Builder
	for i := l.pos + 1; i < len(l.runes); i++ {
		ch := l.runes[i]
		if ch != quote {
			b.WriteRune(ch)
			continue
		}
		if l.at(i+1) == quote {
			b.WriteRune(quote)
			i++
			continue
		}
		l.pos = i + 1
		return b.String(), true
	}
	return "", false
}

// scanString scans a string literal with support for double-quote escapes
func (l *Lexer) scanString() (Token, bool) {
	startPos := l.pos
	body, ok := l.scanQuoted(charQuote)
	if !ok {
		return l.skip(), false
	}
	return Token{Type: TokenString, Value: body, Pos: startPos}, true
}

// scanSheet scans a single-quoted sheet name. the quotes are dropped from
// the value.
func (l *Lexer) scanSheet() (Token, bool) {
	startPos := l.pos
	body, ok := l.scanQuoted(charApostrophe)
	if !ok || body == "" {
		l.pos = startPos
		return l.skip(), false
	}
	return Token{Type: TokenSheet, Value: body, Pos: startPos}, true
}

// scanCompare scans <>, <=, >=, <, > and =
func (l *Lexer) scanCompare() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++
	next := l.current()
	if (ch == charLess && (next == charGreater || next == charEqual)) || (ch == charGreater && next == charEqual) {
		l.pos++
	}
	return Token{Type: TokenCompare, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanCell tries to read $?LETTERS$?DIGITS at the current position. it
// backs off, leaving the position alone, when the text continues as a word,
// a function call or a sheet prefix, or when the column is past XFD.
func (l *Lexer) scanCell() (Token, bool) {
	startPos := l.pos
	p := l.pos

	var b strings.Builder
	if l.at(p) == charDollar {
		p++
	}
	letters := 0
	for l.isAlpha(l.at(p)) && letters < 4 {
		b.WriteRune(unicode.ToUpper(l.at(p)))
		p++
		letters++
	}
	if letters == 0 || letters > 3 {
		return Token{}, false
	}
	if ColumnToIndex(b.String()) > MaxColumns {
		return Token{}, false
	}
	if l.at(p) == charDollar {
		p++
	}
	digits := 0
	for l.isDigit(l.at(p)) {
		b.WriteRune(l.at(p))
		p++
		digits++
	}
	if digits == 0 {
		return Token{}, false
	}

	if next := l.at(p); l.isWordRune(next) || next == charLParen || next == charExclaim {
		return Token{}, false
	}

	l.pos = p
	return Token{Type: TokenCell, Value: b.String(), Pos: startPos}, true
}

// scanName scans a word. IF is a keyword, a word directly followed by "("
// is a function name and is uppercased.
func (l *Lexer) scanName() Token {
	startPos := l.pos
	for l.isWordRune(l.current()) {
		l.pos++
	}

	value := l.substring(startPos, l.pos)
	upperValue := strings.ToUpper(value)

	if upperValue == "IF" && l.current() != charExclaim {
		return Token{Type: TokenIf, Value: upperValue, Pos: startPos}
	}
	if l.current() == charLParen {
		return Token{Type: TokenName, Value: upperValue, Pos: startPos}
	}
	return Token{Type: TokenName, Value: value, Pos: startPos}
}
