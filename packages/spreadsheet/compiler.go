package spreadsheet

import (
	"context"
	"strings"
)

// Statement is the result of compiling one line. Diagnostics holds the
// characters the lexer skipped; they don't stop compilation but the record
// may be missing whatever they were part of.
type Statement struct {
	Formula     *Formula
	Alias       *AliasDefinition
	Diagnostics []*LexicalError
}

// Compile lexes and parses one statement. a *SyntaxError means the line
// produced nothing; lexical errors are returned on the statement instead.
func Compile(src string, context *CompileContext) (*Statement, error) {
	if context == nil {
		context = &CompileContext{}
	}

	tokens, lexErrors := NewLexerForLine(src, context.Line).Tokenize()
	stmt, err := NewParser(tokens, context).Parse()
	if err != nil {
		return nil, err
	}

	stmt.Diagnostics = lexErrors
	if stmt.Formula != nil {
		stmt.Formula.Text = strings.TrimSpace(src)
	}
	return stmt, nil
}

// compileWithMetrics is Compile plus the outcome counter
func compileWithMetrics(ctx context.Context, src string, cc *CompileContext) (*Statement, error) {
	stmt, err := Compile(src, cc)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "syntax_error"
	case len(stmt.Diagnostics) > 0:
		outcome = "lexical_error"
	}
	recordCompile(ctx, outcome)
	return stmt, err
}
