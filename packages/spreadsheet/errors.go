package spreadsheet

import (
	"errors"
	"fmt"
)

// AppErrorCode represents gRPC-style error codes for application-level errors.
// codes that make no sense for a static analyzer (unauthenticated, permission
// denied, ...) are left out.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller passed a malformed target,
	// reference or name.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (formula, alias, call tree) was
	// not found.
	NotFound AppErrorCode = 5

	// AlreadyExists means a target or alias is already registered.
	AlreadyExists AppErrorCode = 6

	// ResourceExhausted indicates a traversal ran past its visit budget
	// (ErrVisitBudgetExceeded).
	ResourceExhausted AppErrorCode = 8

	// FailedPrecondition indicates the program is not in a state required
	// for the operation, e.g. traversing before classification.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means a coordinate was past the addressable grid
	// (ErrColumnOutOfRange).
	OutOfRange AppErrorCode = 11

)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case ResourceExhausted:
		return "ResourceExhausted"
	case FailedPrecondition:
		return "FailedPrecondition"
	case OutOfRange:
		return "OutOfRange"
	default:
		return "Unknown"
	}
}

// AppError represents errors at the application level, as opposed to
// diagnostics about a formula's text
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// ErrorCode extracts the AppErrorCode from err. wrapped sentinels map to
// their code; anything else is Unknown. nil gives OK.
func ErrorCode(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return Unknown
}

var (
	// ErrColumnOutOfRange is returned for column indexes outside 1..MaxColumns.
	ErrColumnOutOfRange = errors.New("column out of range")

	// ErrInvalidCoordinate is returned for text that is not a cell or range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrAlreadyRegistered is returned when the same record is added twice.
	ErrAlreadyRegistered = errors.New("formula already registered")

	// ErrEmptyFunctionSet is returned when a classifier is built without
	// ingress or egress function names.
	ErrEmptyFunctionSet = errors.New("empty function set")

	// ErrVisitBudgetExceeded is returned when one root's traversal visits
	// more records than the engine allows.
	ErrVisitBudgetExceeded = errors.New("visit budget exceeded")

	// ErrNotFound is returned by lookups that find nothing.
	ErrNotFound = errors.New("not found")
)

var sentinelCodes = []struct {
	err  error
	code AppErrorCode
}{
	{ErrColumnOutOfRange, OutOfRange},
	{ErrInvalidCoordinate, InvalidArgument},
	{ErrAlreadyRegistered, AlreadyExists},
	{ErrEmptyFunctionSet, InvalidArgument},
	{ErrVisitBudgetExceeded, ResourceExhausted},
	{ErrNotFound, NotFound},
}

// LexicalError reports an input character that matches no token. the lexer
// skips it and keeps scanning.
type LexicalError struct {
	Line   int
	Offset int
	Char   rune
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("line %d: illegal character %q at offset %d", e.Line, e.Char, e.Offset)
}

// SyntaxError reports a token the grammar did not allow. the statement it
// occurs in is abandoned.
type SyntaxError struct {
	Line     int
	Token    Token
	Expected string
}

func (e *SyntaxError) Error() string {
	if e.Token.Type == TokenEOF {
		return fmt.Sprintf("line %d: unexpected end of input, expected %s", e.Line, e.Expected)
	}
	return fmt.Sprintf("line %d: unexpected %s %q at offset %d, expected %s",
		e.Line, e.Token.Type, e.Token.Value, e.Token.Pos, e.Expected)
}
