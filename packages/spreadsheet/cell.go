package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxColumns is the widest column a worksheet can address (XFD).
const MaxColumns = 16384

// Coordinate is a 1-based (column, row) position on a worksheet. A row of 0
// means the coordinate names a whole column, which only happens when parsing
// text without digits.
type Coordinate struct {
	Column int
	Row    int
}

// String renders the coordinate in A1 form.
func (c Coordinate) String() string {
	col, err := IndexToColumn(c.Column)
	if err != nil {
		return fmt.Sprintf("?%d", c.Row)
	}
	if c.Row == 0 {
		return col
	}
	return col + strconv.Itoa(c.Row)
}

// ColumnToIndex decodes base-26 column letters, case-insensitive. anything
// that isn't a letter is skipped, so "$AB" and "ab" both give 28.
func ColumnToIndex(letters string) int {
	index := 0
	for _, ch := range letters {
		switch {
		case ch >= 'A' && ch <= 'Z':
			index = index*26 + int(ch-'A'+1)
		case ch >= 'a' && ch <= 'z':
			index = index*26 + int(ch-'a'+1)
		}
	}
	return index
}

// IndexToColumn encodes a 1-based column index as letters. indexes outside
// 1..MaxColumns are rejected with ErrColumnOutOfRange.
func IndexToColumn(n int) (string, error) {
	if n < 1 || n > MaxColumns {
		return "", fmt.Errorf("column %d: %w", n, ErrColumnOutOfRange)
	}

	// at most three letters are needed for XFD
	var buf [3]byte
	i := len(buf)
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:]), nil
}

// ParseCoordinate splits leading column letters from trailing row digits.
// "$" anchors are tolerated anywhere before the digits. a missing row is 0.
func ParseCoordinate(text string) (Coordinate, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Coordinate{}, fmt.Errorf("empty coordinate: %w", ErrInvalidCoordinate)
	}

	i := 0
	letters := 0
	for i < len(s) && (isASCIILetter(s[i]) || s[i] == '$') {
		if s[i] != '$' {
			letters++
		}
		i++
	}
	if letters == 0 {
		return Coordinate{}, fmt.Errorf("%q has no column: %w", text, ErrInvalidCoordinate)
	}

	column := ColumnToIndex(s[:i])
	if column > MaxColumns {
		return Coordinate{}, fmt.Errorf("%q: %w", text, ErrColumnOutOfRange)
	}

	digits := s[i:]
	if digits == "" {
		return Coordinate{Column: column}, nil
	}
	row, err := strconv.Atoi(digits)
	if err != nil || row < 0 || digits[0] == '+' || digits[0] == '-' {
		return Coordinate{}, fmt.Errorf("%q has an invalid row: %w", text, ErrInvalidCoordinate)
	}
	return Coordinate{Column: column, Row: row}, nil
}

// MustParseCoordinate is ParseCoordinate for literals known to be valid.
func MustParseCoordinate(text string) Coordinate {
	c, err := ParseCoordinate(text)
	if err != nil {
		panic(err)
	}
	return c
}

func isASCIILetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
