package spreadsheet

import (
	"strings"
)

// StaticValueTable holds plain (non-formula) cell values per sheet. the ""
// sheet holds workbook-global constants and is seeded with TRUE and FALSE so
// that bare logical names resolve without an alias.
type StaticValueTable struct {
	sheets map[string]map[string]Literal
	count  int
}

// NewStaticValueTable creates a value table with the global logical seeds
func NewStaticValueTable() *StaticValueTable {
	svt := &StaticValueTable{
		sheets: make(map[string]map[string]Literal),
	}
	svt.Set("", "TRUE", Literal{Kind: LiteralBool, Text: "TRUE"})
	svt.Set("", "FALSE", Literal{Kind: LiteralBool, Text: "FALSE"})
	return svt
}

// Set stores or replaces a value. keys are case-insensitive.
func (svt *StaticValueTable) Set(sheet, key string, value Literal) {
	values, exists := svt.sheets[sheet]
	if !exists {
		values = make(map[string]Literal)
		svt.sheets[sheet] = values
	}
	key = strings.ToUpper(key)
	if _, replaced := values[key]; !replaced {
		svt.count++
	}
	values[key] = value
}

// Get returns the sheet's value for key, falling back to the global
// constants.
func (svt *StaticValueTable) Get(sheet, key string) (Literal, bool) {
	key = strings.ToUpper(key)
	if v, ok := svt.sheets[sheet][key]; ok {
		return v, true
	}
	v, ok := svt.sheets[""][key]
	return v, ok
}

// Has reports whether Get would find a value
func (svt *StaticValueTable) Has(sheet, key string) bool {
	_, ok := svt.Get(sheet, key)
	return ok
}

// Len counts values across all sheets, seeds included.
func (svt *StaticValueTable) Len() int {
	return svt.count
}
