package common

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Kind identifies the literal type of a field value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one decoded field of a row.
//
// Text holds the literal text for numbers (preserving the dump's precision) and the
// un-escaped contents for strings. Numbers that do not fit in an int64 keep KindInt
// with Text only.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Bytes []byte
}

// Row is an ordered list of field values; its length equals the bound column count.
type Row []Value

func Null() Value { return Value{Kind: KindNull} }

func String(s string) Value { return Value{Kind: KindString, Text: s} }

func Binary(b []byte) Value { return Value{Kind: KindBinary, Bytes: b} }

func Int(i int64) Value {
	return Value{Kind: KindInt, Text: strconv.FormatInt(i, 10), Int: i, Float: float64(i)}
}

// Number builds an integer or float value from a numeric literal.
func Number(text string) (Value, error) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Value{Kind: KindInt, Text: text, Int: i, Float: float64(i)}, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid numeric literal %q: %w", text, err)
	}
	if isIntegerLiteral(text) {
		// out of int64 range (e.g. BIGINT UNSIGNED)
		return Value{Kind: KindInt, Text: text, Float: f}, nil
	}
	return Value{Kind: KindFloat, Text: text, Float: f}, nil
}

func isIntegerLiteral(text string) bool {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c < '0' || c > '9') && !(i == 0 && (c == '-' || c == '+')) {
			return false
		}
	}
	return text != ""
}

// IsNull reports whether v is SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// FitsInt64 reports whether an integer value is fully represented by Int.
func (v Value) FitsInt64() bool {
	return v.Kind == KindInt && strconv.FormatInt(v.Int, 10) == v.Text
}

// String renders the value as text; NULL renders as the empty string and binary
// values as 0x-prefixed hex.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBinary:
		return "0x" + hex.EncodeToString(v.Bytes)
	}
	return v.Text
}

// Interface converts the value to the natural Go type used by database/sql and
// spreadsheet writers.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt:
		if v.FitsInt64() {
			return v.Int
		}
		return v.Text
	case KindFloat:
		return v.Float
	case KindBinary:
		return v.Bytes
	}
	return v.Text
}

// Schema is the row-shape descriptor of one table: its name and ordered column names.
// One Schema is built per table and shared by every emitter call for that table.
type Schema struct {
	Table   string
	Columns []string
	// Anonymous is set when the columns were synthesized from a value tuple's arity
	// because no definition was seen.
	Anonymous bool

	index map[string]int
}

// NewSchema binds a table name to its column names.
func NewSchema(table string, columns []string) *Schema {
	s := &Schema{
		Table:   table,
		Columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range s.Columns {
		if _, dup := s.index[c]; !dup {
			s.index[c] = i
		}
	}
	return s
}

// AnonymousSchema builds a schema of n positional columns named cl0..cl(n-1).
func AnonymousSchema(table string, n int) *Schema {
	s := NewSchema(table, AnonymousColumnNames(n))
	s.Anonymous = true
	return s
}

// AnonymousColumnNames returns n positional column names using the column prefix.
func AnonymousColumnNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", CLPRE, i)
	}
	return names
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Columns) }

// Index returns the position of a column, or -1 when the column is unknown.
func (s *Schema) Index(column string) int {
	if i, ok := s.index[column]; ok {
		return i
	}
	return -1
}

// SameColumns reports whether columns matches the schema exactly, in order.
func (s *Schema) SameColumns(columns []string) bool {
	if len(columns) != len(s.Columns) {
		return false
	}
	for i, c := range columns {
		if s.Columns[i] != c {
			return false
		}
	}
	return true
}
