package sqldump

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput is returned when the stream ends inside a literal, comment or statement.
	ErrTruncatedInput = errors.New("sqldump: truncated input")

	// ErrMalformedStatement is returned when a value tuple's arity disagrees with its
	// table's bound columns, or a table/insert statement cannot be recognized.
	ErrMalformedStatement = errors.New("sqldump: malformed statement")

	// ErrSchemaInconsistency reports a later definition that disagrees with the
	// first-seen binding. It is never returned from Next; it is delivered as a warning.
	ErrSchemaInconsistency = errors.New("sqldump: schema inconsistency")
)

// ParseError locates a parse failure in the dump.
type ParseError struct {
	Line  int
	Table string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%v: line %d: table %s: %s", e.Err, e.Line, e.Table, e.Msg)
	}
	return fmt.Sprintf("%v: line %d: %s", e.Err, e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
