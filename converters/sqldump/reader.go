// Package sqldump reads rows out of SQL dump files (CREATE TABLE plus multi-row
// INSERT statements) one value tuple at a time.
//
// A Reader never buffers more than the tuple it is decoding, so memory use is
// independent of dump size:
//
//	r := sqldump.NewReader(f)
//	for {
//		row, err := r.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		fmt.Println(r.Table(), r.Columns(), row)
//	}
package sqldump

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/darianmavgo/dumpconv/converters/common"
)

// Option configures a Reader.
type Option func(*Reader)

// WithWarningHandler installs a callback for recoverable problems such as
// ErrSchemaInconsistency. Warnings are also collected and available from Warnings.
func WithWarningHandler(fn func(error)) Option {
	return func(r *Reader) {
		r.onWarning = fn
	}
}

// Reader is a pull-based row reader over a dump stream.
type Reader struct {
	sc *scanner
	tr *tracker

	// insert statement currently being decoded
	inValues bool
	table    string
	columns  []string
	bound    *binding
	first    bool

	current   *common.Schema
	warnings  []error
	onWarning func(error)
	err       error
}

// NewReader returns a Reader decoding the dump read from r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{sc: newScanner(r)}
	for _, opt := range opts {
		opt(rd)
	}
	rd.tr = newTracker(rd.sc, rd.warn)
	return rd
}

func (r *Reader) warn(err error) {
	r.warnings = append(r.warnings, err)
	if r.onWarning != nil {
		r.onWarning(err)
	}
}

// Table returns the table of the row most recently returned by Next.
func (r *Reader) Table() string {
	if r.current == nil {
		return ""
	}
	return r.current.Table
}

// Columns returns the column names of the row most recently returned by Next.
func (r *Reader) Columns() []string {
	if r.current == nil {
		return nil
	}
	return r.current.Columns
}

// Schema returns the schema of the row most recently returned by Next.
func (r *Reader) Schema() *common.Schema {
	return r.current
}

// Schemas returns every table seen so far, including tables that were defined
// but have no rows, in first-seen order.
func (r *Reader) Schemas() []*common.Schema {
	return r.tr.schemasInOrder()
}

// Warnings returns the recoverable problems reported so far.
func (r *Reader) Warnings() []error {
	return r.warnings
}

// Line returns the current line number in the input.
func (r *Reader) Line() int {
	return r.sc.line
}

// Next returns the next row. It returns io.EOF when the input is exhausted at a
// statement boundary. Any other error is sticky.
func (r *Reader) Next() (common.Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, err := r.next()
	if err != nil {
		r.err = err
		return nil, err
	}
	return row, nil
}

func (r *Reader) next() (common.Row, error) {
	for {
		if r.inValues {
			row, ok, err := r.nextTuple()
			if err != nil {
				return nil, err
			}
			if ok {
				return row, nil
			}
			continue
		}

		tok, err := r.sc.next()
		if err != nil {
			return nil, err
		}

		switch {
		case tok.kind == tokEOF:
			return nil, io.EOF
		case tok.kind == tokSemicolon:
		case tok.is("CREATE"):
			if err := r.tr.parseCreate(tok); err != nil {
				return nil, err
			}
		case tok.is("INSERT") || tok.is("REPLACE"):
			table, columns, err := r.tr.parseInsertHead()
			if err != nil {
				return nil, err
			}
			r.inValues = true
			r.first = true
			r.table = table
			r.columns = columns
			r.bound = nil
		case tok.is("DELIMITER"):
			if err := r.tr.skipDelimiterBlock(); err != nil {
				return nil, err
			}
		default:
			if err := r.tr.skipStatement(""); err != nil {
				return nil, err
			}
		}
	}
}

// nextTuple decodes the next value tuple of the current insert statement. It
// reports ok=false when the statement ended without another tuple.
func (r *Reader) nextTuple() (common.Row, bool, error) {
	if !r.first {
		sep, err := r.sc.next()
		if err != nil {
			return nil, false, err
		}
		switch {
		case sep.isPunct(','):
		case sep.kind == tokSemicolon:
			r.inValues = false
			return nil, false, nil
		case sep.is("ON"):
			// ON DUPLICATE KEY UPDATE ...
			r.inValues = false
			return nil, false, r.tr.skipStatement(r.table)
		case sep.kind == tokEOF:
			return nil, false, r.tr.truncated(sep, r.table, "insert statement not terminated")
		default:
			return nil, false, r.tr.malformed(sep, r.table, "expected ',' or ';' after value tuple, got %s", sep)
		}
	}

	open, err := r.sc.next()
	if err != nil {
		return nil, false, err
	}
	if open.kind == tokEOF {
		return nil, false, r.tr.truncated(open, r.table, "expected value tuple")
	}
	if !open.isPunct('(') {
		return nil, false, r.tr.malformed(open, r.table, "expected '(' to start value tuple, got %s", open)
	}

	size := len(r.columns)
	if r.bound != nil {
		size = r.bound.arity
	}
	values := make(common.Row, 0, size)
	for {
		v, err := r.value()
		if err != nil {
			return nil, false, err
		}
		values = append(values, v)

		sep, err := r.sc.next()
		if err != nil {
			return nil, false, err
		}
		if sep.isPunct(')') {
			break
		}
		if sep.kind == tokEOF {
			return nil, false, r.tr.truncated(sep, r.table, "unterminated value tuple")
		}
		if !sep.isPunct(',') {
			return nil, false, r.tr.malformed(sep, r.table, "expected ',' or ')' in value tuple, got %s", sep)
		}
	}

	if r.first {
		r.first = false
		r.bound, err = r.tr.bind(open, r.table, r.columns, len(values))
		if err != nil {
			return nil, false, err
		}
	}

	b := r.bound
	if len(values) != b.arity {
		return nil, false, r.tr.malformed(open, r.table, "value tuple has %d fields, table binding has %d columns",
			len(values), b.arity)
	}

	r.current = b.schema
	if b.positions == nil {
		return values, true, nil
	}
	row := make(common.Row, b.schema.Len())
	for i, pos := range b.positions {
		row[pos] = values[i]
	}
	return row, true, nil
}

// value decodes one literal inside a value tuple.
func (r *Reader) value() (common.Value, error) {
	tok, err := r.sc.next()
	if err != nil {
		return common.Value{}, err
	}

	switch tok.kind {
	case tokString:
		return common.String(tok.text), nil
	case tokNumber:
		v, err := common.Number(tok.text)
		if err != nil {
			return common.Value{}, r.tr.malformed(tok, r.table, "%v", err)
		}
		return v, nil
	case tokHex:
		return r.hexValue(tok)
	case tokBits:
		return r.bitsValue(tok)
	case tokEOF:
		return common.Value{}, r.tr.truncated(tok, r.table, "unterminated value tuple")
	case tokWord:
		switch {
		case tok.is("NULL"), tok.is("DEFAULT"):
			return common.Null(), nil
		case tok.is("TRUE"):
			return common.Int(1), nil
		case tok.is("FALSE"):
			return common.Int(0), nil
		}
		if charset, ok := normalizeIntroducer(tok.text); ok {
			return r.introduced(tok, charset)
		}
		return common.String(tok.text), nil
	}
	return common.Value{}, r.tr.malformed(tok, r.table, "unexpected %s in value tuple", tok)
}

// introduced decodes the literal following a charset introducer (_utf8mb4'x', _binary 0x..).
func (r *Reader) introduced(intro token, charset string) (common.Value, error) {
	tok, err := r.sc.next()
	if err != nil {
		return common.Value{}, err
	}
	switch tok.kind {
	case tokString:
		if charset == "binary" {
			return common.Binary([]byte(tok.text)), nil
		}
		return common.String(tok.text), nil
	case tokHex:
		return r.hexValue(tok)
	case tokBits:
		return r.bitsValue(tok)
	case tokEOF:
		return common.Value{}, r.tr.truncated(tok, r.table, "unterminated value tuple")
	}
	return common.Value{}, r.tr.malformed(tok, r.table, "expected literal after %s, got %s", intro.text, tok)
}

func (r *Reader) hexValue(tok token) (common.Value, error) {
	digits := tok.text
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return common.Value{}, r.tr.malformed(tok, r.table, "invalid hex literal: %v", err)
	}
	return common.Binary(b), nil
}

func (r *Reader) bitsValue(tok token) (common.Value, error) {
	digits := tok.text
	if pad := len(digits) % 8; pad != 0 {
		digits = strings.Repeat("0", 8-pad) + digits
	}
	b := make([]byte, len(digits)/8)
	for i := range b {
		for _, c := range digits[i*8 : i*8+8] {
			switch c {
			case '0':
				b[i] <<= 1
			case '1':
				b[i] = b[i]<<1 | 1
			default:
				return common.Value{}, r.tr.malformed(tok, r.table, "invalid bit literal %q", tok.text)
			}
		}
	}
	return common.Binary(b), nil
}
