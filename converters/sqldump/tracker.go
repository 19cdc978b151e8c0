package sqldump

import (
	"fmt"
	"strings"

	"github.com/darianmavgo/dumpconv/converters/common"
)

// constraintWords open a table element that is not a column declaration.
var constraintWords = []string{
	"PRIMARY", "KEY", "INDEX", "UNIQUE", "CONSTRAINT", "FOREIGN",
	"FULLTEXT", "SPATIAL", "CHECK", "EXCLUDE", "PERIOD", "LIKE",
}

// columnTypes are the data type names that can follow a column named like a
// constraint word, as in `key VARCHAR(9)`.
var columnTypes = []string{
	"INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT", "INT2", "INT4", "INT8",
	"SERIAL", "SMALLSERIAL", "BIGSERIAL", "DECIMAL", "NUMERIC", "DEC", "FIXED", "FLOAT",
	"FLOAT4", "FLOAT8", "DOUBLE", "REAL", "MONEY", "BIT", "BOOL", "BOOLEAN",
	"CHAR", "VARCHAR", "CHARACTER", "NCHAR", "NVARCHAR", "NATIONAL", "VARCHAR2",
	"TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "CLOB", "BINARY", "VARBINARY", "BLOB",
	"TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "DATE", "TIME", "DATETIME",
	"TIMESTAMP", "TIMESTAMPTZ", "TIMETZ", "YEAR", "INTERVAL", "ENUM", "SET", "JSON",
	"JSONB", "UUID", "XML", "INET", "CIDR", "GEOMETRY", "POINT", "LINESTRING", "POLYGON",
}

// createModifiers may appear between CREATE and TABLE.
var createModifiers = []string{"OR", "REPLACE", "TEMPORARY", "TEMP", "GLOBAL", "LOCAL", "UNLOGGED"}

// insertModifiers may appear between INSERT/REPLACE and the table name.
var insertModifiers = []string{"LOW_PRIORITY", "DELAYED", "HIGH_PRIORITY", "IGNORE"}

func isOneOf(tok token, words []string) bool {
	for _, w := range words {
		if tok.is(w) {
			return true
		}
	}
	return false
}

// binding resolves the tuples of one insert statement against a table schema.
type binding struct {
	schema *common.Schema
	// positions maps tuple position to schema column; nil when the tuple is in schema order
	positions []int
	arity     int
}

// tracker recognizes table definitions and insert statements and owns the
// per-table schemas. The first-seen schema of a table stays authoritative.
type tracker struct {
	sc      *scanner
	schemas map[string]*common.Schema
	order   []string
	warn    func(error)
}

func newTracker(sc *scanner, warn func(error)) *tracker {
	return &tracker{
		sc:      sc,
		schemas: make(map[string]*common.Schema),
		warn:    warn,
	}
}

func (t *tracker) malformed(tok token, table, format string, args ...interface{}) error {
	return &ParseError{Line: tok.line, Table: table, Msg: fmt.Sprintf(format, args...), Err: ErrMalformedStatement}
}

func (t *tracker) truncated(tok token, table, msg string) error {
	return &ParseError{Line: tok.line, Table: table, Msg: msg, Err: ErrTruncatedInput}
}

func (t *tracker) inconsistent(line int, table, format string, args ...interface{}) {
	if t.warn == nil {
		return
	}
	t.warn(&ParseError{Line: line, Table: table, Msg: fmt.Sprintf(format, args...), Err: ErrSchemaInconsistency})
}

// schemasInOrder returns the schemas in first-seen order.
func (t *tracker) schemasInOrder() []*common.Schema {
	out := make([]*common.Schema, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.schemas[name])
	}
	return out
}

func (t *tracker) register(s *common.Schema) {
	if _, ok := t.schemas[s.Table]; !ok {
		t.order = append(t.order, s.Table)
	}
	t.schemas[s.Table] = s
}

// define records a table definition. A definition replaces an anonymous binding of
// the same arity; any other disagreement with the existing schema is reported and
// the existing schema is kept.
func (t *tracker) define(line int, table string, columns []string) {
	existing, ok := t.schemas[table]
	switch {
	case !ok:
		t.register(common.NewSchema(table, columns))
	case existing.SameColumns(columns):
	case existing.Anonymous && existing.Len() == len(columns):
		t.register(common.NewSchema(table, columns))
		t.inconsistent(line, table, "definition after rows with positional columns; columns renamed to %v", columns)
	case existing.Anonymous:
		t.inconsistent(line, table, "definition declares %d columns but rows have %d; keeping positional columns",
			len(columns), existing.Len())
	default:
		t.inconsistent(line, table, "redefinition with columns %v differs from %v; keeping first definition",
			columns, existing.Columns)
	}
}

// bind resolves an insert's optional explicit column list against the table's
// schema. arity is the field count of the statement's first tuple and is only
// used to synthesize positional columns when nothing is known about the table.
func (t *tracker) bind(tok token, table string, columns []string, arity int) (*binding, error) {
	schema, ok := t.schemas[table]

	if columns == nil {
		if !ok {
			schema = common.AnonymousSchema(table, arity)
			t.register(schema)
		}
		return &binding{schema: schema, arity: schema.Len()}, nil
	}

	if !ok {
		schema = common.NewSchema(table, columns)
		t.register(schema)
		return &binding{schema: schema, arity: schema.Len()}, nil
	}
	if schema.SameColumns(columns) {
		return &binding{schema: schema, arity: schema.Len()}, nil
	}
	if schema.Anonymous && schema.Len() == len(columns) {
		t.define(tok.line, table, columns)
		return &binding{schema: t.schemas[table], arity: len(columns)}, nil
	}

	positions := make([]int, len(columns))
	seen := make(map[int]bool, len(columns))
	for i, c := range columns {
		idx := schema.Index(c)
		if idx < 0 {
			return nil, t.malformed(tok, table, "unknown column %q in insert column list", c)
		}
		if seen[idx] {
			return nil, t.malformed(tok, table, "column %q listed twice", c)
		}
		seen[idx] = true
		positions[i] = idx
	}
	return &binding{schema: schema, positions: positions, arity: len(columns)}, nil
}

// expectName reads a possibly qualified name (db.table) and returns its last part.
func (t *tracker) expectName(table, what string) (token, string, error) {
	tok, err := t.sc.next()
	if err != nil {
		return tok, "", err
	}
	if tok.kind == tokEOF {
		return tok, "", t.truncated(tok, table, "expected "+what)
	}
	if !tok.isName() {
		return tok, "", t.malformed(tok, table, "expected %s, got %s", what, tok)
	}
	name := tok.text
	for {
		next, err := t.sc.peek()
		if err != nil {
			return tok, "", err
		}
		if !next.isPunct('.') {
			return tok, name, nil
		}
		t.sc.next()
		part, err := t.sc.next()
		if err != nil {
			return tok, "", err
		}
		if !part.isName() {
			return tok, "", t.malformed(part, table, "expected %s after '.', got %s", what, part)
		}
		name = part.text
	}
}

// skipStatement consumes tokens through the next ';'. Quoted literals are whole
// tokens, so a ';' inside them never ends the statement.
func (t *tracker) skipStatement(table string) error {
	for {
		tok, err := t.sc.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokSemicolon:
			return nil
		case tokEOF:
			return t.truncated(tok, table, "statement not terminated")
		}
	}
}

// parseCreate handles the statement after CREATE. Only CREATE TABLE with an element
// list produces a definition; other CREATE statements are skipped.
func (t *tracker) parseCreate(start token) error {
	tok, err := t.sc.next()
	if err != nil {
		return err
	}
	for isOneOf(tok, createModifiers) {
		if tok, err = t.sc.next(); err != nil {
			return err
		}
	}
	if tok.kind == tokEOF {
		return t.truncated(tok, "", "statement not terminated")
	}
	if tok.kind == tokSemicolon {
		return nil
	}
	if !tok.is("TABLE") {
		return t.skipStatement("")
	}

	if next, err := t.sc.peek(); err != nil {
		return err
	} else if next.is("IF") {
		for _, kw := range []string{"IF", "NOT", "EXISTS"} {
			tok, err := t.sc.next()
			if err != nil {
				return err
			}
			if !tok.is(kw) {
				return t.malformed(tok, "", "expected %s in CREATE TABLE, got %s", kw, tok)
			}
		}
	}

	_, table, err := t.expectName("", "table name")
	if err != nil {
		return err
	}

	open, err := t.sc.next()
	if err != nil {
		return err
	}
	if !open.isPunct('(') {
		// CREATE TABLE ... LIKE / AS SELECT carry no column list
		if open.kind == tokSemicolon {
			return nil
		}
		if open.kind == tokEOF {
			return t.truncated(open, table, "statement not terminated")
		}
		return t.skipStatement(table)
	}

	columns, err := t.parseElements(table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return t.malformed(start, table, "table definition declares no columns")
	}
	t.define(start.line, table, columns)
	return t.skipStatement(table)
}

// parseElements reads the parenthesized element list of CREATE TABLE and returns
// the declared column names in order.
func (t *tracker) parseElements(table string) ([]string, error) {
	var columns []string
	elementStart := true
	depth := 1
	for {
		tok, err := t.sc.next()
		if err != nil {
			return nil, err
		}
		switch {
		case tok.kind == tokEOF:
			return nil, t.truncated(tok, table, "unterminated column list")
		case tok.kind == tokSemicolon:
			return nil, t.malformed(tok, table, "unterminated column list")
		case tok.isPunct('('):
			depth++
		case tok.isPunct(')'):
			depth--
			if depth == 0 {
				return columns, nil
			}
		case tok.isPunct(',') && depth == 1:
			elementStart = true
			continue
		case elementStart && depth == 1:
			if !tok.isName() {
				break
			}
			if tok.kind == tokWord && isOneOf(tok, constraintWords) {
				column, err := t.namesColumn()
				if err != nil {
					return nil, err
				}
				if !column {
					break
				}
			}
			columns = append(columns, tok.text)
		}
		elementStart = false
	}
}

// namesColumn decides whether an element opened by a constraint word declares a
// column: it does when a data type or the end of the element follows.
func (t *tracker) namesColumn() (bool, error) {
	next, err := t.sc.peek()
	if err != nil {
		return false, err
	}
	switch {
	case next.isPunct(',') || next.isPunct(')'):
		return true, nil
	case next.kind == tokWord:
		return isOneOf(next, columnTypes), nil
	}
	return false, nil
}

// parseInsertHead reads an INSERT/REPLACE statement up to and including VALUES and
// returns the target table and the optional explicit column list.
func (t *tracker) parseInsertHead() (string, []string, error) {
	tok, err := t.sc.peek()
	if err != nil {
		return "", nil, err
	}
	for isOneOf(tok, insertModifiers) {
		t.sc.next()
		if tok, err = t.sc.peek(); err != nil {
			return "", nil, err
		}
	}
	if tok.is("INTO") {
		t.sc.next()
	}

	_, table, err := t.expectName("", "table name")
	if err != nil {
		return "", nil, err
	}

	tok, err = t.sc.next()
	if err != nil {
		return "", nil, err
	}

	var columns []string
	if tok.isPunct('(') {
		columns = []string{}
		for {
			col, err := t.sc.next()
			if err != nil {
				return "", nil, err
			}
			switch {
			case col.kind == tokEOF:
				return "", nil, t.truncated(col, table, "unterminated column list")
			case col.isName():
				columns = append(columns, col.text)
			default:
				return "", nil, t.malformed(col, table, "expected column name, got %s", col)
			}

			sep, err := t.sc.next()
			if err != nil {
				return "", nil, err
			}
			if sep.isPunct(')') {
				break
			}
			if sep.kind == tokEOF {
				return "", nil, t.truncated(sep, table, "unterminated column list")
			}
			if !sep.isPunct(',') {
				return "", nil, t.malformed(sep, table, "expected ',' or ')' in column list, got %s", sep)
			}
		}
		if tok, err = t.sc.next(); err != nil {
			return "", nil, err
		}
	}

	switch {
	case tok.is("VALUES") || tok.is("VALUE"):
		return table, columns, nil
	case tok.kind == tokEOF:
		return "", nil, t.truncated(tok, table, "statement not terminated")
	}
	return "", nil, t.malformed(tok, table, "unsupported insert form: expected VALUES, got %s", tok)
}

// skipDelimiterBlock handles the mysql client DELIMITER command. Everything between
// "DELIMITER <custom>" and "DELIMITER ;" (stored routines and triggers) is skipped.
func (t *tracker) skipDelimiterBlock() error {
	delim, err := t.sc.readLine()
	if err != nil {
		return err
	}
	for delim != ";" && delim != "" {
		for {
			tok, err := t.sc.next()
			if err != nil {
				return err
			}
			if tok.kind == tokEOF {
				return t.truncated(tok, "", fmt.Sprintf("DELIMITER %s block not closed", delim))
			}
			if tok.is("DELIMITER") {
				break
			}
		}
		if delim, err = t.sc.readLine(); err != nil {
			return err
		}
	}
	return nil
}

// normalizeIntroducer strips a charset introducer such as _utf8mb4 or _binary.
func normalizeIntroducer(word string) (string, bool) {
	if len(word) > 1 && word[0] == '_' {
		return strings.ToLower(word[1:]), true
	}
	return "", false
}
