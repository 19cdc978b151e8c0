package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"

	_ "modernc.org/sqlite"
)

func init() {
	converters.Register("sqlite", &sqliteDriver{})
}

type sqliteDriver struct{}

func (d *sqliteDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewSQLiteEmitter(w, config)
}

func (d *sqliteDriver) Extensions() []string {
	return []string{".db", ".sqlite", ".sqlite3"}
}

// SQLiteEmitter loads one table into a SQLite database.
//
// If the destination is a regular *os.File the database is built in place, so rows
// committed before a failure survive. Otherwise it is built in a temporary file and
// copied to the destination on Close.
type SQLiteEmitter struct {
	dst       io.Writer
	dbPath    string
	useTemp   bool
	db        *sql.DB
	tx        *sql.Tx
	mainStmt  *sql.Stmt
	stmt      *sql.Stmt
	schema    *common.Schema
	args      []interface{}
	batchSize int
	rowCount  int
	closed    bool
}

// Ensure SQLiteEmitter implements Emitter
var _ common.Emitter = (*SQLiteEmitter)(nil)

// NewSQLiteEmitter opens the database backing w.
func NewSQLiteEmitter(w io.Writer, config *common.ConversionConfig) (*SQLiteEmitter, error) {
	e := &SQLiteEmitter{dst: w, useTemp: true, batchSize: common.DefaultBatchSize}
	if config != nil && config.BatchSize > 0 {
		e.batchSize = config.BatchSize
	}

	// Check if writer is a file we can use directly
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		// Ensure it's a regular file (not stdout/pipe)
		if err == nil && stat.Mode().IsRegular() {
			e.dbPath = f.Name()
			e.useTemp = false
		}
	}

	if e.useTemp {
		tmpFile, err := os.CreateTemp("", "dumpconv-*.db")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		e.dbPath = tmpFile.Name()
		tmpFile.Close() // Close it so sql.Open can use it
	}

	db, err := sql.Open("sqlite", e.dbPath)
	if err != nil {
		e.removeTemp()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Limit to 1 connection to avoid locking issues and improve tx.Stmt performance
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA page_size = 65536; PRAGMA cache_size = -2000;"); err != nil {
		db.Close()
		e.removeTemp()
		return nil, fmt.Errorf("failed to set PRAGMAs: %w", err)
	}
	e.db = db
	return e, nil
}

func (e *SQLiteEmitter) removeTemp() {
	if e.useTemp {
		os.Remove(e.dbPath)
	}
}

// Bind creates the table and prepares the insert statement. Table and column names
// are sanitized into plain SQLite identifiers.
func (e *SQLiteEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("sqlite emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema

	table := common.GenTableName(schema.Table)
	columns := common.GenColumnNames(schema.Columns)
	if _, err := e.db.Exec(common.GenCreateTableSQL(table, columns)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	insertSQL, err := common.GenPreparedStmt(table, columns, common.InsertStmt)
	if err != nil {
		return fmt.Errorf("failed to generate insert statement for table %s: %w", table, err)
	}
	if e.mainStmt, err = e.db.Prepare(insertSQL); err != nil {
		return fmt.Errorf("failed to prepare insert statement for table %s: %w", table, err)
	}
	e.args = make([]interface{}, schema.Len())
	return e.begin()
}

func (e *SQLiteEmitter) begin() error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	e.tx = tx
	e.stmt = tx.Stmt(e.mainStmt)
	return nil
}

// Emit inserts one row, committing every BatchSize rows so long streams save progress.
func (e *SQLiteEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("sqlite emitter: Emit before Bind")
	}
	if len(row) != len(e.args) {
		return fmt.Errorf("sqlite emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, len(e.args))
	}
	for i, v := range row {
		e.args[i] = v.Interface()
	}
	if _, err := e.stmt.Exec(e.args...); err != nil {
		return fmt.Errorf("failed to insert row in table %s: %w", e.schema.Table, err)
	}

	e.rowCount++
	if e.rowCount%e.batchSize == 0 {
		e.stmt.Close()
		if err := e.tx.Commit(); err != nil {
			e.tx = nil
			return fmt.Errorf("failed to commit transaction for table %s: %w", e.schema.Table, err)
		}
		return e.begin()
	}
	return nil
}

// Close commits the open batch, closes the database and, when building in a
// temporary file, copies the result to the destination.
func (e *SQLiteEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true
	defer e.removeTemp()

	var errs []error
	if e.stmt != nil {
		e.stmt.Close() // Close statement before commit
	}
	if e.tx != nil {
		if err := e.tx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("failed to commit transaction: %w", err))
		}
	}
	if e.mainStmt != nil {
		e.mainStmt.Close()
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}

	if e.useTemp && len(errs) == 0 {
		if err := copyFile(e.dst, e.dbPath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := converters.CloseWriter(e.dst); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RowCount returns the number of rows inserted so far.
func (e *SQLiteEmitter) RowCount() int {
	return e.rowCount
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open temp file for reading: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write to output: %w", err)
	}
	return nil
}
