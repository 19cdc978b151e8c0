package csv

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"
)

func init() {
	converters.Register("csv", &csvDriver{})
}

type csvDriver struct{}

func (d *csvDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewCSVEmitter(w, config)
}

func (d *csvDriver) Extensions() []string {
	return []string{".csv", ".tsv"}
}

// CSVEmitter writes one table as delimited text: a header line, then one record per row.
type CSVEmitter struct {
	dst    io.Writer
	writer *csv.Writer
	config common.ConversionConfig
	schema *common.Schema
	record []string
	closed bool
}

// Ensure CSVEmitter implements Emitter
var _ common.Emitter = (*CSVEmitter)(nil)

// NewCSVEmitter creates a CSVEmitter writing to w with the delimiter and null text from config.
func NewCSVEmitter(w io.Writer, config *common.ConversionConfig) (*CSVEmitter, error) {
	if config == nil {
		config = common.DefaultConversionConfig()
	}
	cw := csv.NewWriter(w)
	if config.Delimiter != 0 {
		cw.Comma = config.Delimiter
	}
	if cw.Comma == '"' || cw.Comma == '\r' || cw.Comma == '\n' {
		return nil, fmt.Errorf("invalid csv delimiter %q", cw.Comma)
	}
	return &CSVEmitter{dst: w, writer: cw, config: *config}, nil
}

// Bind writes the header line.
func (e *CSVEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("csv emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema
	e.record = make([]string, schema.Len())
	if err := e.writer.Write(schema.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	return nil
}

// Emit appends one record. Quoting of delimiters, quotes and newlines is left to encoding/csv.
func (e *CSVEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("csv emitter: Emit before Bind")
	}
	if len(row) != len(e.record) {
		return fmt.Errorf("csv emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, len(e.record))
	}
	for i, v := range row {
		if v.IsNull() {
			e.record[i] = e.config.NullValue
			continue
		}
		e.record[i] = v.String()
	}
	if err := e.writer.Write(e.record); err != nil {
		return fmt.Errorf("failed to write csv record: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the destination.
func (e *CSVEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true
	e.writer.Flush()
	flushErr := e.writer.Error()
	if flushErr != nil {
		flushErr = fmt.Errorf("failed to flush csv output: %w", flushErr)
	}
	closeErr := converters.CloseWriter(e.dst)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
