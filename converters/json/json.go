package json

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"
)

func init() {
	converters.Register("json", &jsonDriver{})
}

type jsonDriver struct{}

func (d *jsonDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewJSONEmitter(w, config), nil
}

func (d *jsonDriver) Extensions() []string {
	return []string{".json", ".jsonl", ".ndjson"}
}

// JSONEmitter writes one JSON object per line (JSON Lines). Keys follow column
// order and nothing wraps the records, so memory stays flat for any table size.
type JSONEmitter struct {
	dst    io.Writer
	bw     *bufio.Writer
	schema *common.Schema
	keys   [][]byte
	closed bool
}

// Ensure JSONEmitter implements Emitter
var _ common.Emitter = (*JSONEmitter)(nil)

// NewJSONEmitter creates a JSONEmitter writing to w.
func NewJSONEmitter(w io.Writer, _ *common.ConversionConfig) *JSONEmitter {
	return &JSONEmitter{dst: w, bw: bufio.NewWriterSize(w, 65536)}
}

// Bind pre-encodes the column names as object keys.
func (e *JSONEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("json emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema
	e.keys = make([][]byte, schema.Len())
	for i, col := range schema.Columns {
		key, err := json.Marshal(col)
		if err != nil {
			return fmt.Errorf("failed to encode column name %q: %w", col, err)
		}
		e.keys[i] = append(key, ':')
	}
	return nil
}

// Emit writes one record line.
func (e *JSONEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("json emitter: Emit before Bind")
	}
	if len(row) != len(e.keys) {
		return fmt.Errorf("json emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, len(e.keys))
	}

	e.bw.WriteByte('{')
	for i, v := range row {
		if i > 0 {
			e.bw.WriteByte(',')
		}
		e.bw.Write(e.keys[i])
		if err := writeValue(e.bw, v); err != nil {
			return err
		}
	}
	e.bw.WriteByte('}')
	if err := e.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write json record: %w", err)
	}
	return nil
}

func writeValue(bw *bufio.Writer, v common.Value) error {
	switch v.Kind {
	case common.KindNull:
		_, err := bw.WriteString("null")
		return err
	case common.KindInt, common.KindFloat:
		// keep the dump's literal when it is already a JSON number
		if json.Valid([]byte(v.Text)) {
			_, err := bw.WriteString(v.Text)
			return err
		}
		_, err := bw.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
		return err
	}
	s, err := json.Marshal(v.String())
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	_, err = bw.Write(s)
	return err
}

// Close flushes buffered records and closes the destination.
func (e *JSONEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true
	flushErr := e.bw.Flush()
	if flushErr != nil {
		flushErr = fmt.Errorf("failed to flush json output: %w", flushErr)
	}
	closeErr := converters.CloseWriter(e.dst)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
