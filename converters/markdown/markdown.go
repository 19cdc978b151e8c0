package markdown

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"
)

func init() {
	converters.Register("markdown", &markdownDriver{})
}

type markdownDriver struct{}

func (d *markdownDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewMarkdownEmitter(w, config), nil
}

func (d *markdownDriver) Extensions() []string {
	return []string{".md", ".markdown"}
}

var cellEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\r\n", "<br>", "\n", "<br>", "\r", "<br>")

// MarkdownEmitter writes one table as a GitHub-style pipe table.
type MarkdownEmitter struct {
	dst       io.Writer
	bw        *bufio.Writer
	nullValue string
	schema    *common.Schema
	cells     []string
	closed    bool
}

// Ensure MarkdownEmitter implements Emitter
var _ common.Emitter = (*MarkdownEmitter)(nil)

// NewMarkdownEmitter creates a MarkdownEmitter writing to w.
func NewMarkdownEmitter(w io.Writer, config *common.ConversionConfig) *MarkdownEmitter {
	e := &MarkdownEmitter{dst: w, bw: bufio.NewWriter(w)}
	if config != nil {
		e.nullValue = config.NullValue
	}
	return e
}

func (e *MarkdownEmitter) writeRow(cells []string) error {
	e.bw.WriteString("|")
	for _, c := range cells {
		e.bw.WriteByte(' ')
		e.bw.WriteString(cellEscaper.Replace(c))
		e.bw.WriteString(" |")
	}
	return e.bw.WriteByte('\n')
}

// Bind writes the header and separator lines.
func (e *MarkdownEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("markdown emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema
	e.cells = make([]string, schema.Len())
	if err := e.writeRow(schema.Columns); err != nil {
		return err
	}
	sep := make([]string, schema.Len())
	for i := range sep {
		sep[i] = "---"
	}
	return e.writeRow(sep)
}

// Emit writes one table line.
func (e *MarkdownEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("markdown emitter: Emit before Bind")
	}
	if len(row) != len(e.cells) {
		return fmt.Errorf("markdown emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, len(e.cells))
	}
	for i, v := range row {
		if v.IsNull() {
			e.cells[i] = e.nullValue
			continue
		}
		e.cells[i] = v.String()
	}
	return e.writeRow(e.cells)
}

// Close flushes and closes the destination.
func (e *MarkdownEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true
	flushErr := e.bw.Flush()
	if flushErr != nil {
		flushErr = fmt.Errorf("failed to flush markdown output: %w", flushErr)
	}
	closeErr := converters.CloseWriter(e.dst)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
