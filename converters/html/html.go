package html

import (
	"bufio"
	"fmt"
	"io"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func init() {
	converters.Register("html", &htmlDriver{})
}

type htmlDriver struct{}

func (d *htmlDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewHTMLEmitter(w, config), nil
}

func (d *htmlDriver) Extensions() []string {
	return []string{".html", ".htm"}
}

// HTMLEmitter writes one table as an HTML document. Each row is rendered as its own
// <tr> node, so the document streams without holding the table in memory.
type HTMLEmitter struct {
	dst       io.Writer
	bw        *bufio.Writer
	nullValue string
	schema    *common.Schema
	closed    bool
}

// Ensure HTMLEmitter implements Emitter
var _ common.Emitter = (*HTMLEmitter)(nil)

// NewHTMLEmitter creates an HTMLEmitter writing to w.
func NewHTMLEmitter(w io.Writer, config *common.ConversionConfig) *HTMLEmitter {
	e := &HTMLEmitter{dst: w, bw: bufio.NewWriterSize(w, 65536)}
	if config != nil {
		e.nullValue = config.NullValue
	}
	return e
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func cellRow(cell atom.Atom, values []string) *html.Node {
	tr := element(atom.Tr)
	for _, v := range values {
		c := element(cell)
		c.AppendChild(text(v))
		tr.AppendChild(c)
	}
	return tr
}

// Bind writes the document head and the table header.
func (e *HTMLEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("html emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema

	title := element(atom.Title)
	title.AppendChild(text(schema.Table))
	thead := element(atom.Thead)
	thead.AppendChild(cellRow(atom.Th, schema.Columns))

	e.bw.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	if err := html.Render(e.bw, title); err != nil {
		return fmt.Errorf("failed to render title: %w", err)
	}
	e.bw.WriteString("</head><body>\n")
	// open tag only; rows follow as they arrive
	e.bw.WriteString("<table id=\"")
	e.bw.WriteString(html.EscapeString(schema.Table))
	e.bw.WriteString("\">\n")
	if err := html.Render(e.bw, thead); err != nil {
		return fmt.Errorf("failed to render table header: %w", err)
	}
	_, err := e.bw.WriteString("\n<tbody>\n")
	return err
}

// Emit renders one <tr>.
func (e *HTMLEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("html emitter: Emit before Bind")
	}
	if len(row) != e.schema.Len() {
		return fmt.Errorf("html emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, e.schema.Len())
	}
	values := make([]string, len(row))
	for i, v := range row {
		if v.IsNull() {
			values[i] = e.nullValue
			continue
		}
		values[i] = v.String()
	}
	if err := html.Render(e.bw, cellRow(atom.Td, values)); err != nil {
		return fmt.Errorf("failed to render row: %w", err)
	}
	return e.bw.WriteByte('\n')
}

// Close terminates the document, flushes and closes the destination.
func (e *HTMLEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true
	if e.schema != nil {
		e.bw.WriteString("</tbody>\n</table>\n</body></html>\n")
	}
	flushErr := e.bw.Flush()
	if flushErr != nil {
		flushErr = fmt.Errorf("failed to flush html output: %w", flushErr)
	}
	closeErr := converters.CloseWriter(e.dst)
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
