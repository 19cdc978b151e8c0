package excel

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"

	"github.com/xuri/excelize/v2"
)

func init() {
	converters.Register("excel", &excelDriver{})
}

type excelDriver struct{}

func (d *excelDriver) NewEmitter(w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	return NewExcelEmitter(w, config)
}

func (d *excelDriver) Extensions() []string {
	return []string{".xlsx"}
}

// ExcelEmitter writes one table to a workbook through excelize's stream writer.
// The workbook is assembled in memory (spilling to temp files inside excelize) and
// only written to the destination on Close. A sheet holds at most SheetRowLimit
// data rows; further rows continue on sheets named <table>_2, <table>_3 and so on.
type ExcelEmitter struct {
	dst      io.Writer
	file     *excelize.File
	stream   *excelize.StreamWriter
	schema   *common.Schema
	header   []interface{}
	bold     int
	limit    int
	base     string
	sheets   []string
	sheetRow int
	values   []interface{}
	closed   bool
}

// Ensure ExcelEmitter implements Emitter
var _ common.Emitter = (*ExcelEmitter)(nil)

// NewExcelEmitter creates an ExcelEmitter writing to w.
func NewExcelEmitter(w io.Writer, config *common.ConversionConfig) (*ExcelEmitter, error) {
	limit := excelize.TotalRows - 1
	if config != nil && config.SheetRowLimit > 0 && config.SheetRowLimit < limit {
		limit = config.SheetRowLimit
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	return &ExcelEmitter{dst: w, file: f, bold: bold, limit: limit}, nil
}

// Bind names the first sheet after the table and writes its header row.
func (e *ExcelEmitter) Bind(schema *common.Schema) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema != nil {
		return fmt.Errorf("excel emitter already bound to table %s", e.schema.Table)
	}
	e.schema = schema
	e.base = SheetName(schema.Table, 1)
	e.header = make([]interface{}, schema.Len())
	for i, col := range schema.Columns {
		e.header[i] = col
	}
	e.values = make([]interface{}, schema.Len())

	if err := e.file.SetSheetName(e.file.GetSheetName(0), e.base); err != nil {
		return fmt.Errorf("failed to name sheet %q: %w", e.base, err)
	}
	return e.startSheet(e.base)
}

func (e *ExcelEmitter) startSheet(name string) error {
	if len(e.sheets) > 0 {
		if _, err := e.file.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}
	}
	sw, err := e.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("failed to open stream writer for sheet %q: %w", name, err)
	}
	if err := sw.SetRow("A1", e.header, excelize.RowOpts{StyleID: e.bold}); err != nil {
		return fmt.Errorf("failed to write header of sheet %q: %w", name, err)
	}
	e.stream = sw
	e.sheets = append(e.sheets, name)
	e.sheetRow = 0
	return nil
}

// Emit appends one row, starting a new sheet when the current one is full.
func (e *ExcelEmitter) Emit(row common.Row) error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	if e.schema == nil {
		return fmt.Errorf("excel emitter: Emit before Bind")
	}
	if len(row) != len(e.values) {
		return fmt.Errorf("excel emitter: row has %d fields, table %s has %d columns", len(row), e.schema.Table, len(e.values))
	}

	if e.sheetRow >= e.limit {
		if err := e.stream.Flush(); err != nil {
			return fmt.Errorf("failed to flush sheet %q: %w", e.sheets[len(e.sheets)-1], err)
		}
		if err := e.startSheet(SheetName(e.schema.Table, len(e.sheets)+1)); err != nil {
			return err
		}
	}

	for i, v := range row {
		e.values[i] = cellValue(v)
	}
	// header occupies row 1
	cell, err := excelize.CoordinatesToCellName(1, e.sheetRow+2)
	if err != nil {
		return err
	}
	if err := e.stream.SetRow(cell, e.values); err != nil {
		return fmt.Errorf("failed to write row %d of sheet %q: %w", e.sheetRow+1, e.sheets[len(e.sheets)-1], err)
	}
	e.sheetRow++
	return nil
}

// Sheets returns the names of the sheets written so far.
func (e *ExcelEmitter) Sheets() []string {
	return e.sheets
}

// Close finalizes the last sheet, serializes the workbook to the destination and
// closes it.
func (e *ExcelEmitter) Close() error {
	if e.closed {
		return converters.ErrEmitterClosed
	}
	e.closed = true

	var errs []error
	if e.stream != nil {
		if err := e.stream.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush sheet: %w", err))
		}
	}
	if len(errs) == 0 {
		if err := e.file.Write(e.dst); err != nil {
			errs = append(errs, fmt.Errorf("failed to write workbook: %w", err))
		}
	}
	if err := e.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release workbook: %w", err))
	}
	if err := converters.CloseWriter(e.dst); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func cellValue(v common.Value) interface{} {
	switch v.Kind {
	case common.KindNull:
		return nil
	case common.KindInt:
		if v.FitsInt64() {
			return v.Int
		}
		return v.Text
	case common.KindFloat:
		return v.Float
	}
	return truncateChars(v.String(), excelize.TotalCellChars)
}

// truncateChars cuts s to at most n characters as Excel counts them (UTF-16 code
// units) without splitting a rune.
func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	units := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if units+w > n {
			return s[:i]
		}
		units += w
	}
	return s
}

// SheetName derives a valid sheet name for the n-th page of a table.
func SheetName(table string, page int) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, table)
	name = strings.Trim(name, "'")
	if name == "" {
		name = common.TBPRE
	}

	suffix := ""
	if page > 1 {
		suffix = fmt.Sprintf("_%d", page)
	}
	runes := []rune(name)
	if room := excelize.MaxSheetNameLength - len(suffix); len(runes) > room {
		runes = runes[:room]
	}
	return string(runes) + suffix
}
