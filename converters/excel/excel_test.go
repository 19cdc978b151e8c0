package excel

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/darianmavgo/dumpconv/converters/common"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, config *common.ConversionConfig, schema *common.Schema, rows []common.Row) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	em, err := NewExcelEmitter(&buf, config)
	if err != nil {
		t.Fatalf("NewExcelEmitter failed: %v", err)
	}
	if err := em.Bind(schema); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	for _, row := range rows {
		if err := em.Emit(row); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExcelEmitterWritesHeaderAndRows(t *testing.T) {
	schema := common.NewSchema("users", []string{"id", "name", "score"})
	f := writeWorkbook(t, nil, schema, []common.Row{
		{common.Int(1), common.String("Ann"), common.Value{Kind: common.KindFloat, Text: "2.5", Float: 2.5}},
		{common.Int(2), common.Null(), common.Int(7)},
	})

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"users"}) {
		t.Fatalf("sheets = %v, want [users]", got)
	}
	rows, err := f.GetRows("users")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	want := [][]string{
		{"id", "name", "score"},
		{"1", "Ann", "2.5"},
		{"2", "", "7"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestExcelEmitterPaginates(t *testing.T) {
	config := common.DefaultConversionConfig()
	config.SheetRowLimit = 2

	schema := common.NewSchema("events", []string{"n"})
	var rows []common.Row
	for i := int64(1); i <= 5; i++ {
		rows = append(rows, common.Row{common.Int(i)})
	}
	f := writeWorkbook(t, config, schema, rows)

	wantSheets := []string{"events", "events_2", "events_3"}
	if got := f.GetSheetList(); !reflect.DeepEqual(got, wantSheets) {
		t.Fatalf("sheets = %v, want %v", got, wantSheets)
	}
	wantRows := map[string][][]string{
		"events":   {{"n"}, {"1"}, {"2"}},
		"events_2": {{"n"}, {"3"}, {"4"}},
		"events_3": {{"n"}, {"5"}},
	}
	for sheet, want := range wantRows {
		got, err := f.GetRows(sheet)
		if err != nil {
			t.Fatalf("GetRows(%s) failed: %v", sheet, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("sheet %s rows = %q, want %q", sheet, got, want)
		}
	}
}

func TestExcelEmitterEmptyTable(t *testing.T) {
	f := writeWorkbook(t, nil, common.NewSchema("empty", []string{"a", "b"}), nil)
	rows, err := f.GetRows("empty")
	if err != nil {
		t.Fatalf("GetRows failed: %v", err)
	}
	if !reflect.DeepEqual(rows, [][]string{{"a", "b"}}) {
		t.Errorf("rows = %q", rows)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		table string
		page  int
		want  string
	}{
		{"users", 1, "users"},
		{"users", 2, "users_2"},
		{"a/b:c", 1, "a_b_c"},
		{"'quoted'", 1, "quoted"},
		{"", 1, "tb"},
		{strings.Repeat("x", 40), 1, strings.Repeat("x", 31)},
		{strings.Repeat("x", 40), 12, strings.Repeat("x", 28) + "_12"},
	}
	for _, tt := range tests {
		if got := SheetName(tt.table, tt.page); got != tt.want {
			t.Errorf("SheetName(%q, %d) = %q, want %q", tt.table, tt.page, got, tt.want)
		}
	}
}

func TestCellValue(t *testing.T) {
	big, _ := common.Number("99999999999999999999")
	if got := cellValue(big); got != "99999999999999999999" {
		t.Errorf("cellValue(big) = %#v", got)
	}
	if got := cellValue(common.Int(5)); got != int64(5) {
		t.Errorf("cellValue(int) = %#v", got)
	}
	if got := cellValue(common.Binary([]byte{0xab})); got != "0xab" {
		t.Errorf("cellValue(binary) = %#v", got)
	}
	long := cellValue(common.String(strings.Repeat("z", excelize.TotalCellChars+10))).(string)
	if len(long) != excelize.TotalCellChars {
		t.Errorf("long string length = %d", len(long))
	}
	wide := strings.Repeat("é", 20000)
	if got := cellValue(common.String(wide)); got != wide {
		t.Errorf("multibyte string under the limit was changed: %d runes", utf8.RuneCountInString(got.(string)))
	}
	cut := cellValue(common.String(strings.Repeat("é", excelize.TotalCellChars+5))).(string)
	if n := utf8.RuneCountInString(cut); n != excelize.TotalCellChars {
		t.Errorf("multibyte string cut to %d runes, want %d", n, excelize.TotalCellChars)
	}
	if !utf8.ValidString(cut) {
		t.Error("truncated string is not valid UTF-8")
	}
	// characters outside the BMP count twice, so an odd limit ends one rune early
	emoji := cellValue(common.String(strings.Repeat("😀", 20000))).(string)
	if n := utf8.RuneCountInString(emoji); n != excelize.TotalCellChars/2 {
		t.Errorf("emoji string cut to %d runes, want %d", n, excelize.TotalCellChars/2)
	}
	if cellValue(common.Null()) != nil {
		t.Error("NULL should map to an empty cell")
	}
}
