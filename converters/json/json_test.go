package json

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/darianmavgo/dumpconv/converters"
	"github.com/darianmavgo/dumpconv/converters/common"
)

func emitAll(t *testing.T, schema *common.Schema, rows []common.Row) string {
	t.Helper()
	var buf bytes.Buffer
	em := NewJSONEmitter(&buf, nil)
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
	return buf.String()
}

func TestJSONEmitterOrderedKeys(t *testing.T) {
	schema := common.NewSchema("users", []string{"name", "id"})
	out := emitAll(t, schema, []common.Row{
		{common.String("Ann"), common.Int(1)},
		{common.String(`quote " and ; semicolon`), common.Int(2)},
	})

	want := `{"name":"Ann","id":1}` + "\n" +
		`{"name":"quote \" and ; semicolon","id":2}` + "\n"
	if out != want {
		t.Errorf("output =\n%s\nwant\n%s", out, want)
	}
}

func TestJSONEmitterValueKinds(t *testing.T) {
	schema := common.NewSchema("v", []string{"n", "i", "f", "big", "bin", "odd"})
	big, _ := common.Number("18446744073709551615")
	odd, _ := common.Number("1.")
	f, _ := common.Number("-2.5e3")
	out := emitAll(t, schema, []common.Row{
		{common.Null(), common.Int(-7), f, big, common.Binary([]byte{0x01, 0xff}), odd},
	})

	scanner := bufio.NewScanner(strings.NewReader(out))
	if !scanner.Scan() {
		t.Fatal("no output line")
	}
	line := scanner.Text()
	if !json.Valid([]byte(line)) {
		t.Fatalf("invalid json line: %s", line)
	}

	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var got map[string]interface{}
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := map[string]interface{}{
		"n":   nil,
		"i":   json.Number("-7"),
		"f":   json.Number("-2.5e3"),
		"big": json.Number("18446744073709551615"),
		"bin": "0x01ff",
		"odd": json.Number("1"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded = %#v, want %#v", got, want)
	}
}

func TestJSONEmitterLifecycle(t *testing.T) {
	var buf bytes.Buffer
	em := NewJSONEmitter(&buf, nil)
	if err := em.Emit(common.Row{}); err == nil {
		t.Error("expected error for Emit before Bind")
	}
	em.Bind(common.NewSchema("t", []string{"a"}))
	if err := em.Emit(common.Row{common.Int(1), common.Int(2)}); err == nil {
		t.Error("expected arity error")
	}
	em.Close()
	if err := em.Emit(common.Row{common.Int(1)}); !errors.Is(err, converters.ErrEmitterClosed) {
		t.Errorf("Emit after Close = %v, want ErrEmitterClosed", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
