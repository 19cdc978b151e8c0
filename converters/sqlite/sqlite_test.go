package sqlite

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/darianmavgo/dumpconv/converters/common"
)

func loadTable(t *testing.T, em *SQLiteEmitter, schema *common.Schema, rows []common.Row) {
	t.Helper()
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
}

func countRows(t *testing.T, path, query string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q failed: %v", query, err)
	}
	return n
}

func TestSQLiteEmitterDirectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	config := common.DefaultConversionConfig()
	config.BatchSize = 2
	em, err := NewSQLiteEmitter(f, config)
	if err != nil {
		t.Fatalf("NewSQLiteEmitter failed: %v", err)
	}
	if em.useTemp {
		t.Fatal("expected a regular file to be used directly")
	}

	schema := common.NewSchema("Users", []string{"id", "Full Name", "order"})
	loadTable(t, em, schema, []common.Row{
		{common.Int(1), common.String("Ann"), common.Null()},
		{common.Int(2), common.String("Bo"), common.Int(3)},
		{common.Int(3), common.String("Cy"), common.Binary([]byte{1, 2})},
	})

	if got := countRows(t, path, "SELECT COUNT(*) FROM users"); got != 3 {
		t.Errorf("row count = %d, want 3", got)
	}
	if got := countRows(t, path, "SELECT COUNT(*) FROM users WHERE order_ IS NULL"); got != 1 {
		t.Errorf("null count = %d, want 1", got)
	}
	if got := countRows(t, path, "SELECT COUNT(*) FROM users WHERE full_name = 'Bo'"); got != 1 {
		t.Errorf("sanitized column lookup = %d, want 1", got)
	}
}

func TestSQLiteEmitterTempCopy(t *testing.T) {
	var buf bytes.Buffer
	em, err := NewSQLiteEmitter(&buf, nil)
	if err != nil {
		t.Fatalf("NewSQLiteEmitter failed: %v", err)
	}
	tmp := em.dbPath
	loadTable(t, em, common.NewSchema("t", []string{"a"}), []common.Row{{common.Int(1)}, {common.Int(2)}})

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp database %s was not removed", tmp)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3\x00")) {
		t.Fatal("output is not a SQLite database")
	}

	path := filepath.Join(t.TempDir(), "copy.db")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if got := countRows(t, path, "SELECT COUNT(*) FROM t"); got != 2 {
		t.Errorf("row count = %d, want 2", got)
	}
}

func TestSQLiteEmitterArity(t *testing.T) {
	em, err := NewSQLiteEmitter(&bytes.Buffer{}, nil)
	if err != nil {
		t.Fatalf("NewSQLiteEmitter failed: %v", err)
	}
	defer em.Close()
	if err := em.Bind(common.NewSchema("t", []string{"a", "b"})); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := em.Emit(common.Row{common.Int(1)}); err == nil {
		t.Error("expected arity error")
	}
}
