package common

import (
	"fmt"
	"testing"
)

// dumpTableNames mimics the table names of a large mysqldump: mixed case,
// prefixes, separators, keywords and a few names that collide once sanitized.
func dumpTableNames(n int) []string {
	shapes := []string{"wp_posts", "Order Items", "user-log", "userlog", "ORDER", "2024_archive", "café_menu", "Users"}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", shapes[i%len(shapes)], i/len(shapes))
	}
	return names
}

func BenchmarkGenTableName(b *testing.B) {
	names := dumpTableNames(64)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenTableName(names[i%len(names)])
	}
}

func BenchmarkGenColumnNamesWideTable(b *testing.B) {
	// sqlite output sanitizes every column of a wide definition once per table
	cols := make([]string, 500)
	for i := range cols {
		switch i % 4 {
		case 0:
			cols[i] = fmt.Sprintf("Column %d", i)
		case 1:
			cols[i] = "order"
		case 2:
			cols[i] = fmt.Sprintf("%d_total", i)
		default:
			cols[i] = "name"
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenColumnNames(cols)
	}
}

func BenchmarkGenPreparedStmt(b *testing.B) {
	cols := GenColumnNames(dumpTableNames(200))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := GenPreparedStmt("bench_table", cols, InsertStmt); err != nil {
			b.Fatal(err)
		}
	}
}
