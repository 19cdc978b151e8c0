package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dump = "-- MySQL dump\n" +
	"CREATE TABLE `users` (`id` int, `name` varchar(10));\n" +
	"INSERT INTO `users` VALUES (1,'Ann'),(2,'Bo');\n" +
	"CREATE TABLE `posts` (`id` int, `title` text);\n" +
	"INSERT INTO `posts` VALUES (1,'hi');\n"

func writeDump(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"in.sql", "--table", "users", "out.csv", "--out-format=json", "--verbose"})
	require.NoError(t, err)
	assert.Equal(t, &options{input: "in.sql", output: "out.csv", table: "users", format: "json", verbose: true}, opts)

	_, err = parseArgs([]string{"in.sql", "--table"})
	assert.Error(t, err)
	_, err = parseArgs([]string{"in.sql", "--bogus"})
	assert.Error(t, err)
	_, err = parseArgs([]string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestResolveFormat(t *testing.T) {
	for in, want := range map[string]string{"csv": "csv", "xlsx": "excel", "TSV": "csv", "db": "sqlite", "excel": "excel"} {
		got, err := resolveFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := resolveFormat("parquet")
	assert.Error(t, err)
}

func TestSummaryToStdout(t *testing.T) {
	in := writeDump(t, "dump.sql", dump)
	code, stdout, _ := runCLI(in)
	assert.Equal(t, 0, code)
	assert.Equal(t, "| table | columns | rows |\n| --- | --- | --- |\n| users | 2 | 2 |\n| posts | 2 | 1 |\n", stdout)
}

func TestTableToFile(t *testing.T) {
	in := writeDump(t, "dump.sql", dump)
	out := filepath.Join(t.TempDir(), "nested", "users.tsv")

	code, _, stderr := runCLI(in, out, "--table", "users")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id\tname\n1\tAnn\n2\tBo\n", string(data))
}

func TestCompressedInput(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(dump))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	in := writeDump(t, "dump.sql.gz", buf.String())

	code, stdout, stderr := runCLI(in, "--table", "posts")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "id,title\n1,hi\n", stdout)
}

func TestAllTablesToFolder(t *testing.T) {
	in := writeDump(t, "dump.sql", dump)
	dir := filepath.Join(t.TempDir(), "out")

	code, _, stderr := runCLI(in, dir, "--all-tables", "--out-format", "json")
	require.Equal(t, 0, code, stderr)

	for _, name := range []string{"users.json", "posts.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestErrors(t *testing.T) {
	in := writeDump(t, "dump.sql", dump)
	empty := writeDump(t, "empty.sql", "-- nothing here\n")
	missing := filepath.Join(t.TempDir(), "missing.sql")

	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"no input", []string{"--verbose"}, "Please specify an input sql dump. See --help.\n"},
		{"missing file", []string{missing}, "Cannot find '" + missing + "'.\n"},
		{"table and all tables", []string{in, "--table", "users", "--all-tables"}, "Cannot specify both --table and --all-tables.\n"},
		{"unknown extension", []string{in, "out.parquet"}, "Cannot determine an output format based on the file extension. Please specify --out-format.\n"},
		{"unknown table", []string{in, "--table", "orders"}, "Unable to find table orders."},
		{"empty dump", []string{empty}, "No tables were found.\n"},
		{"table in empty dump", []string{empty, "--table", "users"}, "Unable to find table users."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.stderr)
		})
	}
}

func TestUnknownTableCreatesNoFile(t *testing.T) {
	in := writeDump(t, "dump.sql", dump)
	out := filepath.Join(t.TempDir(), "orders.csv")

	code, _, _ := runCLI(in, out, "--table", "orders")
	assert.Equal(t, 1, code)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestVersionAndHelp(t *testing.T) {
	code, stdout, _ := runCLI("--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "dumpconv dev\n", stdout)

	code, stdout, _ = runCLI("--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "markdown")
}

func TestConfigFile(t *testing.T) {
	in := writeDump(t, "dump.sql", "INSERT INTO t VALUES (1,NULL);\n")
	cfg := writeDump(t, "dumpconv.hcl", "delimiter = \";\"\nnull_value = \"NULL\"\n")

	code, stdout, stderr := runCLI(in, "--table", "t", "--config", cfg)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cl0;cl1\n1;NULL\n", stdout)

	bad := writeDump(t, "bad.hcl", "batch_size = 0\n")
	code, _, stderr = runCLI(in, "--config", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error loading config")
}
