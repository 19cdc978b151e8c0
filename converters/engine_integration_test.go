package converters_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/darianmavgo/dumpconv/converters"
	_ "github.com/darianmavgo/dumpconv/converters/all"
	"github.com/darianmavgo/dumpconv/converters/common"
	"github.com/darianmavgo/dumpconv/converters/source"
	"github.com/darianmavgo/dumpconv/converters/sqldump"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersDump = "CREATE TABLE `users` (`id` int, `name` varchar(10));\n" +
	"INSERT INTO `users` VALUES (1,'Ann'),(2,'Bo');\n"

func convertToFile(t *testing.T, input []byte, compression source.Compression, format, table string) (string, *converters.Result) {
	t.Helper()
	src, err := source.NewReader(bytes.NewReader(input), compression)
	require.NoError(t, err)
	defer src.Close()

	out := filepath.Join(t.TempDir(), table+".out")
	config := common.DefaultConversionConfig()
	config.TableName = table
	config.OutputPath = out

	res, err := converters.Run(context.Background(), src, config, converters.PathFactory(out, format, config))
	require.NoError(t, err)
	return out, res
}

func TestDetailModeCSV(t *testing.T) {
	out, res := convertToFile(t, []byte(usersDump), source.CompressionNone, "csv", "users")
	assert.Equal(t, converters.StatusOK, res.Status)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Ann\n2,Bo\n", string(data))
}

func TestGzipInputMatchesPlain(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(usersDump))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	plainOut, _ := convertToFile(t, []byte(usersDump), source.CompressionNone, "csv", "users")
	gzOut, _ := convertToFile(t, gz.Bytes(), source.CompressionGZ, "csv", "users")

	plain, err := os.ReadFile(plainOut)
	require.NoError(t, err)
	fromGz, err := os.ReadFile(gzOut)
	require.NoError(t, err)
	assert.Equal(t, plain, fromGz)
}

func TestConversionIsIdempotent(t *testing.T) {
	input := []byte(usersDump + "INSERT INTO `users` VALUES (3,'semi;colon'),(4,NULL);\n")
	for _, format := range []string{"csv", "json"} {
		first, _ := convertToFile(t, input, source.CompressionNone, format, "users")
		second, _ := convertToFile(t, input, source.CompressionNone, format, "users")

		a, err := os.ReadFile(first)
		require.NoError(t, err)
		b, err := os.ReadFile(second)
		require.NoError(t, err)
		assert.Equal(t, a, b, format)
		assert.NotEmpty(t, a, format)
	}
}

func TestUnknownTableCreatesNoFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "orders.csv")
	config := common.DefaultConversionConfig()
	config.TableName = "orders"
	config.OutputPath = out

	res, err := converters.Run(context.Background(), strings.NewReader(usersDump), config, converters.PathFactory(out, "csv", config))
	require.NoError(t, err)
	assert.Equal(t, converters.StatusNoMatch, res.Status)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "output file should not exist")
}

func TestSummaryToWriter(t *testing.T) {
	var buf bytes.Buffer
	config := common.DefaultConversionConfig()
	factory := converters.WriterFactory(&buf, common.DefaultSummaryFormat, config)

	res, err := converters.Run(context.Background(), strings.NewReader(usersDump), config, factory)
	require.NoError(t, err)
	assert.Equal(t, converters.StatusOK, res.Status)
	assert.Equal(t, "| table | columns | rows |\n| --- | --- | --- |\n| users | 2 | 2 |\n", buf.String())
}

func TestAllTablesToDirectory(t *testing.T) {
	input := usersDump +
		"CREATE TABLE `Order Items` (`sku` text);\n" +
		"INSERT INTO `Order Items` VALUES ('a'),('b');\n" +
		"INSERT INTO `users` VALUES (3,'Cy');\n"

	dir := filepath.Join(t.TempDir(), "out")
	config := common.DefaultConversionConfig()
	config.AllTables = true
	config.OutputPath = dir

	res, err := converters.Run(context.Background(), strings.NewReader(input), config, converters.FileFactory(dir, "csv", config))
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Emitted)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"order_items.csv", "users.csv"}, names)

	users, err := os.ReadFile(filepath.Join(dir, "users.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Ann\n2,Bo\n3,Cy\n", string(users))
}

func TestAllTablesWithCollidingFileNames(t *testing.T) {
	input := "CREATE TABLE `Users` (`id` int);\n" +
		"INSERT INTO `Users` VALUES (1),(2);\n" +
		"CREATE TABLE `users` (`id` int);\n" +
		"INSERT INTO `users` VALUES (3);\n" +
		"INSERT INTO `Users` VALUES (4);\n" +
		"INSERT INTO `user-log` VALUES ('a');\n" +
		"INSERT INTO `userlog` VALUES ('b');\n"

	dir := filepath.Join(t.TempDir(), "out")
	config := common.DefaultConversionConfig()
	config.AllTables = true
	config.OutputPath = dir

	res, err := converters.Run(context.Background(), strings.NewReader(input), config, converters.FileFactory(dir, "csv", config))
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Emitted)

	want := map[string]string{
		"users.csv":    "id\n1\n2\n4\n",
		"users2.csv":   "id\n3\n",
		"userlog.csv":  "cl0\na\n",
		"userlog2.csv": "cl0\nb\n",
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(want))
	for name, content := range want {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, content, string(data), name)
	}
}

func TestMalformedDumpLeavesClosedPartialOutput(t *testing.T) {
	input := usersDump + "INSERT INTO `users` VALUES (3,'Cy',99);\n"
	out := filepath.Join(t.TempDir(), "users.csv")
	config := common.DefaultConversionConfig()
	config.TableName = "users"
	config.OutputPath = out

	_, err := converters.Run(context.Background(), strings.NewReader(input), config, converters.PathFactory(out, "csv", config))
	require.ErrorIs(t, err, sqldump.ErrMalformedStatement)

	// rows before the failure were flushed by Close
	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "id,name\n1,Ann\n2,Bo\n", string(data))
	assert.NoError(t, os.Remove(out))
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, converters.Formats(), []string{"csv", "excel", "html", "json", "markdown", "sqlite"})

	for path, want := range map[string]string{
		"a.csv":    "csv",
		"a.tsv":    "csv",
		"a.JSON":   "json",
		"a.jsonl":  "json",
		"a.xlsx":   "excel",
		"a.db":     "sqlite",
		"a.sqlite": "sqlite",
		"a.htm":    "html",
		"a.md":     "markdown",
	} {
		got, err := converters.FormatForPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := converters.FormatForPath("a.parquet")
	assert.ErrorIs(t, err, converters.ErrUnknownFormat)
	_, err = converters.FormatForPath("noext")
	assert.ErrorIs(t, err, converters.ErrUnknownFormat)
	_, err = converters.NewEmitter("yaml", &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, converters.ErrUnknownFormat)

	ext, err := converters.Extension("excel")
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", ext)
}

func TestPathFactoryRejectsSecondTable(t *testing.T) {
	out := filepath.Join(t.TempDir(), "one.csv")
	config := common.DefaultConversionConfig()
	config.AllTables = true
	config.OutputPath = out

	input := "INSERT INTO a VALUES (1);\nINSERT INTO b VALUES (2);\n"
	_, err := converters.Run(context.Background(), strings.NewReader(input), config, converters.PathFactory(out, "csv", config))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds table a")
}
