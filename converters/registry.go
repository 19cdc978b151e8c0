package converters

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/darianmavgo/dumpconv/converters/common"
)

var (
	// ErrUnknownFormat is returned when no driver is registered for a format name or
	// file extension.
	ErrUnknownFormat = errors.New("unknown output format")

	// ErrEmitterClosed is returned by Emit and Bind after Close.
	ErrEmitterClosed = errors.New("emitter already closed")
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]common.Driver)
)

// Register makes an output driver available by the provided format name.
// If Register is called twice with the same name or if driver is nil, it panics.
func Register(name string, driver common.Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("converters: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("converters: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// NewEmitter returns an unbound emitter of the named format writing to w.
func NewEmitter(format string, w io.Writer, config *common.ConversionConfig) (common.Emitter, error) {
	driversMu.RLock()
	driver, ok := drivers[format]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (forgotten import?)", ErrUnknownFormat, format)
	}
	if config == nil {
		config = common.DefaultConversionConfig()
	}
	return driver.NewEmitter(w, config)
}

// Formats returns a sorted list of the registered format names.
func Formats() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	list := make([]string, 0, len(drivers))
	for name := range drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// FormatForPath resolves the output format from a destination path's extension.
func FormatForPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", fmt.Errorf("%w: %q has no extension", ErrUnknownFormat, path)
	}

	driversMu.RLock()
	defer driversMu.RUnlock()
	for _, name := range sortedNames() {
		for _, e := range drivers[name].Extensions() {
			if e == ext {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no driver for extension %q", ErrUnknownFormat, ext)
}

// Extension returns the primary file extension of a format, including the dot.
func Extension(format string) (string, error) {
	driversMu.RLock()
	driver, ok := drivers[format]
	driversMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	exts := driver.Extensions()
	if len(exts) == 0 {
		return "", fmt.Errorf("%w: driver %q declares no extension", ErrUnknownFormat, format)
	}
	return exts[0], nil
}

// sortedNames must be called with driversMu held.
func sortedNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileFactory returns an EmitterFactory writing each table to
// dir/<sanitized table name><ext>. Tables whose names sanitize to the same file
// name get a numeric suffix (users, users2, ...), so no two tables share a file.
func FileFactory(dir, format string, config *common.ConversionConfig) common.EmitterFactory {
	used := make(map[string]bool)
	return func(table string, _ *common.Schema) (common.Emitter, error) {
		ext, err := Extension(format)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		name := uniqueName(common.GenTableName(table), used)
		return createFileEmitter(filepath.Join(dir, name+ext), format, config)
	}
}

// uniqueName returns base, or base followed by the first free counter, and marks
// the result used. Names are compared case-insensitively for case-folding filesystems.
func uniqueName(base string, used map[string]bool) string {
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s%d", base, n)
	}
	used[strings.ToLower(name)] = true
	return name
}

// PathFactory returns an EmitterFactory writing a single table to path. It fails
// if asked for a second table.
func PathFactory(path, format string, config *common.ConversionConfig) common.EmitterFactory {
	var used string
	return func(table string, _ *common.Schema) (common.Emitter, error) {
		if used != "" && used != table {
			return nil, fmt.Errorf("output %s already holds table %s, cannot add %s", path, used, table)
		}
		used = table
		return createFileEmitter(path, format, config)
	}
}

// WriterFactory returns an EmitterFactory writing to w, which is left open when the
// emitter closes. Used for the summary on stdout.
func WriterFactory(w io.Writer, format string, config *common.ConversionConfig) common.EmitterFactory {
	return func(string, *common.Schema) (common.Emitter, error) {
		return NewEmitter(format, writerOnly{w}, config)
	}
}

func createFileEmitter(path, format string, config *common.ConversionConfig) (common.Emitter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	em, err := NewEmitter(format, f, config)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return em, nil
}

// writerOnly hides any Close method of the wrapped writer.
type writerOnly struct {
	w io.Writer
}

func (w writerOnly) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// CloseWriter closes w when it implements io.Closer. Drivers call it from Close.
func CloseWriter(w io.Writer) error {
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
