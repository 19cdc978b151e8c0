package common

import "io"

// Emitter serializes the rows of a single table into one destination format.
//
// Bind is called once before any row, Emit once per row in arrival order and
// Close exactly once. Close flushes buffered state and releases the destination.
type Emitter interface {
	Bind(schema *Schema) error
	Emit(row Row) error
	Close() error
}

// EmitterFactory resolves the destination for a table and returns an unbound emitter.
type EmitterFactory func(table string, schema *Schema) (Emitter, error)

// Driver defines the interface that must be implemented by an output format package.
type Driver interface {
	// NewEmitter returns an emitter writing to w. The emitter owns w and closes it
	// on Close when w implements io.Closer.
	NewEmitter(w io.Writer, config *ConversionConfig) (Emitter, error)

	// Extensions lists the file extensions (with dot) mapped to this format.
	Extensions() []string
}
