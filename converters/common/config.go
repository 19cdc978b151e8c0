package common

import (
	"fmt"
	"time"
)

const (
	// DefaultBatchSize is the number of rows committed per transaction by database emitters.
	DefaultBatchSize = 1000
	// DefaultSummaryFormat is used for summary output when no format was requested.
	DefaultSummaryFormat = "markdown"
)

// ConversionConfig stores configuration options for the conversion process.
type ConversionConfig struct {
	Format        string // Output format name (csv, json, excel, ...)
	Delimiter     rune   // Delimiter used for delimited-text output
	TableName     string // Table to export; empty means summary or first table
	AllTables     bool   // Export every table to its own destination
	NullValue     string // Text written for NULL in text formats
	BatchSize     int    // Rows per transaction for database output
	SheetRowLimit int    // Data rows per spreadsheet sheet before paginating (0 = format maximum)
	Verbose       bool   // Enable detailed logging
	InputPath     string // Path to the input dump
	OutputPath    string // Destination file or directory
	ScanTimeout   string // Duration string (e.g. "20s"); abort when no row arrives within it
}

// DefaultConversionConfig returns a config with the defaults every driver expects.
func DefaultConversionConfig() *ConversionConfig {
	return &ConversionConfig{
		Delimiter: ',',
		BatchSize: DefaultBatchSize,
	}
}

// ScanTimeoutDuration parses ScanTimeout. An empty value disables the timeout.
func (c *ConversionConfig) ScanTimeoutDuration() (time.Duration, error) {
	if c == nil || c.ScanTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ScanTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid scan timeout %q: %w", c.ScanTimeout, err)
	}
	return d, nil
}

// SummaryMode reports whether the run should only report per-table statistics.
func (c *ConversionConfig) SummaryMode() bool {
	return c.OutputPath == "" && c.TableName == "" && !c.AllTables
}
