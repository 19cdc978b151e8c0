package config

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/darianmavgo/dumpconv/converters/common"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Config represents the application configuration.
// Command line flags take precedence over values loaded from a file.
type Config struct {
	OutFormat     string `hcl:"out_format,optional" validate:"omitempty,oneof=csv json excel html markdown sqlite"`
	Delimiter     string `hcl:"delimiter,optional" validate:"omitempty,len=1,delimiter"`
	NullValue     string `hcl:"null_value,optional"`
	BatchSize     int    `hcl:"batch_size,optional" validate:"gte=1"`
	SheetRowLimit int    `hcl:"sheet_row_limit,optional" validate:"gte=0"`
	ScanTimeout   string `hcl:"scan_timeout,optional" validate:"omitempty,duration"`
	Verbose       bool   `hcl:"verbose,optional"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Delimiter: ",",
		BatchSize: common.DefaultBatchSize,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	v.RegisterValidation("delimiter", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "\"", "\r", "\n":
			return false
		}
		return true
	})
	return v
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the configuration from the given HCL file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	cfg := DefaultConfig()
	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config: %s", diags.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Export writes the configuration to the specified file in HCL format.
func Export(path string, cfg *Config) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	if cfg.OutFormat != "" {
		root.SetAttributeValue("out_format", cty.StringVal(cfg.OutFormat))
	}
	root.SetAttributeValue("delimiter", cty.StringVal(cfg.Delimiter))
	root.SetAttributeValue("null_value", cty.StringVal(cfg.NullValue))
	root.SetAttributeValue("batch_size", cty.NumberIntVal(int64(cfg.BatchSize)))
	root.SetAttributeValue("sheet_row_limit", cty.NumberIntVal(int64(cfg.SheetRowLimit)))
	if cfg.ScanTimeout != "" {
		root.SetAttributeValue("scan_timeout", cty.StringVal(cfg.ScanTimeout))
	}
	root.SetAttributeValue("verbose", cty.BoolVal(cfg.Verbose))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(f.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write config to file: %w", err)
	}

	return nil
}

// Apply copies the file settings onto a conversion config.
func (c *Config) Apply(conv *common.ConversionConfig) {
	if c.OutFormat != "" {
		conv.Format = c.OutFormat
	}
	if r, size := utf8.DecodeRuneInString(c.Delimiter); size > 0 {
		conv.Delimiter = r
	}
	conv.NullValue = c.NullValue
	conv.BatchSize = c.BatchSize
	conv.SheetRowLimit = c.SheetRowLimit
	conv.ScanTimeout = c.ScanTimeout
	conv.Verbose = conv.Verbose || c.Verbose
}
