package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/darianmavgo/dumpconv/config"
	"github.com/darianmavgo/dumpconv/converters"
	_ "github.com/darianmavgo/dumpconv/converters/all"
	"github.com/darianmavgo/dumpconv/converters/common"
	"github.com/darianmavgo/dumpconv/converters/source"
	"github.com/darianmavgo/dumpconv/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `Usage:
  dumpconv <sql-dump> [out-file|out-dir] [--out-format F] [--table name] [--all-tables]

sql-dump        Path to a .sql dump, optionally compressed (.gz, .bz2, .xz, .zst)
out-file        Destination file; the extension selects the format
out-dir         Destination folder when --all-tables is given
--out-format    Output format: %s
--table         Name of the table to export
--all-tables    Export every table, each one to a separate file
--config        HCL file with conversion settings
--verbose       Debug logging on stderr
--version       Print the version and exit

With only <sql-dump>, prints every table with its column and row counts.
`

type options struct {
	input     string
	output    string
	format    string
	table     string
	allTables bool
	config    string
	verbose   bool
	version   bool
	help      bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	var positional []string

	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("missing value for %s", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(arg, "--") {
			hasInline = false
			name = arg
		}

		var err error
		var v string
		switch name {
		case "--out-format", "--table", "--config":
			if hasInline {
				v = inline
			} else if v, err = value(&i, name); err != nil {
				return nil, err
			}
			switch name {
			case "--out-format":
				opts.format = v
			case "--table":
				opts.table = v
			case "--config":
				opts.config = v
			}
		case "--all-tables":
			opts.allTables = true
		case "--verbose", "--log":
			opts.verbose = true
		case "--version":
			opts.version = true
		case "--help", "-h", "/?":
			opts.help = true
		default:
			if strings.HasPrefix(arg, "--") {
				return nil, fmt.Errorf("unknown option %s", arg)
			}
			positional = append(positional, arg)
		}
	}

	if len(positional) > 2 {
		return nil, fmt.Errorf("unexpected argument %s", positional[2])
	}
	if len(positional) > 0 {
		opts.input = positional[0]
	}
	if len(positional) > 1 {
		opts.output = positional[1]
	}
	return opts, nil
}

// resolveFormat accepts a driver name or a file extension such as xlsx or tsv.
func resolveFormat(name string) (string, error) {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	for _, f := range converters.Formats() {
		if f == name {
			return f, nil
		}
	}
	return converters.FormatForPath("out." + name)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v. See --help.\n", err)
		return 1
	}
	if opts.version {
		fmt.Fprintf(stdout, "dumpconv %s\n", version)
		return 0
	}
	if opts.help || len(args) == 0 {
		fmt.Fprintf(stdout, usage, strings.Join(converters.Formats(), ", "))
		return 0
	}
	if opts.input == "" {
		fmt.Fprintln(stderr, "Please specify an input sql dump. See --help.")
		return 1
	}
	if info, err := os.Stat(opts.input); err != nil || info.IsDir() {
		fmt.Fprintf(stderr, "Cannot find '%s'.\n", opts.input)
		return 1
	}
	if opts.allTables && opts.table != "" {
		fmt.Fprintln(stderr, "Cannot specify both --table and --all-tables.")
		return 1
	}

	conv := common.DefaultConversionConfig()
	if opts.config != "" {
		cfg, err := config.Load(opts.config)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return 1
		}
		cfg.Apply(conv)
	}
	conv.InputPath = opts.input
	conv.OutputPath = opts.output
	conv.TableName = opts.table
	conv.AllTables = opts.allTables
	conv.Verbose = conv.Verbose || opts.verbose

	factory, err := destination(opts, conv, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	log := logger.New(logger.Options{Verbose: conv.Verbose, Out: stderr})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	src, err := source.Open(opts.input)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening dump: %v\n", err)
		return 1
	}
	defer src.Close()
	log.Debug().Str("input", src.Path).Stringer("compression", src.Compression).Msg("reading dump")

	res, err := converters.Run(ctx, src, conv, factory)
	if err != nil {
		if errors.Is(err, converters.ErrInterrupted) {
			fmt.Fprintln(stderr, "Interrupted.")
			return 130
		}
		fmt.Fprintf(stderr, "Error converting dump: %v\n", err)
		return 1
	}

	switch res.Status {
	case converters.StatusNoMatch:
		fmt.Fprintf(stderr, "Unable to find table %s. Use dumpconv \"%s\" (with no other args) to see a list of tables that were found.\n", opts.table, opts.input)
		return 1
	case converters.StatusEmpty:
		fmt.Fprintln(stderr, "No tables were found.")
		return 1
	}
	return 0
}

// destination picks the output format and the emitter factory for the run mode.
func destination(opts *options, conv *common.ConversionConfig, stdout io.Writer) (common.EmitterFactory, error) {
	format := conv.Format
	if opts.format != "" {
		f, err := resolveFormat(opts.format)
		if err != nil {
			return nil, fmt.Errorf("Unknown output format '%s'. Available: %s.", opts.format, strings.Join(converters.Formats(), ", "))
		}
		format = f
		if strings.EqualFold(strings.TrimPrefix(opts.format, "."), "tsv") {
			conv.Delimiter = '\t'
		}
	}

	if opts.output == "" {
		if format == "" {
			format = "csv"
			if conv.SummaryMode() {
				format = common.DefaultSummaryFormat
			}
		}
		if opts.allTables {
			return nil, errors.New("Please specify an output folder for --all-tables.")
		}
		conv.Format = format
		return converters.WriterFactory(stdout, format, conv), nil
	}

	if format == "" && !opts.allTables {
		f, err := converters.FormatForPath(opts.output)
		if err == nil {
			format = f
		}
	}
	if format == "" {
		return nil, errors.New("Cannot determine an output format based on the file extension. Please specify --out-format.")
	}
	if strings.EqualFold(filepath.Ext(opts.output), ".tsv") {
		conv.Delimiter = '\t'
	}
	conv.Format = format

	if opts.allTables {
		return converters.FileFactory(opts.output, format, conv), nil
	}
	if dir := filepath.Dir(opts.output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return converters.PathFactory(opts.output, format, conv), nil
}
