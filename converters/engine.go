package converters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/darianmavgo/dumpconv/converters/common"
	"github.com/darianmavgo/dumpconv/converters/sqldump"

	"github.com/rs/zerolog"
)

var ErrInterrupted = errors.New("operation interrupted by user")
var ErrScanTimeout = errors.New("scan timed out")

// SummaryTable is the table name handed to the factory for summary output.
const SummaryTable = "summary"

// Status is the non-fatal outcome of a run.
type Status int

const (
	// StatusOK means at least one table was found and, if one was requested, it matched.
	StatusOK Status = iota
	// StatusNoMatch means the requested table never appeared in the dump.
	StatusNoMatch
	// StatusEmpty means the dump contained no tables at all.
	StatusEmpty
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoMatch:
		return "no matching table"
	case StatusEmpty:
		return "no tables found"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// TableInfo describes one table seen in the dump.
type TableInfo struct {
	Name     string
	Columns  []string
	RowCount int64
}

// Result reports what a run saw. It is returned even when the run fails.
type Result struct {
	Status   Status
	Tables   []*TableInfo // first-seen order, including tables without rows
	Warnings []error
	Emitted  int64 // rows forwarded to emitters
}

// Table returns the info for name, or nil.
func (r *Result) Table(name string) *TableInfo {
	for _, t := range r.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// SummarySchema is the row shape of summary records.
func SummarySchema() *common.Schema {
	return common.NewSchema(SummaryTable, []string{"table", "columns", "rows"})
}

// run holds the state of one conversion. The emitter registry and table infos are
// owned by the run and never shared.
type run struct {
	ctx     context.Context
	log     *zerolog.Logger
	config  *common.ConversionConfig
	factory common.EmitterFactory
	reader  *sqldump.Reader

	infos    map[string]*TableInfo
	emitters map[string]common.Emitter
	opened   []string // emitter open order, for deterministic closing
	first    string   // table chosen in first-table mode
	summary  common.Emitter

	// table-switch state machine: no active table until the first row
	hasActive bool
	active    string
	schema    *common.Schema
	info      *TableInfo
	emitter   common.Emitter // nil when the active table is not exported

	emitted int64
}

// Run drives the dump in src to completion.
//
// In summary mode (no table, no output path, not all tables) no rows are emitted;
// instead one record per table is written through a single emitter obtained from
// factory(SummaryTable, SummarySchema()). Otherwise every row of the selected
// table(s) is forwarded to a per-table emitter created lazily on the table's first
// row. Every emitter that was opened is closed before Run returns, on all paths.
func Run(ctx context.Context, src io.Reader, config *common.ConversionConfig, factory common.EmitterFactory) (*Result, error) {
	if config == nil {
		config = common.DefaultConversionConfig()
	}
	if factory == nil {
		return nil, errors.New("converters: nil emitter factory")
	}
	timeout, err := config.ScanTimeoutDuration()
	if err != nil {
		return nil, err
	}

	r := &run{
		ctx:      ctx,
		log:      zerolog.Ctx(ctx),
		config:   config,
		factory:  factory,
		infos:    make(map[string]*TableInfo),
		emitters: make(map[string]common.Emitter),
	}
	r.reader = sqldump.NewReader(src, sqldump.WithWarningHandler(func(err error) {
		r.log.Warn().Err(err).Msg("schema inconsistency, keeping first definition")
	}))

	wd := common.NewWatchdog(timeout)
	wd.Start()
	defer wd.Stop()

	runErr := r.loop(wd)
	if runErr == nil {
		runErr = r.finish()
	}
	if closeErr := r.closeAll(); closeErr != nil {
		runErr = errors.Join(runErr, closeErr)
	}

	res := r.result()
	if runErr != nil {
		r.log.Error().Err(runErr).Int("line", r.reader.Line()).Msg("conversion aborted")
		return res, runErr
	}
	r.log.Debug().Stringer("status", res.Status).Int("tables", len(res.Tables)).Int64("rows", r.emitted).Msg("conversion finished")
	return res, nil
}

func (r *run) loop(wd *common.Watchdog) error {
	for {
		select {
		case <-r.ctx.Done():
			return ErrInterrupted
		case <-wd.Done():
			return fmt.Errorf("%w: no row within %s", ErrScanTimeout, wd.Timeout())
		default:
		}

		row, err := r.reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		wd.Kick()

		if schema := r.reader.Schema(); !r.hasActive || schema.Table != r.active || schema != r.schema {
			if err := r.switchTo(schema); err != nil {
				return err
			}
		}
		r.info.RowCount++

		if r.emitter != nil {
			if err := r.emitter.Emit(row); err != nil {
				return fmt.Errorf("failed to emit row of table %s: %w", r.active, err)
			}
			r.emitted++
		}
	}
}

// switchTo is the single transition of the table-switch state machine: it makes
// schema's table active, looking up or creating its info and emitter.
func (r *run) switchTo(schema *common.Schema) error {
	info, ok := r.infos[schema.Table]
	if !ok {
		info = &TableInfo{Name: schema.Table}
		r.infos[schema.Table] = info
		r.log.Debug().Str("table", schema.Table).Strs("columns", schema.Columns).Msg("table discovered")
	}
	// a later definition may have named anonymous columns
	info.Columns = schema.Columns

	r.hasActive = true
	r.active = schema.Table
	r.schema = schema
	r.info = info

	em, err := r.emitterFor(schema)
	if err != nil {
		return err
	}
	r.emitter = em
	return nil
}

// emitterFor returns the table's emitter, creating and binding it on first use.
// It returns nil for tables that are not exported in this run.
func (r *run) emitterFor(schema *common.Schema) (common.Emitter, error) {
	if em, ok := r.emitters[schema.Table]; ok {
		return em, nil
	}
	if !r.selected(schema.Table) {
		return nil, nil
	}

	em, err := r.factory(schema.Table, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create emitter for table %s: %w", schema.Table, err)
	}
	r.emitters[schema.Table] = em
	r.opened = append(r.opened, schema.Table)
	if err := em.Bind(schema); err != nil {
		return nil, fmt.Errorf("failed to bind emitter for table %s: %w", schema.Table, err)
	}
	r.log.Info().Str("table", schema.Table).Int("columns", schema.Len()).Msg("exporting table")
	return em, nil
}

func (r *run) selected(table string) bool {
	switch {
	case r.config.SummaryMode():
		return false
	case r.config.AllTables:
		return true
	case r.config.TableName != "":
		return strings.EqualFold(table, r.config.TableName)
	}
	if r.first == "" {
		r.first = table
	}
	return table == r.first
}

// finish runs after a clean end of input: it gives selected tables that never had
// rows a header-only output and writes the summary in summary mode.
func (r *run) finish() error {
	schemas := r.reader.Schemas()
	if r.config.SummaryMode() {
		return r.writeSummary(schemas)
	}
	for _, s := range schemas {
		if _, err := r.emitterFor(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) writeSummary(schemas []*common.Schema) error {
	if len(schemas) == 0 {
		return nil
	}
	summary := SummarySchema()
	em, err := r.factory(SummaryTable, summary)
	if err != nil {
		return fmt.Errorf("failed to create summary emitter: %w", err)
	}
	r.summary = em
	if err := em.Bind(summary); err != nil {
		return fmt.Errorf("failed to bind summary emitter: %w", err)
	}
	for _, s := range schemas {
		var rows int64
		if info, ok := r.infos[s.Table]; ok {
			rows = info.RowCount
		}
		rec := common.Row{common.String(s.Table), common.Int(int64(s.Len())), common.Int(rows)}
		if err := em.Emit(rec); err != nil {
			return fmt.Errorf("failed to write summary of table %s: %w", s.Table, err)
		}
	}
	return nil
}

// closeAll closes every opened emitter exactly once and joins their errors.
func (r *run) closeAll() error {
	var errs []error
	for _, name := range r.opened {
		em := r.emitters[name]
		if err := em.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close output for table %s: %w", name, err))
			continue
		}
		if info, ok := r.infos[name]; ok {
			r.log.Info().Str("table", name).Int64("rows", info.RowCount).Msg("table finished")
		}
	}
	r.opened = nil
	if r.summary != nil {
		if err := r.summary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close summary output: %w", err))
		}
		r.summary = nil
	}
	return errors.Join(errs...)
}

func (r *run) result() *Result {
	res := &Result{Warnings: r.reader.Warnings(), Emitted: r.emitted}
	for _, s := range r.reader.Schemas() {
		info, ok := r.infos[s.Table]
		if !ok {
			info = &TableInfo{Name: s.Table, Columns: s.Columns}
		}
		res.Tables = append(res.Tables, info)
	}

	// a missing requested table is reported before an empty dump
	switch {
	case r.config.TableName != "" && !r.matched():
		res.Status = StatusNoMatch
	case len(res.Tables) == 0:
		res.Status = StatusEmpty
	}
	return res
}

func (r *run) matched() bool {
	for _, s := range r.reader.Schemas() {
		if strings.EqualFold(s.Table, r.config.TableName) {
			return true
		}
	}
	return false
}
