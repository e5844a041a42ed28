// =============================================================================
// DOCX Mail Merge - Generation Orchestrator
// =============================================================================
//
// This module contains the core generation logic. It drives one run from a
// GenerationRequest to an Outcome, one datasheet row at a time.
//
// GENERATION PIPELINE (per row):
//   1. Poll the cancellation token
//   2. Derive the FieldSet through the column mapping
//   3. Skip the row if a required field is empty
//   4. Bind the fields into the template
//   5. Write the primary .docx output
//   6. Convert to the secondary format (best effort) and write it
//   7. Emit a ProgressEvent
//
// STATE MACHINE:
//
//   Idle ──Submit──▶ Running ──▶ Completed
//                       │    ├──▶ Cancelled   (Cancel or ctx done, polled between rows)
//                       │    └──▶ Fatal       (TemplateFormatError, outputs so far
//                       │                      become PartialOutputs)
//                       └──────▶ Fatal        (UnreadableInputError, before any row)
//
// CONCURRENCY:
//   A Generator runs one request at a time. Rows are processed sequentially
//   so errors stay attributable and collision numbering is reproducible.
//   Submit while Running returns types.ErrRunInProgress. Cancel and State
//   may be called from any goroutine.
//
// =============================================================================

package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/converter"
	"github.com/ginjaninja78/docx-mail-merge/internal/docxtemplate"
	"github.com/ginjaninja78/docx-mail-merge/internal/fieldmap"
	"github.com/ginjaninja78/docx-mail-merge/internal/logging"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
	"github.com/ginjaninja78/docx-mail-merge/internal/validation"
	"github.com/ginjaninja78/docx-mail-merge/pkg/utils"
)

// PrimaryExt is the extension of the primary output document.
const PrimaryExt = "docx"

// Row results reported to the Recorder.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Binder renders a template against one row's fields.
type Binder interface {
	Bind(template []byte, fields types.FieldSet) ([]byte, error)
}

// Preparer is implemented by binders that can check a template once, before
// the first row.
type Preparer interface {
	Prepare(template []byte) error
}

// ProgressSink receives progress events synchronously and in order.
type ProgressSink interface {
	Progress(types.ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(types.ProgressEvent)

// Progress calls f(e).
func (f ProgressFunc) Progress(e types.ProgressEvent) { f(e) }

// Recorder observes runs for metrics.
type Recorder interface {
	RunStarted(total int)
	RowFinished(result string, elapsed time.Duration)
	ConversionFailed()
	RunFinished(state types.RunState, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(int)                            {}
func (nopRecorder) RowFinished(string, time.Duration)         {}
func (nopRecorder) ConversionFailed()                         {}
func (nopRecorder) RunFinished(types.RunState, time.Duration) {}

// =============================================================================
// GENERATOR STRUCTURE
// =============================================================================

// Generator runs mail-merge requests.
type Generator struct {
	cfg       *config.Config
	mapping   *fieldmap.Mapping
	validator *validation.Validator
	writer    *utils.OutputWriter

	binder    Binder
	converter converter.Converter
	convertTo string
	sink      ProgressSink
	recorder  Recorder
	logger    *slog.Logger

	mu        sync.Mutex
	state     types.RunState
	cancelled atomic.Bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithBinder replaces the DOCX binder.
func WithBinder(b Binder) Option {
	return func(g *Generator) { g.binder = b }
}

// WithConverter replaces the format converter.
func WithConverter(c converter.Converter) Option {
	return func(g *Generator) { g.converter = c }
}

// WithProgress sets the progress sink.
func WithProgress(s ProgressSink) Option {
	return func(g *Generator) { g.sink = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Generator) { g.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator from a validated configuration.
//
// PARAMETERS:
//   - cfg: The merge configuration. It is not modified.
//   - opts: Collaborator overrides. By default the DOCX binder and, when
//     conversion is enabled, the LibreOffice converter are used.
//
// RETURNS:
//   - A new Generator in the Idle state.
//   - An error if the configuration is invalid.
func New(cfg *config.Config, opts ...Option) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mapping, err := fieldmap.New(cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("invalid column mapping: %w", err)
	}

	g := &Generator{
		cfg:       cfg,
		mapping:   mapping,
		validator: validation.NewValidator(mapping.Required(), cfg.PrimaryKey),
		writer:    utils.NewOutputWriter(cfg.OutputDir, cfg.Collision),
		binder: docxtemplate.NewBinder(docxtemplate.Options{
			Linebreaks: cfg.Template.LinebreaksEnabled(),
			MissingKey: cfg.Template.MissingKey,
		}),
		converter: converter.Noop{},
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		state:     types.StateIdle,
	}

	if cfg.Conversion.IsEnabled() {
		g.converter = converter.NewLibreOffice(cfg.Conversion.SofficePath, cfg.Conversion.Timeout)
		g.convertTo = cfg.Conversion.Format
	}

	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logging.Component("generator"))

	return g, nil
}

// State reports the current state.
func (g *Generator) State() types.RunState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close releases the binder's resources. The Generator must not be used
// afterwards.
func (g *Generator) Close() error {
	if c, ok := g.binder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Cancel asks the running request to stop at the next row boundary. It is
// idempotent and safe to call from any goroutine.
func (g *Generator) Cancel() {
	g.cancelled.Store(true)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// run holds the per-request state.
type run struct {
	req      types.GenerationRequest
	template []byte
	outcome  types.Outcome
	logger   *slog.Logger
	start    time.Time
}

// Submit executes a request and blocks until it ends.
//
// RETURNS:
//   - The Outcome. It is filled in for every terminal state.
//   - nil for Completed and Cancelled runs, the fatal error for Fatal runs,
//     or types.ErrRunInProgress if another request is running.
//
// PROCESSING STEPS:
//   1. Read the template and the datasheet
//   2. Check the template once
//   3. Process every row
//   4. Emit the final ProgressEvent
func (g *Generator) Submit(ctx context.Context, req types.GenerationRequest) (types.Outcome, error) {
	g.mu.Lock()
	if g.state == types.StateRunning {
		g.mu.Unlock()
		return types.Outcome{State: types.StateRunning}, types.ErrRunInProgress
	}
	g.state = types.StateRunning
	g.cancelled.Store(false)
	g.mu.Unlock()

	r := &run{
		req:     req,
		outcome: types.Outcome{RunID: uuid.NewString()},
		start:   time.Now(),
	}
	r.logger = g.logger.With(logging.RunID(r.outcome.RunID))
	g.writer.Reset()

	// =========================================================================
	// STEP 1: READ INPUTS
	// =========================================================================
	// Nothing has been emitted yet: an unreadable input ends the run before
	// it starts.

	r.logger.Info("Starting generation",
		logging.Path(req.TemplatePath),
		slog.String("datasheet", req.DatasheetPath),
		slog.String("suffix", req.OutputSuffix))

	template, err := os.ReadFile(req.TemplatePath)
	if err != nil {
		return g.fatal(r, &types.UnreadableInputError{Path: req.TemplatePath, Err: err})
	}
	r.template = template

	rows, err := ReadDatasheet(req.DatasheetPath, g.cfg.CSVSettings)
	if err != nil {
		return g.fatal(r, err)
	}
	r.outcome.Total = len(rows)

	// =========================================================================
	// STEP 2: CHECK THE TEMPLATE
	// =========================================================================
	// A malformed template is a property of the template, not of a row.
	// Finding it here means a broken template produces zero output files.

	if p, ok := g.binder.(Preparer); ok {
		if err := p.Prepare(template); err != nil {
			return g.fatal(r, fixTemplatePath(err, req.TemplatePath))
		}
	}

	g.recorder.RunStarted(r.outcome.Total)
	r.logger.Debug("Datasheet loaded", slog.Int("rows", r.outcome.Total))

	// =========================================================================
	// STEP 3: PROCESS ROWS
	// =========================================================================

	for _, row := range rows {
		if g.shouldStop(ctx) {
			r.logger.Info("Generation cancelled", slog.Int("processed", r.outcome.Processed))
			g.emit(r)
			return g.finish(r, types.StateCancelled), nil
		}

		if err := g.processRow(ctx, r, row); err != nil {
			return g.fatal(r, err)
		}

		r.outcome.Processed++
		g.emit(r)
	}

	// =========================================================================
	// STEP 4: COMPLETE
	// =========================================================================

	g.emit(r)
	outcome := g.finish(r, types.StateCompleted)

	r.logger.Info("Generation complete",
		slog.Int("total", outcome.Total),
		slog.Int("success", outcome.Success),
		slog.Int("errors", outcome.Errors),
		slog.Int("skipped", outcome.Skipped),
		slog.Int("conversion_failures", outcome.ConversionFailures),
		logging.DurationMS(outcome.Duration.Milliseconds()))

	return outcome, nil
}

// processRow handles one row. Row-local failures are counted and swallowed;
// only fatal errors are returned.
func (g *Generator) processRow(ctx context.Context, r *run, row types.Row) error {
	rowStart := time.Now()
	fields := g.mapping.Derive(row)
	key := fields[g.cfg.PrimaryKey]
	logger := r.logger.With(logging.Row(row.Number), logging.Key(key))

	// Incomplete rows never reach the binder.
	if skip := g.validator.Check(row, fields); skip != nil {
		r.outcome.Skipped++
		r.issue(row.Number, key, types.IssueSkipped, skip.Error())
		if row.IsBlank() {
			logger.Debug("Skipping blank row")
		} else {
			logger.Warn("Skipping row with missing data", logging.Missing(skip.Missing))
		}
		g.recorder.RowFinished(ResultSkipped, time.Since(rowStart))
		return nil
	}

	doc, err := g.binder.Bind(r.template, fields)
	if err != nil {
		if types.IsFatal(err) {
			return fixTemplatePath(err, r.req.TemplatePath)
		}
		err = rowRenderError(row.Number, err)
		g.rowError(r, logger, row.Number, key, "Failed to render row", err, rowStart)
		return nil
	}

	base := utils.Name(fields[g.cfg.PrimaryKey], fields[g.cfg.SecondaryKey], r.req.OutputSuffix)
	name, collided, err := g.writer.Reserve(base)
	if err != nil {
		g.rowError(r, logger, row.Number, key, "Output name already used in this run", err, rowStart)
		return nil
	}
	if collided {
		if name == base {
			logger.Warn("Overwriting output generated earlier in this run", logging.File(base))
		} else {
			logger.Info("Output name already used in this run, numbering", logging.File(name))
		}
	}

	path, err := g.writer.Write(name+"."+PrimaryExt, doc)
	if err != nil {
		g.rowError(r, logger, row.Number, key, "Failed to write document", err, rowStart)
		return nil
	}
	r.outcome.Success++
	r.outcome.Outputs = append(r.outcome.Outputs, path)
	logger.Debug("Wrote document", logging.Path(path))

	g.convert(ctx, r, logger, row, key, name, doc)

	g.recorder.RowFinished(ResultSuccess, time.Since(rowStart))
	return nil
}

// convert produces the secondary output. Failures are logged and counted,
// never returned.
func (g *Generator) convert(ctx context.Context, r *run, logger *slog.Logger, row types.Row, key, name string, doc []byte) {
	if g.convertTo == "" {
		return
	}

	converted, err := g.converter.Convert(ctx, doc, g.convertTo)
	if errors.Is(err, types.ErrConversionDisabled) {
		return
	}
	if err == nil {
		var path string
		path, err = g.writer.Write(name+"."+g.convertTo, converted)
		if err == nil {
			r.outcome.Outputs = append(r.outcome.Outputs, path)
			logger.Debug("Wrote converted document", logging.Path(path))
			return
		}
	}

	convErr := &types.ConversionError{Row: row.Number, Format: g.convertTo, Err: err}
	var ce *types.ConversionError
	if errors.As(err, &ce) {
		convErr.Err = ce.Err
	}

	r.outcome.ConversionFailures++
	r.issue(row.Number, key, types.IssueConversion, convErr.Error())
	logger.Warn("Conversion failed, keeping the document", logging.Format(g.convertTo), logging.Err(convErr))
	g.recorder.ConversionFailed()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (g *Generator) shouldStop(ctx context.Context) bool {
	return g.cancelled.Load() || ctx.Err() != nil
}

func (g *Generator) emit(r *run) {
	if g.sink == nil {
		return
	}
	g.sink.Progress(types.ProgressEvent{Current: r.outcome.Processed, Total: r.outcome.Total})
}

func (g *Generator) rowError(r *run, logger *slog.Logger, row int, key, msg string, err error, start time.Time) {
	r.outcome.Errors++
	r.issue(row, key, types.IssueError, err.Error())
	logger.Error(msg, logging.Err(err))
	g.recorder.RowFinished(ResultError, time.Since(start))
}

func (r *run) issue(row int, key, kind, message string) {
	r.outcome.Issues = append(r.outcome.Issues, types.RowIssue{Row: row, Key: key, Kind: kind, Message: message})
}

// finish moves the generator to a terminal state and seals the outcome.
func (g *Generator) finish(r *run, state types.RunState) types.Outcome {
	r.outcome.State = state
	r.outcome.Duration = time.Since(r.start)

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	g.recorder.RunFinished(state, r.outcome.Duration)
	return r.outcome
}

// fatal ends the run without a final progress event. Files written before
// the failure move to PartialOutputs; a Fatal run reports no successes.
func (g *Generator) fatal(r *run, err error) (types.Outcome, error) {
	var format *types.TemplateFormatError
	if errors.As(err, &format) {
		if format.Example == "" && len(g.cfg.Columns) > 0 {
			format.Example = g.cfg.Columns[0].Field
		}
		r.logger.Error("Template is malformed, generation aborted", logging.Err(err))
		r.logger.Error(format.Hint())
	} else {
		r.logger.Error("Generation failed", logging.Err(err))
	}

	if len(r.outcome.Outputs) > 0 {
		r.logger.Warn("Files written before the failure are not results",
			slog.Int("files", len(r.outcome.Outputs)))
	}
	r.outcome.PartialOutputs = r.outcome.Outputs
	r.outcome.Outputs = nil
	r.outcome.Success = 0

	return g.finish(r, types.StateFatal), err
}

// fixTemplatePath replaces the binder's generic "template" label with the
// template's path.
func fixTemplatePath(err error, path string) error {
	var unreadable *types.UnreadableInputError
	if errors.As(err, &unreadable) {
		return &types.UnreadableInputError{Path: path, Err: unreadable.Err}
	}
	return err
}

func rowRenderError(row int, err error) error {
	var render *types.RenderError
	if errors.As(err, &render) {
		return &types.RenderError{Row: row, Err: render.Err}
	}
	return &types.RenderError{Row: row, Err: err}
}
