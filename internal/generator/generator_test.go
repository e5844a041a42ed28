package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/logging"
	"github.com/ginjaninja78/docx-mail-merge/internal/testutil"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// spyBinder records every call and fails for configured primary keys.
type spyBinder struct {
	mu      sync.Mutex
	calls   []types.FieldSet
	failFor map[string]error
	onBind  func(call int)
}

func (b *spyBinder) Bind(_ []byte, fields types.FieldSet) ([]byte, error) {
	b.mu.Lock()
	b.calls = append(b.calls, fields)
	n := len(b.calls)
	b.mu.Unlock()

	if b.onBind != nil {
		b.onBind(n)
	}
	if err, ok := b.failFor[fields["CompanyNumber"]]; ok {
		return nil, err
	}
	return []byte("doc:" + fields["CompanyNumber"]), nil
}

func (b *spyBinder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// fakeConverter prefixes the document, or fails when err is set.
type fakeConverter struct {
	err   error
	calls int
}

func (c *fakeConverter) Convert(_ context.Context, doc []byte, ext string) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return append([]byte(ext+":"), doc...), nil
}

// progressLog collects progress events.
type progressLog struct {
	events []types.ProgressEvent
}

func (p *progressLog) Progress(e types.ProgressEvent) { p.events = append(p.events, e) }

// deduped drops consecutive duplicates: callers must tolerate a repeated
// terminal event.
func (p *progressLog) deduped() []types.ProgressEvent {
	var out []types.ProgressEvent
	for _, e := range p.events {
		if len(out) > 0 && out[len(out)-1] == e {
			continue
		}
		out = append(out, e)
	}
	return out
}

// =============================================================================
// FIXTURES
// =============================================================================

type fixture struct {
	dir       string
	outputDir string
	cfg       *config.Config
	template  string
	progress  *progressLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(dir, "output")

	return &fixture{
		dir:       dir,
		outputDir: cfg.OutputDir,
		cfg:       cfg,
		template: testutil.WriteDocx(t, dir, "letter.docx", testutil.DocumentXML(
			testutil.Paragraph("Dear {{CompanyHeader}}"),
			testutil.Paragraph("Ref {{CompanyNumber}}/{{CompanyInitial}} due {{DueDate}}"),
			testutil.Paragraph("{{Address}}"),
		)),
		progress: &progressLog{},
	}
}

func (f *fixture) sheet(t *testing.T, rows ...[]any) string {
	t.Helper()
	return testutil.WriteSheet(t, f.dir, "companies.xlsx", testutil.CompanySheet(rows...))
}

func (f *fixture) generator(t *testing.T, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithProgress(f.progress), WithLogger(logging.Discard())}, opts...)
	g, err := New(f.cfg, opts...)
	require.NoError(t, err)
	return g
}

func (f *fixture) outputs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.outputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func row(header, number, initial, due, address string) []any {
	return []any{header, number, initial, due, address}
}

func threeRows() [][]any {
	return [][]any{
		row("Acme Ltd", "C-001", "AC", "1/3/2025", "1 Main Road"),
		row("Beta plc", "C-002", "BP", "", "2 High Street"),
		row("Xylo Inc", "C-003", "XY", "5/3/2025", "3 Low Lane"),
	}
}

// =============================================================================
// TESTS
// =============================================================================

func TestSubmitConcreteScenario(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	g := f.generator(t, WithConverter(&fakeConverter{}))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{
		TemplatePath:  f.template,
		DatasheetPath: sheet,
		OutputSuffix:  "_Reminder",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StateCompleted, outcome.State)
	assert.Equal(t, 3, outcome.Total)
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 0, outcome.Errors)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Equal(t, 0, outcome.ConversionFailures)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, types.StateCompleted, g.State())

	want := []types.ProgressEvent{{Current: 1, Total: 3}, {Current: 2, Total: 3}, {Current: 3, Total: 3}}
	if diff := cmp.Diff(want, f.progress.deduped()); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.ProgressEvent{Current: 3, Total: 3}, f.progress.events[len(f.progress.events)-1])

	assert.Equal(t, []string{
		"C-001_AC_Reminder.docx",
		"C-001_AC_Reminder.pdf",
		"C-003_XY_Reminder.docx",
		"C-003_XY_Reminder.pdf",
	}, f.outputs(t))

	doc, err := os.ReadFile(filepath.Join(f.outputDir, "C-001_AC_Reminder.docx"))
	require.NoError(t, err)
	assert.Equal(t, "Dear Acme Ltd\nRef C-001/AC due 1/3/2025\n1 Main Road\n", testutil.DocumentText(t, doc))

	require.Len(t, outcome.Issues, 1)
	assert.Equal(t, types.RowIssue{
		Row: 3, Key: "C-002", Kind: types.IssueSkipped,
		Message: "row 3 (C-002) is missing DueDate",
	}, outcome.Issues[0])
}

func TestSubmitCountsSumToTotal(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t,
		row("A", "C-1", "A", "d", "a"),
		row("B", "C-2", "B", "d", "a"),
		row("", "C-3", "C", "d", "a"),
		row("D", "C-4", "D", "d", "a"),
		row("", "", "", "", ""),
		row("F", "C-6", "F", "d", "a"),
	)
	binder := &spyBinder{failFor: map[string]error{
		"C-2": &types.RenderError{Err: errors.New("engine fault")},
		"C-4": errors.New("unexpected"),
	}}
	f.cfg.Conversion.Enabled = new(bool)
	g := f.generator(t, WithBinder(binder))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)

	assert.Equal(t, types.StateCompleted, outcome.State)
	assert.Equal(t, 6, outcome.Total)
	assert.Equal(t, outcome.Total, outcome.Success+outcome.Errors+outcome.Skipped)
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 2, outcome.Errors)
	assert.Equal(t, 2, outcome.Skipped)

	// Incomplete rows never reach the binder.
	assert.Equal(t, outcome.Total-outcome.Skipped, binder.count())
	for _, call := range binder.calls {
		assert.NotEmpty(t, call["CompanyHeader"])
	}

	var renderErrs []string
	for _, issue := range outcome.Issues {
		if issue.Kind == types.IssueError {
			renderErrs = append(renderErrs, issue.Message)
		}
	}
	assert.Equal(t, []string{"render row 3: engine fault", "render row 5: unexpected"}, renderErrs)
	assert.Equal(t, []string{"C-1_A.docx", "C-6_F.docx"}, f.outputs(t))
}

func TestSubmitCancelledBeforeFirstRow(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	binder := &spyBinder{}
	g := f.generator(t, WithBinder(binder))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := g.Submit(ctx, types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)

	assert.Equal(t, types.StateCancelled, outcome.State)
	assert.Equal(t, 0, outcome.Processed)
	assert.Equal(t, 0, binder.count())
	assert.Equal(t, []types.ProgressEvent{{Current: 0, Total: 3}}, f.progress.events)
	assert.NoDirExists(t, f.outputDir)
}

func TestSubmitCancelledAfterRowK(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	binder := &spyBinder{}
	f.cfg.Conversion.Enabled = new(bool)

	var g *Generator
	sink := ProgressFunc(func(e types.ProgressEvent) {
		f.progress.Progress(e)
		if e.Current == 1 {
			g.Cancel()
			g.Cancel()
		}
	})
	g = f.generator(t, WithBinder(binder), WithProgress(sink))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)

	assert.Equal(t, types.StateCancelled, outcome.State)
	assert.Equal(t, 1, outcome.Processed)
	assert.Equal(t, 1, binder.count())
	assert.Equal(t, []types.ProgressEvent{{Current: 1, Total: 3}, {Current: 1, Total: 3}}, f.progress.events)
	assert.Equal(t, []string{"C-001_AC.docx"}, f.outputs(t))
}

func TestSubmitCancelDuringRowFinishesThatRow(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	f.cfg.Conversion.Enabled = new(bool)

	var g *Generator
	binder := &spyBinder{onBind: func(int) { g.Cancel() }}
	g = f.generator(t, WithBinder(binder))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)

	assert.Equal(t, types.StateCancelled, outcome.State)
	assert.Equal(t, 1, outcome.Processed)
	assert.Equal(t, 1, outcome.Success)
	assert.Equal(t, []string{"C-001_AC.docx"}, f.outputs(t))
}

func TestSubmitTemplateFormatErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	var rows [][]any
	for i := 1; i <= 10; i++ {
		rows = append(rows, row("Co", fmt.Sprintf("C-%02d", i), "X", "d", "a"))
	}
	sheet := f.sheet(t, rows...)
	broken := testutil.WriteDocx(t, f.dir, "broken.docx", testutil.DocumentXML(
		testutil.Paragraph("Dear {{Company", "Header"),
	))
	conv := &fakeConverter{}
	g := f.generator(t, WithConverter(conv))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: broken, DatasheetPath: sheet})

	var format *types.TemplateFormatError
	require.ErrorAs(t, err, &format)
	assert.Equal(t, types.StateFatal, outcome.State)
	assert.Equal(t, types.StateFatal, g.State())
	assert.Equal(t, 0, outcome.Success)
	assert.Equal(t, "CompanyHeader", format.Example)
	assert.Contains(t, format.Hint(), "{{CompanyHeader}}")
	assert.Empty(t, f.progress.events)
	assert.Empty(t, f.outputs(t))
	assert.NoDirExists(t, f.outputDir)
	assert.Equal(t, 0, conv.calls)
}

func TestSubmitTemplateFormatErrorFromBinderMidRun(t *testing.T) {
	f := newFixture(t)
	f.cfg.Conversion.Enabled = new(bool)
	sheet := f.sheet(t,
		row("A", "C-1", "A", "d", "a"),
		row("B", "C-2", "B", "d", "a"),
		row("C", "C-3", "C", "d", "a"),
		row("D", "C-4", "D", "d", "a"),
	)
	binder := &spyBinder{failFor: map[string]error{
		"C-3": &types.TemplateFormatError{Part: "word/document.xml", Reason: "unclosed placeholder"},
	}}
	g := f.generator(t, WithBinder(binder))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	assert.True(t, types.IsFatal(err))
	assert.Equal(t, types.StateFatal, outcome.State)
	assert.Equal(t, 3, binder.count(), "no rows after the fatal one")

	// Files from earlier rows stay on disk but are not reported as results.
	assert.Equal(t, 0, outcome.Success)
	assert.Empty(t, outcome.Outputs)
	assert.Equal(t, []string{
		filepath.Join(f.outputDir, "C-1_A.docx"),
		filepath.Join(f.outputDir, "C-2_B.docx"),
	}, outcome.PartialOutputs)
	assert.Equal(t, []string{"C-1_A.docx", "C-2_B.docx"}, f.outputs(t))

	// No final event after a fatal row.
	assert.Equal(t, []types.ProgressEvent{{Current: 1, Total: 4}, {Current: 2, Total: 4}}, f.progress.events)
}

// closingBinder is a spyBinder that records Close.
type closingBinder struct {
	spyBinder
	closed int
}

func (b *closingBinder) Close() error {
	b.closed++
	return nil
}

func TestCloseReleasesBinder(t *testing.T) {
	f := newFixture(t)

	binder := &closingBinder{}
	require.NoError(t, f.generator(t, WithBinder(binder)).Close())
	assert.Equal(t, 1, binder.closed)

	// Binders without Close are left alone.
	assert.NoError(t, f.generator(t, WithBinder(&spyBinder{})).Close())

	f.cfg.Conversion.Enabled = new(bool)
	g := f.generator(t)
	sheet := f.sheet(t, threeRows()...)
	_, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)
	assert.NoError(t, g.Close())
}

func TestSubmitUnreadableInput(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	notes := filepath.Join(f.dir, "notes.pdf")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0644))
	notDocx := filepath.Join(f.dir, "letter-copy.docx")
	require.NoError(t, os.WriteFile(notDocx, []byte("plain text"), 0644))

	tests := []struct {
		name string
		req  types.GenerationRequest
		path string
	}{
		{"missing template", types.GenerationRequest{TemplatePath: filepath.Join(f.dir, "nope.docx"), DatasheetPath: sheet}, "nope.docx"},
		{"template not a docx", types.GenerationRequest{TemplatePath: notDocx, DatasheetPath: sheet}, "letter-copy.docx"},
		{"missing datasheet", types.GenerationRequest{TemplatePath: f.template, DatasheetPath: filepath.Join(f.dir, "nope.xlsx")}, "nope.xlsx"},
		{"unsupported datasheet", types.GenerationRequest{TemplatePath: f.template, DatasheetPath: notes}, "notes.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.progress.events = nil
			g := f.generator(t)

			outcome, err := g.Submit(context.Background(), tt.req)
			var unreadable *types.UnreadableInputError
			require.ErrorAs(t, err, &unreadable)
			assert.Contains(t, unreadable.Path, tt.path)
			assert.Equal(t, types.StateFatal, outcome.State)
			assert.Empty(t, f.progress.events)
			assert.NoDirExists(t, f.outputDir)
		})
	}
}

func TestSubmitRejectsReentry(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	f.cfg.Conversion.Enabled = new(bool)

	var g *Generator
	var nested error
	binder := &spyBinder{onBind: func(call int) {
		if call == 1 {
			_, nested = g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
			assert.Equal(t, types.StateRunning, g.State())
		}
	}}
	g = f.generator(t, WithBinder(binder))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)
	assert.ErrorIs(t, nested, types.ErrRunInProgress)
	assert.Equal(t, types.StateCompleted, outcome.State)
	assert.Equal(t, 2, binder.count())

	// A finished generator accepts the next request with fresh counters.
	second, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Success)
	assert.NotEqual(t, outcome.RunID, second.RunID)
}

func TestSubmitConversionFailureIsSecondary(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t, threeRows()...)
	conv := &fakeConverter{err: &types.ConversionError{Format: "pdf", Err: errors.New("soffice crashed")}}
	g := f.generator(t, WithConverter(conv))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)

	assert.Equal(t, types.StateCompleted, outcome.State)
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 0, outcome.Errors)
	assert.Equal(t, 2, outcome.ConversionFailures)
	assert.Equal(t, 2, conv.calls)
	assert.Equal(t, []string{"C-001_AC.docx", "C-003_XY.docx"}, f.outputs(t))

	var messages []string
	for _, issue := range outcome.Issues {
		if issue.Kind == types.IssueConversion {
			messages = append(messages, issue.Message)
		}
	}
	assert.Equal(t, []string{
		"convert row 2 to pdf: soffice crashed",
		"convert row 4 to pdf: soffice crashed",
	}, messages)
}

func TestSubmitCollisionPolicies(t *testing.T) {
	twins := [][]any{
		row("Acme", "C-001", "AC", "d", "a"),
		row("Acme Two", "C-001", "AC", "d", "a"),
	}

	t.Run("number", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Conversion.Enabled = new(bool)
		g := f.generator(t)

		outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: f.sheet(t, twins...)})
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.Success)
		assert.Equal(t, []string{"C-001_AC.docx", "C-001_AC_2.docx"}, f.outputs(t))
	})

	t.Run("overwrite", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Conversion.Enabled = new(bool)
		f.cfg.Collision = "overwrite"
		g := f.generator(t)

		outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: f.sheet(t, twins...)})
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.Success)
		assert.Equal(t, []string{"C-001_AC.docx"}, f.outputs(t))

		doc, err := os.ReadFile(filepath.Join(f.outputDir, "C-001_AC.docx"))
		require.NoError(t, err)
		assert.Contains(t, testutil.DocumentText(t, doc), "Dear Acme Two")
	})

	t.Run("error", func(t *testing.T) {
		f := newFixture(t)
		f.cfg.Conversion.Enabled = new(bool)
		f.cfg.Collision = "error"
		g := f.generator(t)

		outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: f.sheet(t, twins...)})
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Success)
		assert.Equal(t, 1, outcome.Errors)
		assert.Equal(t, []string{"C-001_AC.docx"}, f.outputs(t))
	})
}

func TestSubmitEmptyDatasheet(t *testing.T) {
	f := newFixture(t)
	sheet := f.sheet(t)
	g := f.generator(t)

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)
	assert.Equal(t, types.StateCompleted, outcome.State)
	assert.Equal(t, 0, outcome.Total)
	assert.Equal(t, []types.ProgressEvent{{Current: 0, Total: 0}}, f.progress.events)
	assert.NoDirExists(t, f.outputDir)
}

func TestSubmitCSVDatasheet(t *testing.T) {
	f := newFixture(t)
	f.cfg.Conversion.Enabled = new(bool)
	csvPath := filepath.Join(f.dir, "companies.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"CompanyHeader,CompanyNumber,CompanyInitial,DueDate,Address\n"+
			"Acme Ltd,C-001,AC,1/3/2025,\"1 Main Road\"\n"), 0644))
	g := f.generator(t)

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: csvPath, OutputSuffix: "-x"})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Success)
	assert.Equal(t, []string{"C-001_AC-x.docx"}, f.outputs(t))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.PrimaryKey = "Nope"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSubmitBlankRowsAreNotWarnings(t *testing.T) {
	f := newFixture(t)
	f.cfg.Conversion.Enabled = new(bool)
	sheet := f.sheet(t,
		row("A", "C-1", "A", "d", "a"),
		row("", "", "", "", ""),
		row("", "C-3", "C", "d", "a"),
	)

	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Level: "warn", Out: &buf})
	require.NoError(t, err)
	g := f.generator(t, WithBinder(&spyBinder{}), WithLogger(logger))

	outcome, err := g.Submit(context.Background(), types.GenerationRequest{TemplatePath: f.template, DatasheetPath: sheet})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Skipped)
	assert.Equal(t, 1, strings.Count(buf.String(), "Skipping row with missing data"))
	assert.Contains(t, buf.String(), "row=4")
}
