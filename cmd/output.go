// =============================================================================
// DOCX Mail Merge - Terminal Output
// =============================================================================
//
// Styled terminal output shared by the commands. Everything goes through the
// command's writer so tests can capture it.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func printSuccess(w io.Writer, msg string) { fmt.Fprintln(w, successStyle.Render("✓ "+msg)) }
func printError(w io.Writer, msg string)   { fmt.Fprintln(w, errorStyle.Render("✗ "+msg)) }
func printWarn(w io.Writer, msg string)    { fmt.Fprintln(w, warnStyle.Render("! "+msg)) }
func printInfo(w io.Writer, msg string)    { fmt.Fprintln(w, infoStyle.Render(msg)) }
func printStep(w io.Writer, msg string)    { fmt.Fprintln(w, stepStyle.Render("   "+msg)) }
func printTitle(w io.Writer, msg string)   { fmt.Fprintln(w, titleStyle.Render(msg)) }

// =============================================================================
// PROGRESS BAR
// =============================================================================

// progressBar renders progress events on one line, redrawn in place.
type progressBar struct {
	w     io.Writer
	width int
	last  types.ProgressEvent
	drawn bool
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, width: 30}
}

// Progress implements generator.ProgressSink. A repeated terminal event is
// ignored.
func (p *progressBar) Progress(e types.ProgressEvent) {
	if p.drawn && e == p.last {
		return
	}
	p.last, p.drawn = e, true
	fmt.Fprint(p.w, "\r"+renderBar(e, p.width))
}

// Finish ends the progress line.
func (p *progressBar) Finish() {
	if p.drawn {
		fmt.Fprintln(p.w)
	}
}

// renderBar draws "[=====     ] 2/4" for an event.
func renderBar(e types.ProgressEvent, width int) string {
	filled := width
	if e.Total > 0 {
		filled = e.Current * width / e.Total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
	return barStyle.Render("["+bar+"]") + fmt.Sprintf(" %d/%d", e.Current, e.Total)
}

// =============================================================================
// SUMMARY
// =============================================================================

// printOutcome prints the end-of-run summary.
func printOutcome(w io.Writer, o types.Outcome) {
	switch o.State {
	case types.StateCompleted:
		printSuccess(w, fmt.Sprintf("Generation complete: %d of %d rows generated", o.Success, o.Total))
	case types.StateCancelled:
		printWarn(w, fmt.Sprintf("Generation cancelled after %d of %d rows", o.Processed, o.Total))
	default:
		printError(w, "Generation failed")
	}

	// A failed run generated nothing usable, so it has no Generated column.
	headers := []string{"Errors", "Skipped", "Conversion failures", "Time"}
	cells := []string{
		fmt.Sprint(o.Errors),
		fmt.Sprint(o.Skipped),
		fmt.Sprint(o.ConversionFailures),
		o.Duration.Round(time.Millisecond).String(),
	}
	if o.State != types.StateFatal {
		headers = append([]string{"Generated"}, headers...)
		cells = append([]string{fmt.Sprint(o.Success)}, cells...)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Row(cells...)
	fmt.Fprintln(w, t.Render())

	if n := len(o.PartialOutputs); n > 0 {
		printWarn(w, fmt.Sprintf("%d file(s) written before the failure are incomplete results; check or delete them:", n))
		for _, path := range o.PartialOutputs {
			printStep(w, path)
		}
	}

	for _, issue := range o.Issues {
		printStep(w, fmt.Sprintf("row %d [%s] %s", issue.Row, issue.Kind, issue.Message))
	}
}

// printPreview prints a preview result.
func printPreview(w io.Writer, r types.PreviewResult) {
	printTitle(w, "Template variables")
	fmt.Fprintln(w, listTable("Variable", r.TemplateVariables))

	printTitle(w, "Datasheet columns")
	columns := make([]string, len(r.DatasheetColumns))
	for i, c := range r.DatasheetColumns {
		letter, _ := excelize.ColumnNumberToName(i + 1)
		columns[i] = letter + "  " + c
	}
	fmt.Fprintln(w, listTable("Column", columns))

	for _, v := range r.MissingColumns {
		printWarn(w, "No column is mapped to {{"+v+"}}; it will render empty")
	}
	for _, f := range r.UnusedColumns {
		printInfo(w, "Mapped field "+f+" is not used by the template")
	}
	for _, p := range r.TemplateProblems {
		printError(w, p)
	}
}

func listTable(header string, values []string) string {
	t := table.New().Border(lipgloss.RoundedBorder()).Headers("#", header)
	for i, v := range values {
		t.Row(fmt.Sprint(i+1), v)
	}
	return t.Render()
}
