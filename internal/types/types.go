// =============================================================================
// DOCX Mail Merge - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - xlsxparser / csvparser (Row)
//   - fieldmap and validation (FieldSet)
//   - generator (GenerationRequest, Outcome, ProgressEvent)
//   - preview (PreviewResult)
//
// =============================================================================

package types

import (
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// INPUT TYPES
// =============================================================================

// GenerationRequest is the immutable input to one generation run.
type GenerationRequest struct {
	// TemplatePath is the path to the .docx template document.
	TemplatePath string

	// DatasheetPath is the path to the spreadsheet (.xlsx or .csv).
	DatasheetPath string

	// OutputSuffix is appended to every generated file name, before the extension.
	OutputSuffix string
}

// =============================================================================
// ROW TYPES
// =============================================================================

// Row is one data line of the datasheet. The header line is never a Row.
type Row struct {
	// Number is the 1-based row number in the source sheet.
	// Useful for error reporting: the user can jump straight to it.
	Number int

	// Cells holds the trimmed display text of each cell, ordered by column
	// position (index 0 is column A).
	Cells []string
}

// CellAt returns the cell at the 0-based column index, or "" if the row is
// shorter than that.
func (r Row) CellAt(index int) string {
	if index < 0 || index >= len(r.Cells) {
		return ""
	}
	return r.Cells[index]
}

// Cell returns the cell for a column letter such as "A" or "AB".
// Unknown column names read as "".
func (r Row) Cell(column string) string {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(column))
	if err != nil {
		return ""
	}
	return r.CellAt(n - 1)
}

// IsBlank reports whether every cell of the row is empty.
func (r Row) IsBlank() bool {
	for _, c := range r.Cells {
		if c != "" {
			return false
		}
	}
	return true
}

// FieldSet maps a template variable name to its string value.
type FieldSet map[string]string

// =============================================================================
// RUN STATE
// =============================================================================

// RunState is the state of the generation orchestrator.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFatal
)

// String returns the lower-case name of the state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// =============================================================================
// OUTPUT TYPES
// =============================================================================

// ProgressEvent is emitted after every processed row and once more when the
// run ends. Total never changes within a run.
type ProgressEvent struct {
	Current int
	Total   int
}

// Outcome is the accumulated result of one run. It is a value: once Submit
// returns, nothing mutates it.
type Outcome struct {
	// RunID identifies the run in logs and metrics.
	RunID string

	// State is the terminal state of the run.
	State RunState

	// Total is the number of data rows (rows after the header).
	Total int

	// Processed is the number of rows handled before the run ended.
	Processed int

	// Success counts rows whose primary document was written. A Fatal run
	// has no successes.
	Success int

	// Errors counts rows that failed to bind or write.
	Errors int

	// Skipped counts rows that were missing a required field.
	Skipped int

	// ConversionFailures counts rows whose primary output was written but
	// whose secondary (PDF) conversion failed.
	ConversionFailures int

	// Outputs lists every file written, in the order written. Empty for a
	// Fatal run.
	Outputs []string

	// PartialOutputs lists the files a Fatal run wrote before it aborted.
	// They are left on disk but are not results.
	PartialOutputs []string

	// Issues describes every skipped, failed or partially converted row.
	Issues []RowIssue

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Issue kinds.
const (
	IssueSkipped    = "skipped"
	IssueError      = "error"
	IssueConversion = "conversion"
)

// RowIssue is one row that did not produce every expected output.
type RowIssue struct {
	Row     int
	Key     string
	Kind    string
	Message string
}

// PreviewResult is the advisory view of a template and a datasheet.
type PreviewResult struct {
	// TemplateVariables are the placeholder names found in the template,
	// in order of first appearance.
	TemplateVariables []string

	// DatasheetColumns are the header cells of the sheet, positionally.
	DatasheetColumns []string

	// MissingColumns are template variables that no column mapping provides.
	MissingColumns []string

	// UnusedColumns are mapped fields that the template never references.
	UnusedColumns []string

	// TemplateProblems describes malformed placeholders found while scanning.
	TemplateProblems []string
}
