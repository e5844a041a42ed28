package types

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================
//
//   UnreadableInputError  fatal, raised before the run starts
//   TemplateFormatError   fatal, aborts the run
//   RenderError           row-local, counted as an error
//   ConversionError       row-local, secondary output only
//   CollisionError        row-local, only with the "error" collision policy
//   IncompleteRowError    not a failure: describes a skipped row
//
// =============================================================================

// ErrRunInProgress is returned by Submit when a run is already active.
var ErrRunInProgress = errors.New("a generation run is already in progress")

// ErrConversionDisabled is returned by the no-op converter.
var ErrConversionDisabled = errors.New("format conversion is disabled")

// UnreadableInputError means a template or datasheet could not be opened or parsed.
type UnreadableInputError struct {
	Path string
	Err  error
}

func (e *UnreadableInputError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *UnreadableInputError) Unwrap() error { return e.Err }

// TemplateFormatError means the template markup is broken such that
// placeholders cannot be substituted. It is a property of the template, not
// of any row.
type TemplateFormatError struct {
	// Part is the document part where the problem was found, e.g. word/document.xml.
	Part string

	// Excerpt is the paragraph text around the problem.
	Excerpt string

	// Reason describes what is wrong.
	Reason string

	// Example is a variable name shown in the hint. Defaults to CompanyHeader.
	Example string
}

func (e *TemplateFormatError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("template format error in %s: %s", e.Part, e.Reason)
	}
	return fmt.Sprintf("template format error in %s: %s near %q", e.Part, e.Reason, e.Excerpt)
}

// Hint returns remediation steps for the user.
func (e *TemplateFormatError) Hint() string {
	example := e.Example
	if example == "" {
		example = "CompanyHeader"
	}
	return strings.Join([]string{
		"Your Word document has formatting issues that break the template variables.",
		"To fix:",
		"  1. Open the template in Microsoft Word",
		"  2. Select all text (Ctrl+A)",
		"  3. Remove formatting (Ctrl+Shift+N)",
		"  4. Make sure variables like {{" + example + "}} are typed fresh",
		"  5. Save and try again",
	}, "\n")
}

// RenderError is a per-row binder failure not attributable to the template.
type RenderError struct {
	Row int
	Err error
}

func (e *RenderError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("render row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ConversionError is a failed secondary-format conversion. The primary output
// was already written when this happens.
type ConversionError struct {
	Row    int
	Format string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert row %d to %s: %v", e.Row, e.Format, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CollisionError is raised when two rows of the same run resolve to the same
// output file name and the collision policy forbids it.
type CollisionError struct {
	Name string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("output file %s was already generated in this run", e.Name)
}

// IncompleteRowError describes a row skipped for missing required data.
type IncompleteRowError struct {
	Row     int
	Key     string
	Missing []string
}

func (e *IncompleteRowError) Error() string {
	return fmt.Sprintf("row %d (%s) is missing %s", e.Row, e.Key, strings.Join(e.Missing, ", "))
}

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	var unreadable *UnreadableInputError
	var format *TemplateFormatError
	return errors.As(err, &unreadable) || errors.As(err, &format)
}
