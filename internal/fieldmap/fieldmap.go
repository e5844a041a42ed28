// =============================================================================
// DOCX Mail Merge - Field Mapping
// =============================================================================
//
// This module turns a datasheet Row into the FieldSet handed to the template
// binder. The mapping is data, not code: an ordered list of
//
//   (column, field, required, transforms)
//
// entries from the configuration file. Changing the sheet layout never
// touches the generator.
//
// TRANSFORMATIONS:
//   Each entry may carry transformation actions (uppercase, pad zeros,
//   lookup, ...). They run in order on the trimmed cell text. Empty cells are
//   never transformed, so a prefix cannot make a missing value look present.
//
// =============================================================================

package fieldmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// =============================================================================
// MAPPING
// =============================================================================

// Mapping is a compiled column mapping. It is immutable and safe for
// concurrent use.
type Mapping struct {
	entries []entry
}

type entry struct {
	column   string
	field    string
	required bool
	steps    []step
}

// step is one compiled transformation.
type step func(string) string

// New compiles the column mapping list.
//
// RETURNS:
//   - The compiled Mapping.
//   - An error if a transformation cannot be compiled (bad regex, bad length).
func New(columns []config.ColumnMapping) (*Mapping, error) {
	m := &Mapping{entries: make([]entry, 0, len(columns))}

	for i, c := range columns {
		e := entry{
			column:   strings.ToUpper(strings.TrimSpace(c.Column)),
			field:    c.Field,
			required: c.IsRequired(),
		}
		for j, action := range c.Transforms {
			s, err := compile(action)
			if err != nil {
				return nil, fmt.Errorf("columns[%d] (%s) transform %d: %w", i, c.Field, j, err)
			}
			e.steps = append(e.steps, s)
		}
		m.entries = append(m.entries, e)
	}
	return m, nil
}

// Derive builds the FieldSet for a row.
func (m *Mapping) Derive(row types.Row) types.FieldSet {
	fields := make(types.FieldSet, len(m.entries))
	for _, e := range m.entries {
		value := row.Cell(e.column)
		if value != "" {
			for _, s := range e.steps {
				value = s(value)
			}
		}
		fields[e.field] = value
	}
	return fields
}

// Required returns the required field names in mapping order.
func (m *Mapping) Required() []string {
	var out []string
	for _, e := range m.entries {
		if e.required {
			out = append(out, e.field)
		}
	}
	return out
}

// =============================================================================
// TRANSFORMATION FUNCTIONS
// =============================================================================

// compile turns a configured action into a step.
//
// CUSTOMIZATION:
//   Add new transformation types by adding cases to this switch statement
//   and to config.TransformTypes.
func compile(action config.TransformationAction) (step, error) {
	switch action.Type {
	case "trim":
		return strings.TrimSpace, nil

	case "uppercase":
		return strings.ToUpper, nil

	case "lowercase":
		return strings.ToLower, nil

	case "title_case":
		caser := cases.Title(language.Und)
		return func(v string) string { return caser.String(strings.ToLower(v)) }, nil

	case "prepend_string":
		// EXAMPLE: "123456" with value "A" becomes "A123456"
		prefix := action.Value
		return func(v string) string { return prefix + v }, nil

	case "append_string":
		suffix := action.Value
		return func(v string) string { return v + suffix }, nil

	case "pad_zeros_to_length":
		// EXAMPLE: "123" with value "6" becomes "000123"
		length, err := strconv.Atoi(strings.TrimSpace(action.Value))
		if err != nil || length <= 0 {
			return nil, fmt.Errorf("pad_zeros_to_length needs a positive length, got %q", action.Value)
		}
		return func(v string) string { return PadLeft(v, length, '0') }, nil

	case "replace":
		if action.Find == "" {
			return nil, fmt.Errorf("replace needs a find value")
		}
		find, with := action.Find, action.Value
		return func(v string) string { return strings.ReplaceAll(v, find, with) }, nil

	case "regex_replace":
		re, err := regexp.Compile(action.Find)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		with := action.Value
		return func(v string) string { return re.ReplaceAllString(v, with) }, nil

	case "lookup":
		table := action.LookupTable
		return func(v string) string {
			if replacement, ok := table[v]; ok {
				return replacement
			}
			return v
		}, nil

	default:
		return nil, fmt.Errorf("unknown transformation type: %s", action.Type)
	}
}

// PadLeft pads s with padChar on the left up to length runes.
func PadLeft(s string, length int, padChar rune) string {
	n := len([]rune(s))
	if n >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-n) + s
}
