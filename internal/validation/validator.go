// =============================================================================
// DOCX Mail Merge - Row Validator
// =============================================================================
//
// This module decides whether a row carries enough data to be merged.
//
// VALIDATION STRATEGY:
//   A row is complete iff every required field maps to a non-empty value
//   after trimming. Incomplete rows are skipped, not failed: they are
//   counted separately from errors and described by an IncompleteRowError
//   that names the sheet row and its primary key so the user can find it.
//
// =============================================================================

package validation

import (
	"strings"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// IsComplete reports whether every required key maps to a non-empty trimmed string.
func IsComplete(fields types.FieldSet, required []string) bool {
	for _, key := range required {
		if strings.TrimSpace(fields[key]) == "" {
			return false
		}
	}
	return true
}

// Missing returns the required keys whose values are empty, in the order given.
func Missing(fields types.FieldSet, required []string) []string {
	var missing []string
	for _, key := range required {
		if strings.TrimSpace(fields[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// Validator checks rows against a fixed list of required fields.
type Validator struct {
	required   []string
	primaryKey string
}

// NewValidator creates a Validator. primaryKey names the field reported in
// skip descriptions.
func NewValidator(required []string, primaryKey string) *Validator {
	return &Validator{required: append([]string(nil), required...), primaryKey: primaryKey}
}

// Check returns nil for a complete row, or a description of the skip.
func (v *Validator) Check(row types.Row, fields types.FieldSet) *types.IncompleteRowError {
	missing := Missing(fields, v.required)
	if len(missing) == 0 {
		return nil
	}
	return &types.IncompleteRowError{
		Row:     row.Number,
		Key:     fields[v.primaryKey],
		Missing: missing,
	}
}
