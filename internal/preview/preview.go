// =============================================================================
// DOCX Mail Merge - Preview Inspector
// =============================================================================
//
// This module shows what a run would work with, without running it: the
// placeholders of the template and the header of the datasheet.
//
// The inspector only reads. It never touches the output directory and has
// no link to a Generator, so it can be called at any time, including while
// a run is in progress.
//
// =============================================================================

package preview

import (
	"errors"
	"os"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/docxtemplate"
	"github.com/ginjaninja78/docx-mail-merge/internal/generator"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// Inspect scans a template and a datasheet. Either path may be empty, in
// which case that half of the result is left empty.
//
// RETURNS:
//   - The PreviewResult. MissingColumns and UnusedColumns compare the
//     template variables with the fields of cfg's column mapping.
//   - A *types.UnreadableInputError if a file cannot be read.
func Inspect(templatePath, datasheetPath string, cfg *config.Config) (types.PreviewResult, error) {
	result := types.PreviewResult{
		TemplateVariables: []string{},
		DatasheetColumns:  []string{},
	}

	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return types.PreviewResult{}, &types.UnreadableInputError{Path: templatePath, Err: err}
		}

		vars, problems, err := docxtemplate.ScanVariables(data)
		if err != nil {
			var unreadable *types.UnreadableInputError
			if errors.As(err, &unreadable) {
				return types.PreviewResult{}, &types.UnreadableInputError{Path: templatePath, Err: unreadable.Err}
			}
			return types.PreviewResult{}, err
		}
		result.TemplateVariables = vars
		for _, p := range problems {
			result.TemplateProblems = append(result.TemplateProblems, p.Error())
		}
	}

	if datasheetPath != "" {
		header, err := generator.ReadDatasheetHeader(datasheetPath, cfg.CSVSettings)
		if err != nil {
			return types.PreviewResult{}, err
		}
		result.DatasheetColumns = header
	}

	if templatePath != "" {
		result.MissingColumns, result.UnusedColumns = compare(result.TemplateVariables, cfg.Columns)
	}
	return result, nil
}

// compare lists template variables nothing provides and mapped fields the
// template never uses.
func compare(vars []string, columns []config.ColumnMapping) (missing, unused []string) {
	used := make(map[string]bool, len(vars))
	for _, v := range vars {
		used[v] = true
	}
	mapped := make(map[string]bool, len(columns))
	for _, c := range columns {
		mapped[c.Field] = true
		if !used[c.Field] {
			unused = append(unused, c.Field)
		}
	}
	for _, v := range vars {
		if !mapped[v] {
			missing = append(missing, v)
		}
	}
	return missing, unused
}
