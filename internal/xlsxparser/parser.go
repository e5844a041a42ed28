// =============================================================================
// DOCX Mail Merge - XLSX Datasheet Reader
// =============================================================================
//
// This module reads the datasheet that drives a merge run. Only the first
// sheet of the workbook is used:
//
//   | Column A      | Column B      | Column C       | Column D | Column E |
//   |---------------|---------------|----------------|----------|----------|
//   | CompanyHeader | CompanyNumber | CompanyInitial | DueDate  | Address  |  <- header, skipped
//   | Acme Ltd      | C-001         | AC             | 1/3/2025 | 1 Road   |  <- Row{Number: 2}
//   | ...           |               |                |          |          |
//
// Cell values are the formatted display text (what the user sees in Excel,
// e.g. dates as "1/3/2025", not serial numbers) with surrounding whitespace
// trimmed. Blank rows inside the data range are returned as rows with no
// cells: deciding whether a row is usable is the validator's job.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// HeaderRow is the 1-based row that holds column headers.
const HeaderRow = 1

// =============================================================================
// READER FUNCTIONS
// =============================================================================

// ReadRows reads the first sheet of an XLSX file and returns its data rows.
//
// PARAMETERS:
//   - filePath: The path to the XLSX datasheet.
//
// RETURNS:
//   - One Row per sheet row after the header, up to the last used row.
//   - A *types.UnreadableInputError if the file cannot be opened or has no
//     readable first sheet.
func ReadRows(filePath string) ([]types.Row, error) {
	all, err := readSheet(filePath)
	if err != nil {
		return nil, err
	}

	if len(all) <= HeaderRow {
		return []types.Row{}, nil
	}

	rows := make([]types.Row, 0, len(all)-HeaderRow)
	for i := HeaderRow; i < len(all); i++ {
		rows = append(rows, types.Row{
			Number: i + 1,
			Cells:  trimCells(all[i]),
		})
	}
	return rows, nil
}

// ReadHeader returns the header row cell texts, positionally. Empty header
// cells between named ones are kept as "" so positions line up with columns.
func ReadHeader(filePath string) ([]string, error) {
	all, err := readSheet(filePath)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return []string{}, nil
	}
	return trimCells(all[0]), nil
}

// readSheet opens the workbook and returns every row of the first sheet.
func readSheet(filePath string) ([][]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, &types.UnreadableInputError{Path: filePath, Err: fmt.Errorf("failed to open datasheet: %w", err)}
	}
	defer f.Close()

	// Only the first sheet is read.
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, &types.UnreadableInputError{Path: filePath, Err: fmt.Errorf("datasheet has no sheets")}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &types.UnreadableInputError{Path: filePath, Err: fmt.Errorf("failed to read rows of %s: %w", sheetName, err)}
	}
	return rows, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// trimCells trims each cell and drops trailing empty cells.
func trimCells(row []string) []string {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = strings.TrimSpace(cell)
	}
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
