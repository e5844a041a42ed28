// =============================================================================
// DOCX Mail Merge - CSV Datasheet Reader
// =============================================================================
//
// This module reads .csv datasheets with the same contract as the XLSX
// reader: the first record is the header, every following record becomes one
// types.Row whose cells are whitespace-trimmed.
//
// FEATURES:
//   - Configurable delimiter and comment character
//   - Non UTF-8 encodings (UTF-16 with BOM, ISO-8859-1, Windows-1252)
//   - Ragged rows (records with fewer or more fields than the header)
//   - Blank lines between records are kept as blank rows, like empty sheet
//     rows in the XLSX reader, so both formats report the same Total
//
// =============================================================================

package csvparser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// =============================================================================
// READER FUNCTIONS
// =============================================================================

// ReadRows reads a CSV datasheet and returns its data rows.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Delimiter, comment and encoding settings.
//
// RETURNS:
//   - One Row per record after the header. Row.Number is the 1-based record
//     number, so the first data row is 2.
//   - A *types.UnreadableInputError if the file cannot be opened or decoded.
func ReadRows(filePath string, settings config.CSVSettings) ([]types.Row, error) {
	records, err := readAll(filePath, settings)
	if err != nil {
		return nil, err
	}

	if len(records) <= 1 {
		return []types.Row{}, nil
	}

	rows := make([]types.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, types.Row{
			Number: record.line,
			Cells:  trimCells(record.fields),
		})
	}
	return rows, nil
}

// ReadHeader returns the header record of a CSV datasheet.
func ReadHeader(filePath string, settings config.CSVSettings) ([]string, error) {
	records, err := readAll(filePath, settings)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []string{}, nil
	}
	return trimCells(records[0].fields), nil
}

// record is one parsed CSV record and the line it started on. A blank
// record has no fields.
type record struct {
	line   int
	fields []string
}

// readAll opens, decodes and parses the whole file.
func readAll(filePath string, settings config.CSVSettings) ([]record, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &types.UnreadableInputError{Path: filePath, Err: err}
	}
	defer file.Close()

	decoded, err := decoder(settings.Encoding)
	if err != nil {
		return nil, &types.UnreadableInputError{Path: filePath, Err: err}
	}

	data, err := io.ReadAll(transform.NewReader(file, decoded.NewDecoder()))
	if err != nil {
		return nil, &types.UnreadableInputError{Path: filePath, Err: fmt.Errorf("failed to decode CSV: %w", err)}
	}
	lines := strings.Split(string(data), "\n")

	csvReader := csv.NewReader(bytes.NewReader(data))
	configureReader(csvReader, settings)

	var records []record
	lastLine := 0
	for {
		fields, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &types.UnreadableInputError{Path: filePath, Err: fmt.Errorf("failed to read CSV: %w", err)}
		}
		line, _ := csvReader.FieldPos(0)

		// encoding/csv skips empty lines. Put back the ones between records;
		// comment lines stay skipped.
		if len(records) > 0 {
			for l := lastLine + 1; l < line; l++ {
				if strings.TrimSuffix(lines[l-1], "\r") == "" {
					records = append(records, record{line: l})
				}
			}
		}

		records = append(records, record{line: line, fields: fields})
		lastLine = endLine(csvReader, fields)
	}
	return records, nil
}

// endLine returns the line a record ends on. Quoted fields may span lines.
func endLine(r *csv.Reader, fields []string) int {
	last := len(fields) - 1
	line, _ := r.FieldPos(last)
	return line + strings.Count(fields[last], "\n")
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	// Handle special cases for common delimiters.
	switch settings.Delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "pipe", "PIPE":
		reader.Comma = '|'
	case "semicolon":
		reader.Comma = ';'
	default:
		if r := []rune(settings.Delimiter); len(r) > 0 {
			reader.Comma = r[0]
		} else {
			reader.Comma = ','
		}
	}

	if r := []rune(settings.Comment); len(r) > 0 {
		reader.Comment = r[0]
	}

	// Rows exported from spreadsheets are often ragged.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// decoder returns the text encoding for a configured name. The UTF-8 decoder
// strips a leading byte order mark, which Excel writes on "CSV UTF-8" exports.
func decoder(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.UTF8BOM, nil
	case "UTF-16", "UTF16":
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	default:
		return nil, errors.New("unsupported encoding " + name)
	}
}

// trimCells trims every cell and drops trailing empty cells, matching what
// the XLSX reader returns.
func trimCells(record []string) []string {
	cells := make([]string, len(record))
	for i, c := range record {
		cells[i] = strings.TrimSpace(c)
	}
	end := len(cells)
	for end > 0 && cells[end-1] == "" {
		end--
	}
	return cells[:end]
}
