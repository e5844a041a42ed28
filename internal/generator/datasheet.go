package generator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/docx-mail-merge/internal/config"
	"github.com/ginjaninja78/docx-mail-merge/internal/csvparser"
	"github.com/ginjaninja78/docx-mail-merge/internal/types"
	"github.com/ginjaninja78/docx-mail-merge/internal/xlsxparser"
)

// ReadDatasheet reads the data rows of a datasheet, choosing the reader by
// file extension: .xlsx/.xlsm/.xltx/.xltm go to excelize, .csv/.tsv/.txt to
// the CSV reader.
func ReadDatasheet(path string, settings config.CSVSettings) ([]types.Row, error) {
	switch kind(path) {
	case kindSpreadsheet:
		return xlsxparser.ReadRows(path)
	case kindDelimited:
		if strings.EqualFold(filepath.Ext(path), ".tsv") && settings.Delimiter == "," {
			settings.Delimiter = "\t"
		}
		return csvparser.ReadRows(path, settings)
	default:
		return nil, unsupported(path)
	}
}

// ReadDatasheetHeader returns the header row cells of a datasheet.
func ReadDatasheetHeader(path string, settings config.CSVSettings) ([]string, error) {
	switch kind(path) {
	case kindSpreadsheet:
		return xlsxparser.ReadHeader(path)
	case kindDelimited:
		if strings.EqualFold(filepath.Ext(path), ".tsv") && settings.Delimiter == "," {
			settings.Delimiter = "\t"
		}
		return csvparser.ReadHeader(path, settings)
	default:
		return nil, unsupported(path)
	}
}

const (
	kindUnknown = iota
	kindSpreadsheet
	kindDelimited
)

func kind(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return kindSpreadsheet
	case ".csv", ".tsv", ".txt":
		return kindDelimited
	}
	return kindUnknown
}

func unsupported(path string) error {
	return &types.UnreadableInputError{
		Path: path,
		Err:  fmt.Errorf("unsupported datasheet type %q (want .xlsx or .csv)", filepath.Ext(path)),
	}
}
