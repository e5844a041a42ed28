// =============================================================================
// DOCX Mail Merge - Configuration Module
// =============================================================================
//
// This module is responsible for loading and validating the merge
// configuration. A single YAML file describes:
//   - Where generated documents are written
//   - How datasheet columns map to template variables
//   - How the template placeholders are delimited
//   - Whether (and how) documents are converted to PDF
//   - Logging settings
//
// A missing configuration file is not an error for the CLI: the defaults
// reproduce the classic five-column company letter layout.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the merge configuration.
type Config struct {
	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputDir is the directory where generated documents are placed.
	// It is created lazily on the first write of a run.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// OutputSuffix is the default suffix appended to generated file names
	// when the caller does not supply one.
	OutputSuffix string `yaml:"output_suffix"`

	// PrimaryKey and SecondaryKey name the fields used to build output file
	// names: {primary}_{secondary}{suffix}.{ext}
	// Default: "CompanyNumber" and "CompanyInitial"
	PrimaryKey   string `yaml:"primary_key"`
	SecondaryKey string `yaml:"secondary_key"`

	// Collision decides what happens when two rows of one run resolve to the
	// same file name. Valid values: "number", "overwrite", "error".
	// Default: "number"
	Collision string `yaml:"collision"`

	// =========================================================================
	// COLUMN MAPPING
	// =========================================================================

	// Columns is the ordered list of (column, field, required) entries used
	// to derive template fields from a datasheet row.
	Columns []ColumnMapping `yaml:"columns"`

	// CSVSettings applies when the datasheet is a .csv file.
	CSVSettings CSVSettings `yaml:"csv_settings"`

	// =========================================================================
	// TEMPLATE & CONVERSION
	// =========================================================================

	Template   TemplateSettings   `yaml:"template"`
	Conversion ConversionSettings `yaml:"conversion"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile is an optional path that receives a copy of every log line.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`
}

// =============================================================================
// COLUMN MAPPING STRUCTURE
// =============================================================================

// ColumnMapping binds one datasheet column to one template variable.
type ColumnMapping struct {
	// Column is the spreadsheet column letter, e.g. "A".
	Column string `yaml:"column"`

	// Field is the template variable name, e.g. "CompanyHeader".
	Field string `yaml:"field"`

	// Required marks rows with an empty value for this field as incomplete.
	// Omitted means required.
	Required *bool `yaml:"required,omitempty"`

	// Transforms are applied in order to the trimmed cell text.
	Transforms []TransformationAction `yaml:"transforms,omitempty"`
}

// IsRequired reports whether the mapping is required (the default).
func (m ColumnMapping) IsRequired() bool {
	return m.Required == nil || *m.Required
}

// TransformationAction defines a single value transformation.
type TransformationAction struct {
	// Type is the type of transformation to apply.
	// Supported types:
	//   - "trim"                : Remove leading and trailing whitespace
	//   - "uppercase"           : Convert to uppercase
	//   - "lowercase"           : Convert to lowercase
	//   - "title_case"          : Capitalise the first letter of each word
	//   - "prepend_string"      : Add Value to the beginning
	//   - "append_string"       : Add Value to the end
	//   - "pad_zeros_to_length" : Pad with leading zeros to length Value
	//   - "replace"             : Replace Find with Value
	//   - "regex_replace"       : Replace matches of the pattern Find with Value
	//   - "lookup"              : Replace the whole value using LookupTable
	Type string `yaml:"type"`

	// Value is the parameter for the transformation.
	Value string `yaml:"value,omitempty"`

	// Find is used by "replace" and "regex_replace".
	Find string `yaml:"find,omitempty"`

	// LookupTable is used by "lookup". Values not in the table are kept.
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// TransformTypes lists the supported transformation types.
var TransformTypes = []string{
	"trim", "uppercase", "lowercase", "title_case", "prepend_string",
	"append_string", "pad_zeros_to_length", "replace", "regex_replace", "lookup",
}

// =============================================================================
// CSV SETTINGS STRUCTURE
// =============================================================================

// CSVSettings contains settings for reading .csv datasheets.
type CSVSettings struct {
	// Delimiter is the character used to separate fields.
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Comment lines start with this character and are ignored. Empty disables.
	Comment string `yaml:"comment,omitempty"`

	// Encoding is the character encoding of the file.
	// Valid values: "UTF-8", "UTF-16", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// =============================================================================
// TEMPLATE SETTINGS STRUCTURE
// =============================================================================

// TemplateSettings controls substitution. Variables are always written as
// {{Name}}.
type TemplateSettings struct {
	// Linebreaks turns newlines in values into line breaks in the document.
	// Default: true
	Linebreaks *bool `yaml:"linebreaks,omitempty"`

	// MissingKey decides what an unknown variable renders as.
	// "empty" renders nothing, "error" fails the row.
	// Default: "empty"
	MissingKey string `yaml:"missing_key"`
}

// LinebreaksEnabled reports whether line-break conversion is on (the default).
func (t TemplateSettings) LinebreaksEnabled() bool {
	return t.Linebreaks == nil || *t.Linebreaks
}

// =============================================================================
// CONVERSION SETTINGS STRUCTURE
// =============================================================================

// ConversionSettings controls the secondary (PDF) output.
type ConversionSettings struct {
	// Enabled turns conversion on.
	// Default: true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Format is the target extension without the dot.
	// Default: "pdf"
	Format string `yaml:"format"`

	// SofficePath is the LibreOffice binary.
	// Default: "soffice" (resolved through PATH)
	SofficePath string `yaml:"soffice_path"`

	// Timeout bounds a single conversion. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether conversion is on (the default).
func (c ConversionSettings) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the configuration used when no file is present. The column
// layout is the original company letter: A..E, every column required.
func Default() *Config {
	cfg := &Config{
		Columns: []ColumnMapping{
			{Column: "A", Field: "CompanyHeader"},
			{Column: "B", Field: "CompanyNumber"},
			{Column: "C", Field: "CompanyInitial"},
			{Column: "D", Field: "DueDate"},
			{Column: "E", Field: "Address"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(config *Config) {
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.PrimaryKey == "" {
		config.PrimaryKey = "CompanyNumber"
	}
	if config.SecondaryKey == "" {
		config.SecondaryKey = "CompanyInitial"
	}
	if config.Collision == "" {
		config.Collision = "number"
	}
	if config.CSVSettings.Delimiter == "" {
		config.CSVSettings.Delimiter = ","
	}
	if config.CSVSettings.Encoding == "" {
		config.CSVSettings.Encoding = "UTF-8"
	}
	if config.Template.MissingKey == "" {
		config.Template.MissingKey = "empty"
	}
	if config.Conversion.Format == "" {
		config.Conversion.Format = "pdf"
	}
	config.Conversion.Format = strings.TrimPrefix(config.Conversion.Format, ".")
	if config.Conversion.SofficePath == "" {
		config.Conversion.SofficePath = "soffice"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the Config struct with defaults applied.
//   - An error if the file cannot be read, parsed or validated.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default() when the file does
// not exist.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		return Default(), nil
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(configPath)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// An explicit file without columns keeps the default layout.
	if len(config.Columns) == 0 {
		config.Columns = Default().Columns
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func Save(configPath string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Columns) == 0 {
		problems = append(problems, "at least one column mapping is required")
	}

	fields := make(map[string]bool, len(c.Columns))
	for i, m := range c.Columns {
		if _, err := excelize.ColumnNameToNumber(m.Column); err != nil {
			problems = append(problems, fmt.Sprintf("columns[%d]: invalid column %q", i, m.Column))
		}
		if strings.TrimSpace(m.Field) == "" {
			problems = append(problems, fmt.Sprintf("columns[%d]: field name is empty", i))
		} else if !fieldNameRE.MatchString(m.Field) {
			problems = append(problems, fmt.Sprintf("columns[%d]: field %q must be a plain name (letters, digits, underscore)", i, m.Field))
		} else if fields[m.Field] {
			problems = append(problems, fmt.Sprintf("columns[%d]: field %q is mapped twice", i, m.Field))
		}
		fields[m.Field] = true

		for j, action := range m.Transforms {
			if !knownTransform(action.Type) {
				problems = append(problems, fmt.Sprintf("columns[%d].transforms[%d]: unknown type %q", i, j, action.Type))
			}
		}
	}

	if !fields[c.PrimaryKey] {
		problems = append(problems, fmt.Sprintf("primary_key %q is not a mapped field", c.PrimaryKey))
	}
	if !fields[c.SecondaryKey] {
		problems = append(problems, fmt.Sprintf("secondary_key %q is not a mapped field", c.SecondaryKey))
	}

	switch c.Collision {
	case "number", "overwrite", "error":
	default:
		problems = append(problems, fmt.Sprintf("collision must be number, overwrite or error, got %q", c.Collision))
	}

	switch c.Template.MissingKey {
	case "empty", "error":
	default:
		problems = append(problems, fmt.Sprintf("template.missing_key must be empty or error, got %q", c.Template.MissingKey))
	}

	switch c.CSVSettings.Delimiter {
	case "\\t", "tab", "TAB", "pipe", "PIPE", "semicolon":
	default:
		if len([]rune(c.CSVSettings.Delimiter)) != 1 {
			problems = append(problems, "csv_settings.delimiter must be a single character, tab, pipe or semicolon")
		}
	}
	if c.Conversion.Timeout < 0 {
		problems = append(problems, "conversion.timeout must not be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// fieldNameRE matches the variable names a template can reference.
var fieldNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func knownTransform(kind string) bool {
	for _, t := range TransformTypes {
		if t == kind {
			return true
		}
	}
	return false
}
