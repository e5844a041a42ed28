package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesCompanyLetterLayout(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Columns, 5)
	assert.Equal(t, "A", cfg.Columns[0].Column)
	assert.Equal(t, "CompanyHeader", cfg.Columns[0].Field)
	assert.Equal(t, "Address", cfg.Columns[4].Field)
	for _, m := range cfg.Columns {
		assert.True(t, m.IsRequired(), m.Field)
	}
	assert.Equal(t, "CompanyNumber", cfg.PrimaryKey)
	assert.Equal(t, "CompanyInitial", cfg.SecondaryKey)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, "pdf", cfg.Conversion.Format)
	assert.True(t, cfg.Conversion.IsEnabled())
	assert.True(t, cfg.Template.LinebreaksEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestParseAppliesDefaultsAndOptionalColumns(t *testing.T) {
	cfg, err := Parse([]byte(`
output_dir: out
primary_key: Number
secondary_key: Initial
conversion:
  enabled: false
  format: .pdf
  timeout: 90s
columns:
  - column: A
    field: Number
  - column: B
    field: Initial
  - column: C
    field: Note
    required: false
    transforms:
      - type: uppercase
`))
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.True(t, cfg.Columns[0].IsRequired())
	assert.False(t, cfg.Columns[2].IsRequired())
	assert.False(t, cfg.Conversion.IsEnabled())
	assert.Equal(t, "pdf", cfg.Conversion.Format)
	assert.Equal(t, 90*time.Second, cfg.Conversion.Timeout)
	assert.Equal(t, "empty", cfg.Template.MissingKey)
	assert.Equal(t, "number", cfg.Collision)
	require.Len(t, cfg.Columns[2].Transforms, 1)
}

func TestParseWithoutColumnsKeepsDefaultLayout(t *testing.T) {
	cfg, err := Parse([]byte("output_dir: elsewhere\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Columns, 5)
	assert.Equal(t, "elsewhere", cfg.OutputDir)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "invalid column",
			yaml: "columns: [{column: '1A', field: CompanyNumber}, {column: B, field: CompanyInitial}]",
			want: "invalid column",
		},
		{
			name: "duplicate field",
			yaml: "columns: [{column: A, field: CompanyNumber}, {column: B, field: CompanyNumber}]",
			want: "mapped twice",
		},
		{
			name: "primary key not mapped",
			yaml: "primary_key: Nope",
			want: "primary_key",
		},
		{
			name: "unknown transform",
			yaml: "columns: [{column: A, field: CompanyNumber, transforms: [{type: explode}]}, {column: B, field: CompanyInitial}]",
			want: "unknown type",
		},
		{
			name: "bad collision policy",
			yaml: "collision: shrug",
			want: "collision",
		},
		{
			name: "field is not a plain name",
			yaml: "columns: [{column: A, field: CompanyNumber}, {column: B, field: CompanyInitial}, {column: C, field: 'Due Date'}]",
			want: "must be a plain name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadOrDefaultWithMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mailmerge.yaml")
	want := Default()
	want.OutputSuffix = "_2024"
	want.Conversion.Timeout = 2 * time.Minute

	require.NoError(t, Save(path, want))
	_, err := os.Stat(path)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
