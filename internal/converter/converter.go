// =============================================================================
// DOCX Mail Merge - Format Converter
// =============================================================================
//
// This module turns a rendered .docx into a secondary format (PDF by default).
//
// CONVERSION STRATEGY:
//   LibreOffice runs headless in a scratch directory created per call:
//
//     <tmp>/mailmerge-<uuid>/
//       document.docx        the rendered input
//       document.pdf         written by soffice
//       profile/             isolated LibreOffice user profile
//
//   A private profile lets several conversions run without fighting over
//   the user's profile lock. The scratch directory is always removed.
//
// FAILURE MODEL:
//   Any failure is reported as *types.ConversionError. The caller has already
//   written the primary .docx output, so a failed conversion never fails the row.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// Converter converts a document to another format, identified by extension.
type Converter interface {
	Convert(ctx context.Context, document []byte, targetExt string) ([]byte, error)
}

// =============================================================================
// LIBREOFFICE CONVERTER
// =============================================================================

// LibreOffice converts documents with the soffice binary.
type LibreOffice struct {
	// Path is the soffice binary, looked up on PATH when not absolute.
	Path string

	// Timeout bounds one conversion. Zero disables it.
	Timeout time.Duration

	// TempDir is the parent of scratch directories. Empty means os.TempDir().
	TempDir string

	// For mocking in tests
	commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewLibreOffice creates a LibreOffice converter.
func NewLibreOffice(path string, timeout time.Duration) *LibreOffice {
	if path == "" {
		path = "soffice"
	}
	return &LibreOffice{
		Path:        path,
		Timeout:     timeout,
		commandFunc: exec.CommandContext,
	}
}

// Convert writes document to a scratch directory, runs soffice and returns
// the converted bytes.
func (l *LibreOffice) Convert(ctx context.Context, document []byte, targetExt string) ([]byte, error) {
	format := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(targetExt)), ".")
	if format == "" {
		return nil, &types.ConversionError{Format: targetExt, Err: errors.New("no target format")}
	}

	out, err := l.convert(ctx, document, format)
	if err != nil {
		return nil, &types.ConversionError{Format: format, Err: err}
	}
	return out, nil
}

func (l *LibreOffice) convert(ctx context.Context, document []byte, format string) ([]byte, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	parent := l.TempDir
	if parent == "" {
		parent = os.TempDir()
	}
	scratch := filepath.Join(parent, "mailmerge-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	input := filepath.Join(scratch, "document.docx")
	if err := os.WriteFile(input, document, 0644); err != nil {
		return nil, fmt.Errorf("failed to write conversion input: %w", err)
	}

	profile := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(scratch, "profile"))}
	args := []string{
		"-env:UserInstallation=" + profile.String(),
		"--headless",
		"--convert-to", format,
		"--outdir", scratch,
		input,
	}

	commandFunc := l.commandFunc
	if commandFunc == nil {
		commandFunc = exec.CommandContext
	}
	cmd := commandFunc(ctx, l.Path, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s cancelled: %w", l.Path, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not found; install LibreOffice or set conversion.soffice_path: %w", l.Path, err)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", l.Path, err, strings.TrimSpace(string(output)))
	}

	result := filepath.Join(scratch, "document."+format)
	data, err := os.ReadFile(result)
	if err != nil {
		return nil, fmt.Errorf("%s produced no %s output: %s", l.Path, format, strings.TrimSpace(string(output)))
	}
	return data, nil
}

// =============================================================================
// NO-OP CONVERTER
// =============================================================================

// Noop is used when conversion is disabled.
type Noop struct{}

// Convert always returns types.ErrConversionDisabled.
func (Noop) Convert(context.Context, []byte, string) ([]byte, error) {
	return nil, types.ErrConversionDisabled
}
