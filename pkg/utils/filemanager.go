// =============================================================================
// DOCX Mail Merge - Output File Manager
// =============================================================================
//
// This module provides file management utilities for generation runs:
//   - Lazy creation of the output directory
//   - Output file naming
//   - Collision handling between rows of the same run
//   - Atomic writes (temp file + rename)
//   - Run summary log generation
//
// NAMING STRATEGY:
//   Every row produces files named
//
//     {primary}_{secondary}{suffix}.{ext}
//
//   e.g. C-001_AC_Reminder.docx and C-001_AC_Reminder.pdf. Both extensions
//   share one reserved base name, so the pair always matches.
//
// CUSTOMIZATION:
//   - Change the collision policy in config (number, overwrite, error)
//   - Modify sanitizeName to allow or forbid more characters
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// Collision policies.
const (
	CollisionNumber    = "number"
	CollisionOverwrite = "overwrite"
	CollisionError     = "error"
)

// =============================================================================
// OUTPUT WRITER
// =============================================================================

// OutputWriter writes generated files into one directory.
type OutputWriter struct {
	// Dir is the directory where output files are placed.
	Dir string

	// Policy decides what happens when two rows resolve to the same name.
	Policy string

	mu       sync.Mutex
	ensured  bool
	reserved map[string]bool
}

// NewOutputWriter creates an OutputWriter. An empty policy means CollisionNumber.
func NewOutputWriter(dir, policy string) *OutputWriter {
	if policy == "" {
		policy = CollisionNumber
	}
	return &OutputWriter{
		Dir:      dir,
		Policy:   policy,
		reserved: make(map[string]bool),
	}
}

// Reset forgets the names reserved by the previous run.
func (w *OutputWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensured = false
	w.reserved = make(map[string]bool)
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDir creates the output directory if it doesn't exist. It is called
// before the first write, so a run that writes nothing creates nothing.
//
// RETURNS:
//   - An error if the directory cannot be created.
func (w *OutputWriter) EnsureDir() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ensured {
		return nil
	}
	if info, err := os.Stat(w.Dir); err == nil && info.IsDir() {
		w.ensured = true
		return nil
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Dir, err)
	}
	w.ensured = true
	return nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// Name builds the base file name (without extension) for a row.
//
// EXAMPLE:
//   Name("C-001", "AC", "_Reminder") returns "C-001_AC_Reminder"
func Name(primary, secondary, suffix string) string {
	return sanitizeName(primary + "_" + secondary + suffix)
}

// sanitizeName makes s safe as a single path element. Path separators and
// characters Windows forbids become "_"; the result is NFC-normalized so the
// same visible name always maps to the same bytes.
func sanitizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Reserve claims a base name for the current run.
//
// RETURNS:
//   - The base name to use.
//   - Whether the name was already claimed earlier in the run.
//   - *types.CollisionError under the "error" policy when it was.
func (w *OutputWriter) Reserve(base string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reserved == nil {
		w.reserved = make(map[string]bool)
	}

	key := strings.ToLower(base)
	if !w.reserved[key] {
		w.reserved[key] = true
		return base, false, nil
	}

	switch w.Policy {
	case CollisionOverwrite:
		return base, true, nil
	case CollisionError:
		return "", true, &types.CollisionError{Name: base}
	default:
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", base, n)
			if !w.reserved[strings.ToLower(candidate)] {
				w.reserved[strings.ToLower(candidate)] = true
				return candidate, true, nil
			}
		}
	}
}

// =============================================================================
// FILE WRITING
// =============================================================================

// Write stores data as Dir/name. The data is written to a temporary file in
// the same directory and renamed into place, so a crash never leaves a
// truncated document behind.
//
// RETURNS:
//   - The path of the written file.
//   - An error if writing fails.
func (w *OutputWriter) Write(name string, data []byte) (string, error) {
	if err := w.EnsureDir(); err != nil {
		return "", err
	}

	path := filepath.Join(w.Dir, name)

	tmp, err := os.CreateTemp(w.Dir, "."+name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
