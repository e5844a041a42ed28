// Package logging builds the slog logger used across the merge pipeline and
// defines the canonical attribute names so log lines stay greppable.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Canonical log field names.
const (
	KeyRunID     = "run_id"
	KeyRow       = "row"
	KeyKey       = "key"
	KeyFile      = "file"
	KeyPath      = "path"
	KeyState     = "state"
	KeyMissing   = "missing"
	KeyFormat    = "format"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
	KeyComponent = "component"
)

func RunID(id string) slog.Attr         { return slog.String(KeyRunID, id) }
func Row(n int) slog.Attr               { return slog.Int(KeyRow, n) }
func Key(k string) slog.Attr            { return slog.String(KeyKey, k) }
func File(name string) slog.Attr        { return slog.String(KeyFile, name) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func State(s string) slog.Attr          { return slog.String(KeyState, s) }
func Format(f string) slog.Attr         { return slog.String(KeyFormat, f) }
func Component(c string) slog.Attr      { return slog.String(KeyComponent, c) }
func Missing(fields []string) slog.Attr { return slog.String(KeyMissing, strings.Join(fields, ",")) }
func DurationMS(ms int64) slog.Attr     { return slog.Int64(KeyDuration, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error.
	Level string

	// Format is text or json.
	Format string

	// File, when set, receives a copy of every line.
	File string

	// Out is the primary destination. Defaults to stderr.
	Out io.Writer
}

// New returns a logger and a close function for the optional log file.
func New(opts Options) (*slog.Logger, func() error, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	closer := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
