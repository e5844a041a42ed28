// =============================================================================
// DOCX Mail Merge - Template Binder
// =============================================================================
//
// The Binder fills a .docx template with one row's fields. Rendering is done
// by go-stencil; this module decides which failures belong to the template
// and which to the row:
//
//   - *types.UnreadableInputError : not a ZIP / no word/document.xml
//   - *types.TemplateFormatError  : broken tags, or a template the engine
//                                   refuses. Found by Prepare, before any row.
//   - *types.RenderError          : a value that cannot be written (invalid
//                                   UTF-8, XML-illegal control characters), a
//                                   missing key under MissingKey "error", or
//                                   any other engine failure for one row
//
// =============================================================================

package docxtemplate

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	stencil "github.com/benjaminschreck/go-stencil"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// MissingKey policies.
const (
	MissingKeyEmpty = "empty"
	MissingKeyError = "error"
)

// Options controls rendering.
type Options struct {
	// Linebreaks keeps newlines in values. When false, multi-line values
	// are joined with a space.
	Linebreaks bool

	// MissingKey is MissingKeyEmpty or MissingKeyError.
	MissingKey string
}

// compiled is a prepared template with its variable names.
type compiled struct {
	prepared  *stencil.PreparedTemplate
	variables []string
}

// Binder renders rows against template bytes. The last prepared template is
// cached by content digest, so a run prepares its template once.
type Binder struct {
	opts Options

	mu     sync.Mutex
	digest [sha256.Size]byte
	cached *compiled
}

// NewBinder creates a Binder with the given options.
func NewBinder(opts Options) *Binder {
	return &Binder{opts: opts}
}

// Prepare checks and compiles the template without rendering.
func (b *Binder) Prepare(template []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.compile(template)
	return err
}

// Bind renders the template with fields and returns the .docx bytes.
func (b *Binder) Bind(template []byte, fields types.FieldSet) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.compile(template)
	if err != nil {
		return nil, err
	}

	data, err := b.data(c.variables, fields)
	if err != nil {
		return nil, err
	}

	out, err := c.prepared.Render(data)
	if err != nil {
		if errors.As(err, &stencil.TemplateError{}) {
			return nil, &types.TemplateFormatError{Part: documentPart, Reason: err.Error()}
		}
		return nil, &types.RenderError{Err: err}
	}
	return out.Bytes(), nil
}

// Close releases the cached template.
func (b *Binder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cached != nil {
		b.cached.prepared.Close()
		b.cached = nil
	}
	return nil
}

// compile returns the cached template or prepares a new one. b.mu is held.
func (b *Binder) compile(template []byte) (*compiled, error) {
	sum := sha256.Sum256(template)
	if b.cached != nil && sum == b.digest {
		return b.cached, nil
	}

	variables, problems, err := ScanVariables(template)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, problems[0]
	}

	prepared, err := stencil.Prepare(bytes.NewReader(template))
	if err != nil {
		return nil, &types.TemplateFormatError{Part: documentPart, Reason: err.Error()}
	}

	if b.cached != nil {
		b.cached.prepared.Close()
	}
	b.cached = &compiled{prepared: prepared, variables: variables}
	b.digest = sum
	return b.cached, nil
}

// data builds the engine input. Every template variable gets a value so the
// engine never sees an unknown name.
func (b *Binder) data(variables []string, fields types.FieldSet) (stencil.TemplateData, error) {
	data := make(stencil.TemplateData, len(fields)+len(variables))
	for name, raw := range fields {
		value, err := b.value(raw)
		if err != nil {
			return nil, &types.RenderError{Err: fmt.Errorf("value for %s: %w", name, err)}
		}
		data[name] = value
	}

	for _, name := range variables {
		if _, ok := fields[name]; ok {
			continue
		}
		if b.opts.MissingKey == MissingKeyError {
			return nil, &types.RenderError{Err: fmt.Errorf("no value for %s%s%s", OpenDelim, name, CloseDelim)}
		}
		data[name] = ""
	}
	return data, nil
}

// value checks that raw can be written into a document.
func (b *Binder) value(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", errors.New("value is not valid UTF-8")
	}
	for _, r := range raw {
		if !isXMLChar(r) {
			return "", fmt.Errorf("value contains character %U not allowed in a document", r)
		}
	}

	if !b.opts.Linebreaks {
		raw = strings.Join(strings.Fields(strings.ReplaceAll(raw, "\r\n", "\n")), " ")
	}
	return raw, nil
}

// isXMLChar reports whether r may appear in XML 1.0 character data.
func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}
