// =============================================================================
// DOCX Mail Merge - Template Scanner
// =============================================================================
//
// This module reads the {{...}} tags of a Word (.docx) template without
// rendering it. A .docx file is a ZIP package; the text lives in
// WordprocessingML parts such as word/document.xml, headers and footers:
//
//   <w:p>
//     <w:r><w:t>Dear {{Company</w:t></w:r>
//     <w:r><w:rPr><w:b/></w:rPr><w:t>Header}},</w:t></w:r>
//   </w:p>
//
// Word freely splits text into runs, so tags are located on the concatenated
// text of each paragraph. The scan serves two callers:
//   - the preview, which lists variable names and tolerates broken tags
//   - the Binder, which refuses a template whose tags are broken before the
//     rendering engine ever sees it
//
// =============================================================================

package docxtemplate

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// Tag delimiters of the rendering engine.
const (
	OpenDelim  = "{{"
	CloseDelim = "}}"
)

const documentPart = "word/document.xml"

var (
	// textRE matches a <w:t> element with its content.
	textRE = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

	// paragraphRE matches paragraph boundaries (start and end tags).
	paragraphRE = regexp.MustCompile(`<w:p[\s>/]|</w:p>`)

	// partRE selects the package parts that can hold tags.
	partRE = regexp.MustCompile(`^word/(document|header\d*|footer\d*|footnotes|endnotes)\.xml$`)

	// nameRE is the variable name syntax. Names are plain identifiers: the
	// engine reads anything else as an expression.
	nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// controlWords open or close engine control structures.
var controlWords = map[string]bool{
	"if": true, "elsif": true, "else": true, "unless": true,
	"for": true, "end": true, "include": true,
}

// expressionChars mark a tag as an engine expression rather than a name.
const expressionChars = `()+-*/<>=!"',.`

// ScanVariables extracts variable names in order of first appearance, main
// document first. Malformed tags do not stop the scan; they are returned as
// problems.
//
// RETURNS:
//   - The distinct variable names.
//   - One *types.TemplateFormatError per malformed tag.
//   - A *types.UnreadableInputError if the bytes are not a .docx package.
func ScanVariables(data []byte) ([]string, []*types.TemplateFormatError, error) {
	parts, err := readParts(data)
	if err != nil {
		return nil, nil, err
	}

	var (
		variables []string
		problems  []*types.TemplateFormatError
		seen      = make(map[string]bool)
	)
	for _, p := range parts {
		for _, text := range paragraphTexts(p.xml) {
			names, probs := scan(text)
			for _, prob := range probs {
				prob.Part = p.name
				problems = append(problems, prob)
			}
			for _, name := range names {
				if !seen[name] {
					seen[name] = true
					variables = append(variables, name)
				}
			}
		}
	}
	return variables, problems, nil
}

type part struct {
	name string
	xml  string
}

// readParts returns the text-bearing parts, word/document.xml first.
func readParts(data []byte) ([]part, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &types.UnreadableInputError{Path: "template", Err: fmt.Errorf("not a .docx package: %w", err)}
	}

	var parts []part
	hasDocument := false
	for _, f := range zr.File {
		if !partRE.MatchString(f.Name) {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return nil, &types.UnreadableInputError{Path: "template", Err: fmt.Errorf("read %s: %w", f.Name, err)}
		}
		parts = append(parts, part{name: f.Name, xml: content})
		hasDocument = hasDocument || f.Name == documentPart
	}
	if !hasDocument {
		return nil, &types.UnreadableInputError{Path: "template", Err: fmt.Errorf("%s not found", documentPart)}
	}

	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].name == documentPart || parts[j].name == documentPart {
			return parts[i].name == documentPart
		}
		return parts[i].name < parts[j].name
	})
	return parts, nil
}

// paragraphTexts concatenates the <w:t> contents between paragraph
// boundaries.
func paragraphTexts(xml string) []string {
	boundaries := paragraphRE.FindAllStringIndex(xml, -1)
	texts := make([]string, len(boundaries)+1)

	group := 0
	for _, m := range textRE.FindAllStringSubmatchIndex(xml, -1) {
		for group < len(boundaries) && boundaries[group][0] < m[0] {
			group++
		}
		texts[group] += xml[m[2]:m[3]]
	}
	return texts
}

// scan finds the tags of one paragraph.
func scan(text string) ([]string, []*types.TemplateFormatError) {
	var (
		names    []string
		problems []*types.TemplateFormatError
		pos      int
	)

	for pos < len(text) {
		o := strings.Index(text[pos:], OpenDelim)
		c := strings.Index(text[pos:], CloseDelim)

		if o < 0 {
			if c >= 0 {
				problems = append(problems, formatError(text, "closing "+CloseDelim+" without an opening "+OpenDelim))
			}
			break
		}
		if c >= 0 && c < o {
			problems = append(problems, formatError(text, "closing "+CloseDelim+" without an opening "+OpenDelim))
			pos += c + len(CloseDelim)
			continue
		}

		innerStart := pos + o + len(OpenDelim)
		c = strings.Index(text[innerStart:], CloseDelim)
		if c < 0 {
			problems = append(problems, formatError(text, "unclosed tag, missing "+CloseDelim))
			break
		}
		inner := html.UnescapeString(text[innerStart : innerStart+c])
		end := innerStart + c + len(CloseDelim)

		if strings.Contains(inner, OpenDelim) {
			problems = append(problems, formatError(text, "unclosed tag, missing "+CloseDelim))
			pos = innerStart + strings.Index(text[innerStart:], OpenDelim)
			continue
		}

		name, ok := classify(inner)
		switch {
		case !ok:
			problems = append(problems, formatError(text, fmt.Sprintf("invalid variable name %q", strings.TrimSpace(inner))))
		case name != "":
			names = append(names, name)
		}
		pos = end
	}
	return names, problems
}

// classify returns the variable name of a tag, "" for control structures
// and expressions, and false for text that is neither.
func classify(inner string) (string, bool) {
	content := strings.TrimSpace(inner)
	if content == "" {
		return "", false
	}
	if controlWords[strings.Fields(content)[0]] {
		return "", true
	}
	if nameRE.MatchString(content) {
		return content, true
	}
	if strings.ContainsAny(content, expressionChars) {
		return "", true
	}
	return "", false
}

func formatError(text, reason string) *types.TemplateFormatError {
	excerpt := html.UnescapeString(text)
	if r := []rune(excerpt); len(r) > 60 {
		excerpt = string(r[:57]) + "..."
	}
	return &types.TemplateFormatError{Excerpt: excerpt, Reason: reason}
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
