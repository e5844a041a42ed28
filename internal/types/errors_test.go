package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateFormatErrorHintNamesExample(t *testing.T) {
	err := &TemplateFormatError{Part: "word/document.xml", Reason: "unclosed tag"}
	assert.Contains(t, err.Hint(), "{{CompanyHeader}}")

	err.Example = "Reference"
	assert.Contains(t, err.Hint(), "variables like {{Reference}} are typed fresh")
	assert.NotContains(t, err.Hint(), "CompanyHeader")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&UnreadableInputError{Path: "x.docx", Err: errors.New("gone")}))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", &TemplateFormatError{Reason: "unclosed"})))
	assert.False(t, IsFatal(&RenderError{Row: 2, Err: errors.New("bad value")}))
	assert.False(t, IsFatal(nil))
}
