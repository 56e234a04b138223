package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/autofill/internal/models"
	"github.com/xhad/autofill/pkg/processor"
)

func TestProcessor_CleanText(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	doc := p.Process(models.Document{
		URL:     "https://example.com",
		Content: "  Hello   world.  \r\n\n\n\nSecond\tline ",
	})

	assert.Equal(t, "Hello world.\n\nSecond line", doc.Content)
	assert.Equal(t, "https://example.com", doc.URL)
	assert.Equal(t, false, doc.Metadata["truncated"])
	assert.Equal(t, len(doc.Content), doc.Metadata["chars"])
}

func TestProcessor_Truncate(t *testing.T) {
	tests := []struct {
		name     string
		maxChars int
		content  string
		expected string
	}{
		{
			name:     "fits",
			maxChars: 100,
			content:  "Short text.",
			expected: "Short text.",
		},
		{
			name:     "sentence boundary",
			maxChars: 30,
			content:  "First sentence here. Second sentence is longer than the rest.",
			expected: "First sentence here.",
		},
		{
			name:     "paragraph boundary",
			maxChars: 14,
			content:  "Heading\n\nBody text that goes on and on",
			expected: "Heading",
		},
		{
			name:     "early sentence end falls back to word",
			maxChars: 1000,
			content:  "Intro. " + strings.Repeat("word ", 400),
			expected: "Intro. " + strings.Repeat("word ", 197) + "word",
		},
		{
			name:     "word boundary",
			maxChars: 12,
			content:  "aaaa bbbb cccc dddd",
			expected: "aaaa bbbb",
		},
		{
			name:     "rune boundary",
			maxChars: 5,
			content:  "ééééé",
			expected: "éé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := processor.NewWithConfig(processor.ProcessorConfig{MaxChars: tt.maxChars})
			doc := p.Process(models.Document{Content: tt.content})
			assert.Equal(t, tt.expected, doc.Content)
			assert.True(t, utf8.ValidString(doc.Content))
			assert.LessOrEqual(t, len(doc.Content), tt.maxChars)
		})
	}
}

func TestProcessor_DefaultBudget(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	doc := p.Process(models.Document{Content: strings.Repeat("Word. ", 20000)})

	assert.Equal(t, true, doc.Metadata["truncated"])
	assert.LessOrEqual(t, len(doc.Content), 60000)
	assert.True(t, strings.HasSuffix(doc.Content, "Word."))
}
