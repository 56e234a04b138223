// Package processor prepares fetched page text for a model prompt.
package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/autofill/internal/models"
)

type ProcessorConfig struct {
	// MaxChars bounds the content length in bytes. Longer content is cut at
	// the last sentence end in the back half of the budget, else at a word.
	MaxChars int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxChars == 0 {
		config.MaxChars = 60000
	}

	return Processor{
		config: config,
	}
}

// Process normalises whitespace in doc.Content and bounds its length.
func (p *Processor) Process(doc models.Document) models.Document {
	text := p.cleanText(doc.Content)
	original := len(text)
	text = p.truncate(text)

	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc.Metadata["chars"] = len(text)
	doc.Metadata["truncated"] = len(text) < original
	doc.Content = text
	return doc
}

func (p *Processor) cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []string
	blank := false
	for _, line := range lines {
		// Replace multiple spaces with single space
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

func (p *Processor) truncate(text string) string {
	if len(text) <= p.config.MaxChars {
		return text
	}

	prefix := text[:p.config.MaxChars]
	for len(prefix) > 0 && !utf8.RuneStart(text[len(prefix)]) {
		prefix = prefix[:len(prefix)-1]
	}

	if end := lastSentenceEnd(prefix); end > 0 && end >= p.config.MaxChars/2 {
		return strings.TrimSpace(prefix[:end])
	}
	if i := strings.LastIndexAny(prefix, " \n"); i > 0 {
		return strings.TrimSpace(prefix[:i])
	}
	return prefix
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in text, or 0 if there is none.
func lastSentenceEnd(text string) int {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n", "\n\n"}

	best := 0
	for _, ender := range sentenceEnders {
		if i := strings.LastIndex(text, ender); i >= 0 && i+1 > best {
			best = i + 1
		}
	}
	// A terminator at the very end of the prefix also closes a sentence.
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		best = len(text)
	}
	return best
}
