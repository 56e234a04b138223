package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/autofill/pkg/schema"
)

// SchemaMetadataKey carries the extraction *jsonschema.Schema in call
// metadata for backends that accept a response schema.
const SchemaMetadataKey = "response_schema"

// ErrExtractionFailed is returned once every attempt produced invalid output.
var ErrExtractionFailed = errors.New("structured extraction failed")

// ExtractorConfig configures an Extractor.
type ExtractorConfig struct {
	// MaxRetries is the number of re-prompts after the first attempt fails
	// validation.
	MaxRetries  int
	Model       string
	Temperature float64
	// SystemTemplate receives the record name and the JSON Schema.
	SystemTemplate string
	// RetryTemplate receives the validation error.
	RetryTemplate string
	Logger        *slog.Logger
	// OnAttempt is called after each failed attempt.
	OnAttempt func(attempt int, err error)
}

// Extractor asks a model for a JSON record and validates it, re-prompting
// with the validation error until the attempt budget runs out.
type Extractor struct {
	config ExtractorConfig
	llm    llms.Model
}

// NewExtractor creates an Extractor over llm.
func NewExtractor(llm llms.Model, config ExtractorConfig) *Extractor {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "Extract a %q record from the page content supplied by the user. " +
			"Respond with a single JSON object that conforms to this JSON Schema and nothing else:\n%s"
	}
	if config.RetryTemplate == "" {
		config.RetryTemplate = "That response failed validation: %v\n" +
			"Respond again with a corrected JSON object that conforms to the schema."
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Extractor{config: config, llm: llm}
}

// Extract returns the validated record for pageText.
func (e *Extractor) Extract(ctx context.Context, pageText string, ex *schema.Extraction) (schema.Record, error) {
	schemaJSON, err := ex.JSON()
	if err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(e.config.SystemTemplate, ex.Name, schemaJSON)),
		llms.TextParts(llms.ChatMessageTypeHuman, pageText),
	}
	opts := []llms.CallOption{
		llms.WithJSONMode(),
		llms.WithTemperature(e.config.Temperature),
		llms.WithMetadata(map[string]any{SchemaMetadataKey: ex.Schema}),
	}
	if e.config.Model != "" {
		opts = append(opts, llms.WithModel(e.config.Model))
	}

	var lastErr error
	attempts := e.config.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := e.llm.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return nil, fmt.Errorf("completion attempt %d: %w", attempt, err)
		}

		var output string
		if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
			output = resp.Choices[0].Content
		}

		rec, err := ex.Validate(output)
		if err == nil {
			e.config.Logger.Debug("llm: record extracted", "name", ex.Name, "attempt", attempt)
			return rec, nil
		}

		lastErr = err
		e.config.Logger.Warn("llm: output failed validation", "name", ex.Name, "attempt", attempt, "error", err)
		if e.config.OnAttempt != nil {
			e.config.OnAttempt(attempt, err)
		}
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeAI, output),
			llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(e.config.RetryTemplate, err)),
		)
	}

	return nil, fmt.Errorf("%w after %d retries: %w", ErrExtractionFailed, e.config.MaxRetries, lastErr)
}
