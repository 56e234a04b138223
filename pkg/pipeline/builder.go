package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/xhad/autofill/internal/types"
	"github.com/xhad/autofill/pkg/config"
	"github.com/xhad/autofill/pkg/llm"
	"github.com/xhad/autofill/pkg/notion"
)

// ErrMissingNotionKey is returned when neither the request nor the
// environment carries a Notion integration key.
var ErrMissingNotionKey = errors.New("notion API key is required")

// Credentials are the per-request secrets and model choice. Empty fields fall
// back to the configuration.
type Credentials struct {
	ModelKey  string
	NotionKey string
	Model     string
	Provider  string
}

// Builder creates a Pipeline per request around long-lived collaborators.
type Builder struct {
	Config    *config.Config
	Fetcher   types.Fetcher
	Processor types.Processor
	History   types.History
	Logger    *slog.Logger
}

// Build returns a Pipeline bound to creds. The close func releases the
// model client and is never nil.
func (b *Builder) Build(ctx context.Context, creds Credentials) (*Pipeline, func() error, error) {
	cfg := b.Config
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider := first(creds.Provider, cfg.LLM.Provider)
	modelKey := first(creds.ModelKey, cfg.LLM.APIKey)
	if creds.Provider != "" && creds.Provider != cfg.LLM.Provider && creds.ModelKey == "" {
		modelKey = envKey(provider)
	}
	notionKey := first(creds.NotionKey, cfg.Notion.APIKey)
	if notionKey == "" {
		return nil, nil, ErrMissingNotionKey
	}
	model := creds.Model
	baseURL := ""
	if provider == cfg.LLM.Provider {
		baseURL = cfg.LLM.BaseURL
		if model == "" {
			model = cfg.LLM.Model
		}
	}

	chat, closeChat, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider: provider,
		Model:    model,
		APIKey:   modelKey,
		BaseURL:  baseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	client := notion.NewClient(notion.ClientConfig{
		Token:   notionKey,
		Timeout: cfg.Notion.Timeout,
	})

	p := &Pipeline{
		Fetcher: b.Fetcher,
		Schemas: notion.NewSchemaReader(client.Database, logger),
		Extractor: llm.NewExtractor(chat, llm.ExtractorConfig{
			MaxRetries:  cfg.LLM.MaxRetries,
			Model:       model,
			Temperature: cfg.LLM.Temperature,
			Logger:      logger,
		}),
		Writer:    notion.NewRowWriter(client.Page),
		Processor: b.Processor,
		History:   b.History,
		Logger:    logger,
	}
	return p, closeChat, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envKey(provider string) string {
	switch provider {
	case llm.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
