// Package llm turns page text into a schema-conforming record with a
// language model.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// ChatConfig represents the configuration of a completion backend.
type ChatConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string // OpenAI-compatible endpoint or Ollama server URL
	Timeout  time.Duration
}

// NewWithConfig creates the completion model for config. The returned close
// func releases provider resources and is never nil.
func NewWithConfig(ctx context.Context, config ChatConfig) (llms.Model, func() error, error) {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	noop := func() error { return nil }

	switch config.Provider {
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "gpt-4o-mini"
		}
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithResponseFormat(openai.ResponseFormatJSON),
			openai.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
		}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return llm, noop, nil

	case ProviderOllama:
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
			ollama.WithFormat("json"),
			ollama.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return llm, noop, nil

	case ProviderGemini:
		if config.Model == "" {
			config.Model = "gemini-1.5-flash"
		}
		llm, err := NewGemini(ctx, config.APIKey, config.Model)
		if err != nil {
			return nil, nil, err
		}
		return llm, llm.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown llm provider %q", config.Provider)
}
