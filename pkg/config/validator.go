package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate server config
	if c.Server.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "server.addr",
			Message: "listen address is required",
		})
	}

	if c.Server.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	if c.Server.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.burst",
			Message: "burst must be positive",
		})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "openai", "ollama", "gemini":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q, want openai, ollama or gemini", c.LLM.Provider),
		})
	}

	if c.LLM.MaxRetries < 1 || c.LLM.MaxRetries > 10 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_retries",
			Message: "max_retries must be between 1 and 10",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" && !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid base URL",
		})
	}

	if c.Notion.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "notion.timeout",
			Message: "timeout must not be negative",
		})
	}

	// Validate Scraper config
	switch c.Scraper.Mode {
	case "reader", "direct", "browser":
	default:
		errors = append(errors, ValidationError{
			Field:   "scraper.mode",
			Message: fmt.Sprintf("unknown mode %q, want reader, direct or browser", c.Scraper.Mode),
		})
	}

	if !isHTTPURL(c.Scraper.ReaderURL) {
		errors = append(errors, ValidationError{
			Field:   "scraper.reader_url",
			Message: "invalid reader URL",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.MaxBytes < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_bytes",
			Message: "max_bytes must be positive",
		})
	}

	// Validate Processor config
	if c.Processor.MaxChars < 1000 {
		errors = append(errors, ValidationError{
			Field:   "processor.max_chars",
			Message: "max_chars must be at least 1000",
		})
	}

	// Validate History config
	if c.History.URL != "" {
		if u, err := url.Parse(c.History.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, ValidationError{
				Field:   "history.url",
				Message: "invalid database URL",
			})
		}
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
