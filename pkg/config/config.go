package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr      string  `yaml:"addr"`
		RateLimit float64 `yaml:"rate_limit"` // requests per second per client
		Burst     int     `yaml:"burst"`
	} `yaml:"server"`

	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		APIKey      string  `yaml:"api_key"`
		MaxRetries  int     `yaml:"max_retries"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Notion struct {
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"notion"`

	Scraper struct {
		Mode       string        `yaml:"mode"`
		ReaderURL  string        `yaml:"reader_url"`
		Timeout    time.Duration `yaml:"timeout"`
		RateLimit  float64       `yaml:"rate_limit"`
		MaxBytes   int64         `yaml:"max_bytes"`
		BrowserURL string        `yaml:"browser_url"`
	} `yaml:"scraper"`

	Processor struct {
		MaxChars int `yaml:"max_chars"`
	} `yaml:"processor"`

	History struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
	} `yaml:"history"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/autofill/config.yaml"),
			"/etc/autofill/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 1
	}
	if config.Server.Burst == 0 {
		config.Server.Burst = 5
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = defaultModel(config.LLM.Provider)
	}
	if config.LLM.MaxRetries == 0 {
		config.LLM.MaxRetries = 5
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Notion.Timeout == 0 {
		config.Notion.Timeout = 30 * time.Second
	}

	if config.Scraper.Mode == "" {
		config.Scraper.Mode = "reader"
	}
	if config.Scraper.ReaderURL == "" {
		config.Scraper.ReaderURL = "https://r.jina.ai/"
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 60 * time.Second
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.MaxBytes == 0 {
		config.Scraper.MaxBytes = 5 << 20
	}

	if config.Processor.MaxChars == 0 {
		config.Processor.MaxChars = 60000
	}

	if config.History.TableName == "" {
		config.History.TableName = "imports"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "ollama":
		return "mistral"
	case "gemini":
		return "gemini-1.5-flash"
	default:
		return "gpt-4o-mini"
	}
}

func mergeWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if provider := os.Getenv("AUTOFILL_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if model := os.Getenv("AUTOFILL_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = providerKey(config.LLM.Provider)
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("NOTION_API_KEY"); key != "" {
		config.Notion.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.History.URL = dbURL
	}
}

func providerKey(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "ollama":
		return ""
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}
