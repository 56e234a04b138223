package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xhad/autofill/pkg/config"
	"github.com/xhad/autofill/pkg/pipeline"
	"github.com/xhad/autofill/pkg/processor"
	"github.com/xhad/autofill/pkg/scraper"
	"github.com/xhad/autofill/pkg/store"
)

// app holds the collaborators shared by every import of one process.
type app struct {
	scraper *scraper.Scraper
	history *store.History
	builder *pipeline.Builder
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("config", "field", e.Field, "error", e.Message)
		}
		return nil, fmt.Errorf("invalid configuration: %w", errs[0])
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Mode:       cfg.Scraper.Mode,
		ReaderURL:  cfg.Scraper.ReaderURL,
		RateLimit:  cfg.Scraper.RateLimit,
		Timeout:    cfg.Scraper.Timeout,
		MaxBytes:   cfg.Scraper.MaxBytes,
		BrowserURL: cfg.Scraper.BrowserURL,
		OnProgress: func(url string) {
			slog.Debug("scraper: fetching", "url", url, "mode", cfg.Scraper.Mode)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}
	proc := processor.NewWithConfig(processor.ProcessorConfig{MaxChars: cfg.Processor.MaxChars})

	a := &app{
		scraper: s,
		builder: &pipeline.Builder{
			Config:    cfg,
			Fetcher:   s,
			Processor: &proc,
			Logger:    slog.Default(),
		},
	}

	if cfg.History.URL != "" {
		h, err := store.NewWithConfig(ctx, store.HistoryConfig{
			ConnString: cfg.History.URL,
			TableName:  cfg.History.TableName,
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to initialize history: %w", err)
		}
		a.history = h
		a.builder.History = h
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.scraper.Close(); err != nil {
		slog.Warn("closing scraper", "error", err)
	}
	if a.history != nil {
		a.history.Close()
	}
}
