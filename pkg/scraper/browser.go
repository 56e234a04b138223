package scraper

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/xhad/autofill/internal/models"
)

// fetchBrowser renders target in a headless browser so that script-built
// pages yield their final DOM.
func (s *Scraper) fetchBrowser(ctx context.Context, target string) (models.Document, error) {
	b, err := s.ensureBrowser()
	if err != nil {
		return models.Document{}, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return models.Document{}, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	p := page.Context(navCtx)
	if err := p.Navigate(target); err != nil {
		return models.Document{}, fmt.Errorf("browser: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return models.Document{}, fmt.Errorf("browser: wait load: %w", err)
	}

	html, err := p.HTML()
	if err != nil {
		return models.Document{}, fmt.Errorf("browser: read DOM: %w", err)
	}
	if int64(len(html)) > s.config.MaxBytes {
		html = html[:s.config.MaxBytes]
	}

	return s.htmlToDocument([]byte(html), target)
}

func (s *Scraper) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	controlURL := s.config.BrowserURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Set("disable-blink-features", "AutomationControlled").Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b
	return b, nil
}
