// Package scraper fetches the readable text of a web page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/xhad/autofill/internal/models"
	"golang.org/x/time/rate"
)

// Fetch modes.
const (
	ModeReader  = "reader"
	ModeDirect  = "direct"
	ModeBrowser = "browser"
)

// ErrInvalidURL is returned for targets that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid page URL")

type ScraperConfig struct {
	Mode      string
	ReaderURL string  // reader proxy prefix, the target URL is appended
	RateLimit float64 // requests per second
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// BrowserURL is a remote DevTools control URL. Empty launches a local browser.
	BrowserURL string
	OnProgress func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter

	mu      sync.Mutex
	browser *rod.Browser
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Mode == "" {
		config.Mode = ModeReader
	}
	if config.ReaderURL == "" {
		config.ReaderURL = "https://r.jina.ai/"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 5 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "autofill/1.0"
	}

	switch config.Mode {
	case ModeReader, ModeDirect, ModeBrowser:
	default:
		return nil, fmt.Errorf("unknown scraper mode %q", config.Mode)
	}
	if _, err := url.Parse(config.ReaderURL); err != nil {
		return nil, fmt.Errorf("invalid reader URL: %w", err)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New() *Scraper {
	s, _ := NewWithConfig(ScraperConfig{})
	return s
}

// Fetch returns the text of the page at target.
func (s *Scraper) Fetch(ctx context.Context, target string) (models.Document, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.Document{}, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	target = u.String()

	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}
	if s.config.OnProgress != nil {
		s.config.OnProgress(target)
	}

	var doc models.Document
	switch s.config.Mode {
	case ModeDirect:
		doc, err = s.fetchDirect(ctx, target)
	case ModeBrowser:
		doc, err = s.fetchBrowser(ctx, target)
	default:
		doc, err = s.fetchReader(ctx, target)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("fetching %s: %w", target, err)
	}

	doc.URL = target
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc.Metadata["mode"] = s.config.Mode
	doc.Metadata["time"] = time.Now()
	return doc, nil
}

// Close releases the browser, if one was started.
func (s *Scraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

// response is a fetched body, cut at MaxBytes.
type response struct {
	header    http.Header
	body      []byte
	truncated bool
}

func (s *Scraper) get(ctx context.Context, target string, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, target)
	}

	// One byte past the limit tells a cut body from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	out := &response{header: resp.Header, body: body}
	if int64(len(body)) > s.config.MaxBytes {
		out.body = body[:s.config.MaxBytes]
		out.truncated = true
		slog.DebugContext(ctx, "scraper: body truncated", "url", target, "max_bytes", s.config.MaxBytes)
	}
	return out, nil
}

func (s *Scraper) cleanContent(content string) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}

	content = strings.Join(out, "\n")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Accept all cookies",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}
