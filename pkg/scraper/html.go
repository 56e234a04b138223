package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/xhad/autofill/internal/models"
)

var (
	sanitizer = bluemonday.UGCPolicy()
	markdown  = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// Elements that never carry page content.
var noiseSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "form",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[aria-hidden=true]",
	".cookie-banner", "#cookie-banner",
}

// fetchDirect downloads target and converts its main content to markdown.
func (s *Scraper) fetchDirect(ctx context.Context, target string) (models.Document, error) {
	resp, err := s.get(ctx, target, "text/html")
	if err != nil {
		return models.Document{}, err
	}

	doc, err := s.htmlToDocument(resp.body, target)
	if err != nil {
		return models.Document{}, err
	}
	doc.Metadata["contentType"] = resp.header.Get("Content-Type")
	doc.Metadata["lastModified"] = resp.header.Get("Last-Modified")
	doc.Metadata["truncated"] = resp.truncated
	return doc, nil
}

func (s *Scraper) htmlToDocument(body []byte, target string) (models.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.Document{}, fmt.Errorf("parsing html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	content, err := s.extractMainContent(doc, target)
	if err != nil {
		return models.Document{}, err
	}

	return models.Document{
		Title:    title,
		Content:  content,
		Metadata: map[string]interface{}{},
	}, nil
}

func (s *Scraper) extractMainContent(doc *goquery.Document, target string) (string, error) {
	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		"[role=main]",
		".content",
		"#content",
	}

	var selected *goquery.Selection
	for _, selector := range selectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			selected = sel
			break
		}
	}

	// Fallback to body if no main content found
	if selected == nil {
		selected = doc.Find("body")
	}

	html, err := goquery.OuterHtml(selected)
	if err != nil {
		return "", fmt.Errorf("rendering content: %w", err)
	}

	md, err := markdown.ConvertString(sanitizer.Sanitize(html), converter.WithDomain(target))
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return s.cleanContent(md), nil
}
