package scraper

import (
	"bufio"
	"context"
	"strings"

	"github.com/xhad/autofill/internal/models"
)

// fetchReader asks the reader proxy for a plain-text rendering of target.
// The body is returned as the proxy sent it.
func (s *Scraper) fetchReader(ctx context.Context, target string) (models.Document, error) {
	resp, err := s.get(ctx, s.config.ReaderURL+target, "text/plain")
	if err != nil {
		return models.Document{}, err
	}

	content := string(resp.body)
	return models.Document{
		Title:   readerTitle(content),
		Content: content,
		Metadata: map[string]interface{}{
			"contentType": resp.header.Get("Content-Type"),
			"truncated":   resp.truncated,
		},
	}, nil
}

// readerTitle picks the "Title:" header line the proxy puts on top of its output.
func readerTitle(content string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for i := 0; sc.Scan() && i < 5; i++ {
		if title, ok := strings.CutPrefix(sc.Text(), "Title:"); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}
