package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	s, err := NewWithConfig(ScraperConfig{})
	require.NoError(t, err)
	assert.Equal(t, ModeReader, s.config.Mode)
	assert.Equal(t, "https://r.jina.ai/", s.config.ReaderURL)
	assert.Equal(t, 60*time.Second, s.config.Timeout)
	assert.Equal(t, int64(5<<20), s.config.MaxBytes)

	_, err = NewWithConfig(ScraperConfig{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	s := New()
	for _, target := range []string{"", "example.com", "ftp://example.com/file", "http://"} {
		t.Run(target, func(t *testing.T) {
			_, err := s.Fetch(context.Background(), target)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestFetchReader(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Title: Socks\n\nURL Source: https://example.com/socks\n\nMarkdown Content:\nColorful socks."))
	}))
	defer server.Close()

	var progressed []string
	s, err := NewWithConfig(ScraperConfig{
		ReaderURL:  server.URL + "/",
		RateLimit:  100,
		OnProgress: func(url string) { progressed = append(progressed, url) },
	})
	require.NoError(t, err)

	doc, err := s.Fetch(context.Background(), "https://example.com/socks")
	require.NoError(t, err)

	assert.Contains(t, gotPath, "example.com/socks")
	assert.Equal(t, "https://example.com/socks", doc.URL)
	assert.Equal(t, "Socks", doc.Title)
	assert.Contains(t, doc.Content, "Colorful socks.")
	assert.Equal(t, ModeReader, doc.Metadata["mode"])
	assert.Equal(t, []string{"https://example.com/socks"}, progressed)
}

func TestFetchReaderUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{ReaderURL: server.URL + "/", RateLimit: 100})
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFetchMaxBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 1000)))
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{ReaderURL: server.URL + "/", RateLimit: 100, MaxBytes: 10})
	require.NoError(t, err)

	doc, err := s.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Len(t, doc.Content, 10)
	assert.Equal(t, true, doc.Metadata["truncated"])
}

func TestFetchBodyAtLimitIsNotTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 10)))
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{ReaderURL: server.URL + "/", RateLimit: 100, MaxBytes: 10})
	require.NoError(t, err)

	doc, err := s.Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Len(t, doc.Content, 10)
	assert.Equal(t, false, doc.Metadata["truncated"])
}

func TestFetchDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title><script>var tracking = 1;</script></head>
				<body>
					<nav><a href="/">Home</a></nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a <b>test</b> paragraph.</p>
						<p onclick="steal()">Price: 12 USD</p>
					</main>
					<footer>Accept Cookies</footer>
				</body>
			</html>
		`))
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{Mode: ModeDirect, RateLimit: 100})
	require.NoError(t, err)

	doc, err := s.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Test Page", doc.Title)
	assert.Contains(t, doc.Content, "# Test Content")
	assert.Contains(t, doc.Content, "**test**")
	assert.Contains(t, doc.Content, "Price: 12 USD")
	assert.NotContains(t, doc.Content, "tracking")
	assert.NotContains(t, doc.Content, "Home")
	assert.NotContains(t, doc.Content, "steal")
	assert.Equal(t, "text/html", doc.Metadata["contentType"])
}

func TestFetchCanceled(t *testing.T) {
	s, err := NewWithConfig(ScraperConfig{RateLimit: 0.001})
	require.NoError(t, err)

	// Drain the single burst token so the next call has to wait.
	require.True(t, s.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Fetch(ctx, "https://example.com")
	assert.Error(t, err)
}

func TestReaderTitle(t *testing.T) {
	assert.Equal(t, "Hello", readerTitle("Title: Hello\nbody"))
	assert.Equal(t, "", readerTitle("no header here"))
	assert.Equal(t, "", readerTitle(""))
}

func TestCleanContent(t *testing.T) {
	s := New()
	in := "  line one  \n\n\n\nline two\r\nAccept Cookies\n\n"
	assert.Equal(t, "line one\n\nline two", s.cleanContent(in))
}
