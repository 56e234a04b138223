package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/autofill/internal/models"
	"github.com/xhad/autofill/pkg/pipeline"
	"github.com/xhad/autofill/pkg/schema"
)

type stubFetcher struct {
	calls int
	err   error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (models.Document, error) {
	f.calls++
	return models.Document{URL: url, Content: "Hello world."}, f.err
}

type stubSchemas struct{}

func (stubSchemas) ReadSchema(_ context.Context, id string) (schema.Database, error) {
	return schema.NewDatabase(id, "Articles", []schema.Property{
		{Name: "Title", Type: "title", Kind: schema.KindTitle},
	}), nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, _ string, ex *schema.Extraction) (schema.Record, error) {
	return ex.Validate(`{"Title":"Hello"}`)
}

type stubWriter struct{}

func (stubWriter) WriteRow(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
	return &notionapi.Page{ID: "page1", URL: "https://www.notion.so/page1"}, nil
}

type stubFactory struct {
	fetcher *stubFetcher
	creds   pipeline.Credentials
	err     error
	closed  int
}

func (f *stubFactory) Build(_ context.Context, creds pipeline.Credentials) (*pipeline.Pipeline, func() error, error) {
	f.creds = creds
	if f.err != nil {
		return nil, nil, f.err
	}
	return &pipeline.Pipeline{
			Fetcher:   f.fetcher,
			Schemas:   stubSchemas{},
			Extractor: stubExtractor{},
			Writer:    stubWriter{},
		}, func() error {
			f.closed++
			return nil
		}, nil
}

type stubHistory struct {
	limit int
	recs  []models.ImportRecord
	err   error
}

func (h *stubHistory) Record(context.Context, models.ImportRecord) error { return nil }

func (h *stubHistory) Recent(_ context.Context, limit int) ([]models.ImportRecord, error) {
	h.limit = limit
	return h.recs, h.err
}

func (h *stubHistory) Close() {}

func newTestServer(f *stubFactory, cfg Config) *Server {
	if f.fetcher == nil {
		f.fetcher = &stubFetcher{}
	}
	return New(f, nil, cfg, nil)
}

func postCrawl(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/crawl", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const validBody = `{
	"databaseUrl": "https://www.notion.so/abc123?v=1",
	"url": "https://example.com/post",
	"openAiKey": "sk-test",
	"notionKey": "secret_x",
	"model": "gpt-4o"
}`

func TestHealth(t *testing.T) {
	s := newTestServer(&stubFactory{}, Config{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestCrawl(t *testing.T) {
	f := &stubFactory{}
	s := newTestServer(f, Config{})

	w := postCrawl(t, s.Handler(), validBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	out := decode(t, w)
	result, ok := out["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "page1", result["id"])
	assert.Equal(t, "https://www.notion.so/page1", result["url"])

	assert.Equal(t, pipeline.Credentials{ModelKey: "sk-test", NotionKey: "secret_x", Model: "gpt-4o"}, f.creds)
	assert.Equal(t, 1, f.closed)
}

func TestCrawlErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		factoryErr error
		fetchErr   error
		wantStatus int
		wantMsg    string
		wantFetch  bool
	}{
		{
			name:       "malformed body",
			body:       `{"databaseUrl":`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "invalid request body",
		},
		{
			name:       "invalid database url",
			body:       `{"databaseUrl":"not a url","url":"https://example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "couldn't extract Notion database ID",
		},
		{
			name:       "missing notion key",
			body:       validBody,
			factoryErr: pipeline.ErrMissingNotionKey,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "notion API key is required",
		},
		{
			name:       "upstream failure",
			body:       validBody,
			fetchErr:   errors.New("received status code 502"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "crawl failed",
			wantFetch:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFactory{err: tt.factoryErr, fetcher: &stubFetcher{err: tt.fetchErr}}
			s := newTestServer(f, Config{})

			w := postCrawl(t, s.Handler(), tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, decode(t, w)["error"], tt.wantMsg)
			assert.Equal(t, tt.wantFetch, f.fetcher.calls > 0)
		})
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(&stubFactory{}, Config{RateLimit: 0.001, Burst: 1})

	assert.Equal(t, http.StatusOK, postCrawl(t, s.Handler(), validBody).Code)
	w := postCrawl(t, s.Handler(), validBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Health is not limited.
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(&stubFactory{}, Config{})
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	h := &stubHistory{recs: []models.ImportRecord{{ID: 7, PageID: "page1", SourceURL: "https://example.com"}}}
	s := New(&stubFactory{fetcher: &stubFetcher{}}, h, Config{}, nil)

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit=3", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 3, h.limit)

		var out struct {
			Result []models.ImportRecord `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		require.Len(t, out.Result, 1)
		assert.Equal(t, "page1", out.Result[0].PageID)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"x", "0", "501"} {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?limit="+q, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("store error", func(t *testing.T) {
		h.err = errors.New("db down")
		defer func() { h.err = nil }()
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) []Message {
	t.Helper()
	var msgs []Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var m Message
		require.NoError(t, conn.ReadJSON(&m))
		msgs = append(msgs, m)
		if m.Type == typ {
			return msgs
		}
	}
}

func TestWebSocket(t *testing.T) {
	s := newTestServer(&stubFactory{}, Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var body bytes.Buffer
	body.WriteString(`{"type":"crawl","data":`)
	body.WriteString(validBody)
	body.WriteString(`}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body.Bytes()))

	msgs := readUntil(t, conn, "result")
	last := msgs[len(msgs)-1]
	assert.Equal(t, "https://www.notion.so/page1", last.Content)

	stages := map[string]bool{}
	for _, m := range msgs[:len(msgs)-1] {
		require.Equal(t, "status", m.Type)
		data, ok := m.Data.(map[string]any)
		require.True(t, ok)
		stages[data["stage"].(string)] = true
	}
	for _, st := range []string{"fetch", "schema", "extract", "write"} {
		assert.True(t, stages[st], "missing stage %s", st)
	}

	require.NoError(t, conn.WriteJSON(Message{Type: "chat"}))
	msgs = readUntil(t, conn, "error")
	assert.Contains(t, msgs[len(msgs)-1].Content, "unknown message type")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "crawl",
		"data": CrawlRequest{DatabaseURL: "nope", URL: "https://example.com"},
	}))
	msgs = readUntil(t, conn, "error")
	assert.Contains(t, msgs[len(msgs)-1].Content, "couldn't extract Notion database ID")
}
