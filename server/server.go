// Package server exposes the import pipeline over HTTP and a websocket
// progress stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/xhad/autofill/internal/types"
	"github.com/xhad/autofill/pkg/notion"
	"github.com/xhad/autofill/pkg/pipeline"
	"github.com/xhad/autofill/pkg/scraper"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is a websocket frame. Clients send {"type":"crawl","data":{...}};
// the server answers with status, error and result frames.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// CrawlRequest is the body of POST /api/crawl and the data of a crawl frame.
type CrawlRequest struct {
	DatabaseURL string `json:"databaseUrl"`
	URL         string `json:"url"`
	OpenAIKey   string `json:"openAiKey"`
	NotionKey   string `json:"notionKey"`
	Model       string `json:"model"`
}

// PipelineFactory builds the pipeline for one request.
// *pipeline.Builder implements it.
type PipelineFactory interface {
	Build(ctx context.Context, creds pipeline.Credentials) (*pipeline.Pipeline, func() error, error)
}

type Config struct {
	RateLimit float64 // requests per second per client, 0 disables
	Burst     int
}

type Server struct {
	factory PipelineFactory
	history types.History
	limiter *clientLimiter
	logger  *slog.Logger
	router  chi.Router
}

// New creates a Server. history may be nil, in which case /api/history
// answers 404.
func New(factory PipelineFactory, history types.History, config Config, logger *slog.Logger) *Server {
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		factory: factory,
		history: history,
		limiter: newClientLimiter(config.RateLimit, config.Burst),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Post("/api/crawl", s.handleCrawl)
		r.Get("/ws", s.handleWebSocket)
	})
	r.Get("/api/history", s.handleHistory)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// crawl builds a pipeline for req and runs it. onEvent may be nil.
func (s *Server) crawl(ctx context.Context, req CrawlRequest, onEvent func(pipeline.Event)) (*pipeline.Result, error) {
	// Reject before any client is constructed.
	if _, err := notion.ParseDatabaseID(req.DatabaseURL); err != nil {
		return nil, err
	}
	p, closeFn, err := s.factory.Build(ctx, pipeline.Credentials{
		ModelKey:  req.OpenAIKey,
		NotionKey: req.NotionKey,
		Model:     req.Model,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeFn(); err != nil {
			s.logger.Warn("server: closing model client", "error", err)
		}
	}()
	p.OnEvent = onEvent
	return p.Run(ctx, pipeline.Request{
		DatabaseURL: req.DatabaseURL,
		URL:         req.URL,
		Model:       req.Model,
	})
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.crawl(r.Context(), req, nil)
	if err != nil {
		status, msg := s.classify(r.Context(), err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res.Page})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	recs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "server: reading history", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": recs})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("server: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn, logger: s.logger}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("server: websocket read", "error", err)
			}
			return
		}

		var msg struct {
			Type string       `json:"type"`
			Data CrawlRequest `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			ws.send(Message{Type: "error", Content: "invalid message"})
			continue
		}
		if msg.Type != "crawl" {
			ws.send(Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
			continue
		}

		res, err := s.crawl(r.Context(), msg.Data, func(e pipeline.Event) {
			ws.send(Message{Type: "status", Content: e.Message, Data: e})
		})
		if err != nil {
			_, text := s.classify(r.Context(), err)
			ws.send(Message{Type: "error", Content: text})
			continue
		}
		ws.send(Message{Type: "result", Content: res.Page.URL, Data: res.Page})
	}
}

// wsConn serialises writes; pipeline events arrive from several goroutines.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *slog.Logger
}

func (c *wsConn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("server: sending message", "error", err)
	}
}

// errorWithStatus is implemented by errors that carry their HTTP status.
type errorWithStatus interface {
	error
	StatusCode() int
}

type badRequest struct{ err error }

func (e badRequest) Error() string   { return e.err.Error() }
func (e badRequest) Unwrap() error   { return e.err }
func (e badRequest) StatusCode() int { return http.StatusBadRequest }

// classify maps a pipeline error to a status and a client-safe message.
// Upstream failures are logged and reported generically.
func (s *Server) classify(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, notion.ErrInvalidDatabaseURL),
		errors.Is(err, scraper.ErrInvalidURL),
		errors.Is(err, pipeline.ErrMissingNotionKey):
		err = badRequest{err}
	}
	var ews errorWithStatus
	if errors.As(err, &ews) && ews.StatusCode() < http.StatusInternalServerError {
		return ews.StatusCode(), ews.Error()
	}
	s.logger.ErrorContext(ctx, "server: crawl failed", "error", err)
	return http.StatusInternalServerError, "crawl failed"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("server: encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
