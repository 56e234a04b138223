// Package pipeline runs one import: fetch a page, read a Notion database
// schema, extract a row with a model and write it to the database.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/autofill/internal/models"
	"github.com/xhad/autofill/internal/types"
	"github.com/xhad/autofill/pkg/notion"
	"github.com/xhad/autofill/pkg/schema"
)

// Stage names reported through OnEvent.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageSchema  Stage = "schema"
	StageExtract Stage = "extract"
	StageWrite   Stage = "write"
	StageDone    Stage = "done"
)

// Event reports that a stage started, or with Done set, finished.
type Event struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Done    bool   `json:"done"`
}

// Request is one import.
type Request struct {
	DatabaseURL string
	URL         string
	Model       string
}

// Result is a completed import.
type Result struct {
	DatabaseID string
	Page       *notionapi.Page
	Document   models.Document
	Record     schema.Record
}

// Pipeline wires the collaborators of one import. Processor, History and
// OnEvent are optional.
type Pipeline struct {
	Fetcher   types.Fetcher
	Schemas   types.SchemaReader
	Extractor types.Extractor
	Writer    types.RowWriter
	Processor types.Processor
	History   types.History
	Logger    *slog.Logger
	OnEvent   func(Event)

	mu sync.Mutex
}

func (p *Pipeline) emit(e Event) {
	if p.OnEvent == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OnEvent(e)
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Run performs the import. A malformed database URL fails before any
// collaborator is called.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	databaseID, err := notion.ParseDatabaseID(req.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log := p.logger().With("database", databaseID, "url", req.URL)

	var (
		doc models.Document
		db  schema.Database
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.emit(Event{Stage: StageFetch, Message: req.URL})
		d, err := p.Fetcher.Fetch(gctx, req.URL)
		if err != nil {
			return err
		}
		doc = d
		p.emit(Event{Stage: StageFetch, Message: fmt.Sprintf("fetched %d bytes", len(d.Content)), Done: true})
		return nil
	})
	g.Go(func() error {
		p.emit(Event{Stage: StageSchema, Message: databaseID})
		s, err := p.Schemas.ReadSchema(gctx, databaseID)
		if err != nil {
			return err
		}
		db = s
		p.emit(Event{Stage: StageSchema, Message: fmt.Sprintf("%d properties", len(s.Supported())), Done: true})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug("pipeline: inputs ready", "bytes", len(doc.Content), "title", doc.Title,
		"truncated", doc.Metadata["truncated"], "properties", len(db.Properties))

	if p.Processor != nil {
		doc = p.Processor.Process(doc)
	}

	ex, err := schema.NewExtraction(db)
	if err != nil {
		return nil, err
	}

	p.emit(Event{Stage: StageExtract, Message: ex.Name})
	rec, err := p.Extractor.Extract(ctx, pageText(doc), ex)
	if err != nil {
		return nil, fmt.Errorf("extracting record: %w", err)
	}
	p.emit(Event{Stage: StageExtract, Message: fmt.Sprintf("%d fields", len(rec)), Done: true})

	props, err := schema.Inbound(rec, db)
	if err != nil {
		return nil, fmt.Errorf("building row: %w", err)
	}

	p.emit(Event{Stage: StageWrite, Message: databaseID})
	page, err := p.Writer.WriteRow(ctx, databaseID, props)
	if err != nil {
		return nil, err
	}
	p.emit(Event{Stage: StageWrite, Message: page.URL, Done: true})
	log.Info("pipeline: row created", "page", page.ID)

	if p.History != nil {
		err := p.History.Record(ctx, models.ImportRecord{
			SourceURL:  req.URL,
			DatabaseID: databaseID,
			PageID:     string(page.ID),
			PageURL:    page.URL,
			Model:      req.Model,
		})
		if err != nil {
			log.Warn("pipeline: recording import", "error", err)
		}
	}

	p.emit(Event{Stage: StageDone, Message: page.URL, Done: true})
	return &Result{
		DatabaseID: databaseID,
		Page:       page,
		Document:   doc,
		Record:     rec,
	}, nil
}

// pageText is the model's view of doc: the page title on top, unless the
// content already leads with one.
func pageText(doc models.Document) string {
	if doc.Title == "" || strings.HasPrefix(doc.Content, "Title:") {
		return doc.Content
	}
	return "Title: " + doc.Title + "\n\n" + doc.Content
}
