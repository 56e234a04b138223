package types

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/xhad/autofill/internal/models"
	"github.com/xhad/autofill/pkg/schema"
)

// Core interfaces
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

type SchemaReader interface {
	ReadSchema(ctx context.Context, databaseID string) (schema.Database, error)
}

type Extractor interface {
	Extract(ctx context.Context, pageText string, ex *schema.Extraction) (schema.Record, error)
}

type RowWriter interface {
	WriteRow(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error)
}

type Processor interface {
	Process(doc models.Document) models.Document
}

type History interface {
	Record(ctx context.Context, rec models.ImportRecord) error
	Recent(ctx context.Context, limit int) ([]models.ImportRecord, error)
	Close()
}
