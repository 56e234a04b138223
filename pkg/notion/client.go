// Package notion reads database schemas from and writes rows to Notion.
package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/xhad/autofill/pkg/schema"
)

// ErrInvalidDatabaseURL is returned when no database ID can be taken from a URL.
var ErrInvalidDatabaseURL = errors.New("couldn't extract Notion database ID")

var slugID = regexp.MustCompile(`(?i)([0-9a-f]{32})$`)

// ParseDatabaseID returns the database ID carried by the first path segment of
// a Notion database URL. For a "Title-<id>" slug the trailing ID is returned.
func ParseDatabaseID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDatabaseURL, raw)
	}
	segment := strings.Split(u.Path, "/")
	if len(segment) < 2 || segment[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDatabaseURL, raw)
	}
	id := segment[1]
	if m := slugID.FindString(id); m != "" {
		return m, nil
	}
	return id, nil
}

// ClientConfig configures a Notion API client.
type ClientConfig struct {
	Token   string
	Timeout time.Duration
}

// NewClient creates a Notion client for one integration token.
func NewClient(cfg ClientConfig) *notionapi.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return notionapi.NewClient(
		notionapi.Token(cfg.Token),
		notionapi.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
}

// DatabaseGetter is the part of the Notion database API used to read schemas.
// notionapi.Client.Database satisfies it.
type DatabaseGetter interface {
	Get(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error)
}

// PageCreator is the part of the Notion page API used to write rows.
// notionapi.Client.Page satisfies it.
type PageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// SchemaReader retrieves database property definitions.
type SchemaReader struct {
	databases DatabaseGetter
	logger    *slog.Logger
}

func NewSchemaReader(databases DatabaseGetter, logger *slog.Logger) *SchemaReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaReader{databases: databases, logger: logger}
}

// ReadSchema fetches the database and converts its property configs.
func (r *SchemaReader) ReadSchema(ctx context.Context, databaseID string) (schema.Database, error) {
	db, err := r.databases.Get(ctx, notionapi.DatabaseID(databaseID))
	if err != nil {
		return schema.Database{}, fmt.Errorf("retrieving database %s: %w", databaseID, err)
	}
	out := FromDatabase(databaseID, db)
	if skipped := out.Skipped(); len(skipped) > 0 {
		r.logger.Debug("notion: properties left out of extraction", "database", databaseID, "properties", skipped)
	}
	return out, nil
}

// FromDatabase converts a Notion database object to a schema.Database.
func FromDatabase(databaseID string, db *notionapi.Database) schema.Database {
	props := make([]schema.Property, 0, len(db.Properties))
	for name, cfg := range db.Properties {
		if cfg == nil {
			continue
		}
		tag := string(cfg.GetType())
		props = append(props, schema.Property{
			Name:    name,
			Type:    tag,
			Kind:    schema.ParseKind(tag),
			Options: choiceOptions(cfg),
		})
	}
	return schema.NewDatabase(databaseID, Title(db), props)
}

// Title returns the content of the first text node of the database title.
func Title(db *notionapi.Database) string {
	for _, rt := range db.Title {
		if rt.Text != nil {
			return rt.Text.Content
		}
	}
	return ""
}

func choiceOptions(cfg notionapi.PropertyConfig) []string {
	var opts []notionapi.Option
	switch c := cfg.(type) {
	case *notionapi.SelectPropertyConfig:
		opts = c.Select.Options
	case notionapi.SelectPropertyConfig:
		opts = c.Select.Options
	case *notionapi.MultiSelectPropertyConfig:
		opts = c.MultiSelect.Options
	case notionapi.MultiSelectPropertyConfig:
		opts = c.MultiSelect.Options
	default:
		return nil
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		names = append(names, o.Name)
	}
	return names
}

// RowWriter creates pages in a database.
type RowWriter struct {
	pages PageCreator
}

func NewRowWriter(pages PageCreator) *RowWriter {
	return &RowWriter{pages: pages}
}

// WriteRow creates one page. Errors from Notion are returned unchanged apart
// from wrapping; nothing is retried.
func (w *RowWriter) WriteRow(ctx context.Context, databaseID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := w.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("creating page in %s: %w", databaseID, err)
	}
	return page, nil
}
